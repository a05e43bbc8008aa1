package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pkgreuse/pkg/crawl"
	"github.com/matzehuels/pkgreuse/pkg/depspec"
	"github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/fallback"
	"github.com/matzehuels/pkgreuse/pkg/install"
	"github.com/matzehuels/pkgreuse/pkg/manifest"
	"github.com/matzehuels/pkgreuse/pkg/match"
	"github.com/matzehuels/pkgreuse/pkg/observability"
	"github.com/matzehuels/pkgreuse/pkg/resolve"
)

// Runner executes reuse passes.
//
// The Runner holds no per-pass state. Multiple goroutines may use the same
// Runner for different projects, but two passes over the same project race
// on its install directory.
type Runner struct {
	Crawler  *crawl.Crawler
	Matcher  *match.Matcher
	Fallback fallback.Runner
	Logger   *log.Logger
}

// NewRunner creates a runner. Nil arguments get defaults: a crawler and
// matcher with default options and an npm dispatcher.
func NewRunner(c *crawl.Crawler, m *match.Matcher, fb fallback.Runner, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if c == nil {
		c = crawl.New(crawl.Options{Logger: logger})
	}
	if m == nil {
		m = match.New(match.Options{Logger: logger})
	}
	if fb == nil {
		fb = &fallback.Dispatcher{Logger: logger}
	}
	return &Runner{Crawler: c, Matcher: m, Fallback: fb, Logger: logger}
}

// Execute runs a full pass.
//
// Errors from individual manifests, candidates and copies are logged and
// reflected in the Result; Execute itself fails only on invalid input, when
// there is nothing to request, when the package manager fails, or when ctx is
// canceled. The Result is non-nil whenever input was valid.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	local, err := manifest.LoadLocal(opts.ProjectDir)
	if err != nil {
		return nil, err
	}
	local.SetInstallDir(opts.InstallDir)

	specs, err := requestedSpecs(opts.Specs, local)
	if err != nil {
		return nil, err
	}
	result := &Result{Requested: specs}

	// Fast path
	var pending []depspec.Spec
	for _, s := range specs {
		if local.Installed(s.Name) {
			result.Satisfied = append(result.Satisfied, s)
			continue
		}
		pending = append(pending, s)
	}
	if len(result.Satisfied) > 0 {
		r.Logger.Info("already installed", "count", len(result.Satisfied))
	}
	if len(pending) == 0 {
		return result, nil
	}

	// Stage 1: Crawl
	roots := opts.Roots
	if len(roots) == 0 {
		roots = crawl.DefaultRoots()
	}
	crawlStart := time.Now()
	observability.Pipeline().OnCrawlStart(ctx, roots)
	manifests, err := r.Crawler.Crawl(ctx, roots)
	result.Stats.CrawlTime = time.Since(crawlStart)
	observability.Pipeline().OnCrawlComplete(ctx, len(manifests), result.Stats.CrawlTime, err)
	if err != nil {
		return result, err
	}
	result.Stats.Manifests = len(manifests)
	r.Logger.Info("crawled manifests",
		"roots", len(roots),
		"manifests", len(manifests),
		"duration", result.Stats.CrawlTime)

	// Stage 2: Match and resolve
	matchStart := time.Now()
	candidates, err := r.Matcher.Match(ctx, manifests, pending)
	if err != nil {
		return result, err
	}
	result.Resolved = resolve.Resolve(pending, candidates)
	result.Stats.Candidates = len(candidates)
	result.Stats.MatchTime = time.Since(matchStart)
	r.Logger.Info("matched candidates",
		"candidates", len(candidates),
		"resolved", len(result.Resolved),
		"duration", result.Stats.MatchTime)

	// Stage 3: Install
	if len(result.Resolved) > 0 {
		if err := r.install(ctx, local, opts, result); err != nil {
			return result, err
		}
	}

	// Stage 4: Fallback
	resolved := resolve.Names(result.Resolved)
	for _, s := range pending {
		if !resolved[s.Name] {
			result.Remainder = append(result.Remainder, s)
		}
	}
	if len(result.Remainder) == 0 {
		return result, nil
	}
	if opts.DryRun {
		r.Logger.Info("would run package manager", "deps", depspec.Strings(result.Remainder))
		return result, nil
	}
	fallbackStart := time.Now()
	err = r.Fallback.Run(ctx, result.Remainder)
	result.Stats.FallbackTime = time.Since(fallbackStart)
	if err != nil {
		return result, err
	}
	r.Logger.Info("package manager finished",
		"deps", len(result.Remainder),
		"duration", result.Stats.FallbackTime)
	return result, nil
}

// install runs the installer, or logs the plan in a dry run. Only context
// cancellation is returned; a manifest write failure lands in the result.
func (r *Runner) install(ctx context.Context, local *manifest.Local, opts Options, result *Result) error {
	if opts.DryRun {
		for _, res := range result.Resolved {
			r.Logger.Info("would install", "name", res.Name, "version", res.Version, "from", res.Path)
		}
		return nil
	}

	installStart := time.Now()
	report, err := install.New(local, install.Options{Logger: r.Logger}).Install(ctx, result.Resolved)
	result.Install = report
	result.Stats.InstallTime = time.Since(installStart)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		result.ManifestErr = err
		r.Logger.Error("could not update manifest", "path", local.Path(), "err", err)
	}
	r.Logger.Info("installed from local copies",
		"installed", len(report.Installed),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"duration", result.Stats.InstallTime)
	return nil
}

// requestedSpecs parses ids, or falls back to the project's dependencies.
func requestedSpecs(ids []string, local *manifest.Local) ([]depspec.Spec, error) {
	if len(ids) > 0 {
		return depspec.ParseAll(ids)
	}
	if !local.Exists() {
		return nil, errors.New(errors.ErrCodeNoInput,
			"no dependencies given and no %s in %s", manifest.FileName, local.Dir())
	}
	specs := depspec.FromDependencies(local.Dependencies())
	for _, s := range specs {
		if err := errors.ValidateNpmPackageName(s.Name); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "%s", local.Path())
		}
	}
	return specs, nil
}
