// Package match finds installed copies of requested dependencies next to
// discovered manifests.
//
// A manifest contributes a [resolve.Candidate] for a spec when it declares the
// dependency in any of its groups and the sibling install directory holds a
// directory for it. The candidate's version is the declared version with its
// range marker stripped, so "^1.3.0" yields "1.3.0".
//
// Manifests are processed in fixed-size batches. Files within a batch are read
// concurrently; batches run one after another and their candidates are merged
// in manifest order, so the first candidate for a name always comes from the
// earliest manifest in crawl order.
package match

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pkgreuse/pkg/depspec"
	"github.com/matzehuels/pkgreuse/pkg/manifest"
	"github.com/matzehuels/pkgreuse/pkg/observability"
	"github.com/matzehuels/pkgreuse/pkg/resolve"
	"github.com/matzehuels/pkgreuse/pkg/version"
)

// DefaultBatchSize is the number of manifests analyzed per batch.
const DefaultBatchSize = 64

// Options configures a Matcher.
type Options struct {
	BatchSize  int         // Manifests per batch (default: DefaultBatchSize)
	InstallDir string      // Install directory name (default: node_modules)
	Logger     *log.Logger // Logger (default: log.Default())
}

// Matcher turns manifest paths into candidates. It is safe for concurrent use.
type Matcher struct {
	batchSize  int
	installDir string
	logger     *log.Logger
}

// New creates a Matcher, filling unset options with defaults.
func New(opts Options) *Matcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.InstallDir == "" {
		opts.InstallDir = manifest.InstallDir
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Matcher{
		batchSize:  opts.BatchSize,
		installDir: opts.InstallDir,
		logger:     opts.Logger,
	}
}

// Match analyzes manifests for the given specs and returns every candidate in
// discovery order.
//
// Scanning stops early only when every spec is constrained and has already
// been matched; an unconstrained spec needs every manifest to find its
// highest version. The context is checked between batches and before each
// manifest read.
func (m *Matcher) Match(ctx context.Context, manifests []string, specs []depspec.Spec) ([]resolve.Candidate, error) {
	pending := make([]depspec.Spec, len(specs))
	copy(pending, specs)

	var found []resolve.Candidate
	for start, batch := 0, 0; start < len(manifests) && len(pending) > 0; start, batch = start+m.batchSize, batch+1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+m.batchSize, len(manifests))

		perManifest, err := m.matchBatch(ctx, manifests[start:end], pending)
		if err != nil {
			return nil, err
		}

		before := len(found)
		for _, cands := range perManifest {
			found = append(found, cands...)
		}
		pending = unsatisfied(pending, found[before:])

		observability.Pipeline().OnMatchBatch(ctx, batch, end-start, len(found)-before)
		m.logger.Debug("batch matched", "batch", batch, "manifests", end-start, "candidates", len(found)-before)
	}
	return found, nil
}

// matchBatch analyzes one batch concurrently. Slot i of the result holds the
// candidates of batch[i].
func (m *Matcher) matchBatch(ctx context.Context, batch []string, specs []depspec.Spec) ([][]resolve.Candidate, error) {
	out := make([][]resolve.Candidate, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.batchSize)
	for i, path := range batch {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = m.analyze(path, specs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// analyze reads one manifest and returns its candidates for specs. Unreadable
// manifests yield nothing.
func (m *Matcher) analyze(path string, specs []depspec.Spec) []resolve.Candidate {
	rec, err := manifest.Read(path)
	if err != nil {
		m.logger.Debug("skipping manifest", "path", path, "err", err)
		return nil
	}

	var cands []resolve.Candidate
	for _, spec := range specs {
		declared, ok := rec.Dependencies[spec.Name]
		if !ok {
			continue
		}
		ver := version.Normalize(declared)
		if !spec.Accepts(ver) {
			continue
		}
		dir := rec.InstalledPath(m.installDir, spec.Name)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		cands = append(cands, resolve.Candidate{
			Name:     spec.Name,
			Version:  ver,
			Dir:      dir,
			Manifest: rec.Path,
		})
	}
	return cands
}

// unsatisfied drops constrained specs that gained a candidate. Unconstrained
// specs always stay pending.
func unsatisfied(specs []depspec.Spec, found []resolve.Candidate) []depspec.Spec {
	matched := make(map[string]bool, len(found))
	for _, c := range found {
		matched[c.Name] = true
	}
	out := specs[:0:0]
	for _, s := range specs {
		if s.Constrained() && matched[s.Name] {
			continue
		}
		out = append(out, s)
	}
	return out
}
