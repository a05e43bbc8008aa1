// Package install copies resolved dependencies into the project's install
// directory and records them in the project's package.json.
//
// Each copy is written to a hidden staging directory next to its target and
// renamed into place, so an interrupted run never leaves a half-copied package
// under its real name. Installation is sequential. Completed copies are never
// rolled back, even when the manifest cannot be saved afterwards.
package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	pkgerrors "github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/manifest"
	"github.com/matzehuels/pkgreuse/pkg/observability"
	"github.com/matzehuels/pkgreuse/pkg/resolve"
)

// stagingPrefix names in-progress copies. The leading dot keeps them out of
// every crawl.
const stagingPrefix = ".pkgreuse-"

// materializeFn performs the copy; tests replace it to simulate filesystem
// restrictions.
var materializeFn = materialize

// Options configures an Installer.
type Options struct {
	Logger *log.Logger // Logger (default: log.Default())
}

// Installer materializes results into a project. It is not safe for
// concurrent use.
type Installer struct {
	local  *manifest.Local
	logger *log.Logger
}

// New creates an Installer writing into local's project.
func New(local *manifest.Local, opts Options) *Installer {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Installer{local: local, logger: opts.Logger}
}

// Report summarizes an install pass.
type Report struct {
	Installed []resolve.Result // Copied (or soft-succeeded) and recorded
	Skipped   []resolve.Result // Already installed, or already in place at the target
	Failed    map[string]error // Keyed by dependency name
}

// Install processes results in order and then saves the local manifest.
//
// Per-dependency failures are collected in the report and never stop the
// pass. The returned error is either the context error, when ctx is canceled
// between dependencies, or an ErrCodeManifestWrite error from saving. The
// report is valid in both cases.
func (i *Installer) Install(ctx context.Context, results []resolve.Result) (*Report, error) {
	report := &Report{Failed: make(map[string]error)}

	for _, r := range results {
		if err := ctx.Err(); err != nil {
			if saveErr := i.local.Save(); saveErr != nil {
				i.logger.Error("saving manifest", "path", i.local.Path(), "err", saveErr)
			}
			return report, err
		}

		outcome, err := i.installOne(r)
		switch outcome {
		case observability.OutcomeSkipped:
			report.Skipped = append(report.Skipped, r)
			i.logger.Debug("already installed", "name", r.Name)
		case observability.OutcomeInstalled:
			report.Installed = append(report.Installed, r)
			i.logger.Info("installed", "name", r.Name, "version", r.Version, "from", r.Path)
		default:
			report.Failed[r.Name] = err
			i.logger.Warn("install failed", "name", r.Name, "err", err)
		}
		observability.Pipeline().OnInstall(ctx, r.Name, r.Version, outcome, err)
	}

	if err := i.local.Save(); err != nil {
		return report, err
	}
	return report, nil
}

// installOne installs a single result and reports its outcome.
func (i *Installer) installOne(r resolve.Result) (string, error) {
	target := i.local.InstallPath(r.Name)
	if i.local.Installed(r.Name) {
		return observability.OutcomeSkipped, nil
	}
	src, dst, err := realPaths(r.Path, target)
	if err != nil {
		return observability.OutcomeFailed, err
	}
	if src == dst {
		// The project's own copy, found under another dependency group.
		i.local.Set(r.Name, r.Version)
		return observability.OutcomeSkipped, nil
	}
	if err := checkContainment(src, dst); err != nil {
		return observability.OutcomeFailed, err
	}

	if err := materializeFn(r.Path, target); err != nil {
		if !crossDevice(err) {
			return observability.OutcomeFailed, pkgerrors.Wrap(pkgerrors.ErrCodeCopy, err, "copy %s", r.Name)
		}
		i.logger.Warn("recording despite copy restriction", "name", r.Name,
			"err", pkgerrors.Wrap(pkgerrors.ErrCodeCrossDevice, err, "copy %s", r.Name))
	}
	i.local.Set(r.Name, r.Version)
	return observability.OutcomeInstalled, nil
}

// materialize replaces target with a copy of src via a staging sibling.
func materialize(src, target string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}

	stage := filepath.Join(parent, stagingPrefix+uuid.NewString())
	if err := copyTree(src, stage); err != nil {
		_ = os.RemoveAll(stage)
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		_ = os.RemoveAll(stage)
		return err
	}
	if err := os.Rename(stage, target); err != nil {
		_ = os.RemoveAll(stage)
		return err
	}
	return nil
}

// realPaths returns src and target as absolute paths with symlinks
// evaluated, so that overlap is detected whichever path reached them.
func realPaths(src, target string) (string, string, error) {
	s, err := realPath(src)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.ErrCodeContainment, err, "resolve %s", src)
	}
	t, err := realPath(target)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.ErrCodeContainment, err, "resolve %s", target)
	}
	return s, t, nil
}

// realPath evaluates symlinks in the longest existing prefix of path and
// appends the rest unchanged. The target usually does not exist yet.
func realPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	var rest []string
	for dir := abs; ; {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
		dir = parent
	}
}

// checkContainment refuses copies where the resolved source and target
// overlap.
func checkContainment(s, t string) error {
	switch {
	case s == t:
		return pkgerrors.New(pkgerrors.ErrCodeContainment, "source is the target %s", t)
	case within(t, s):
		return pkgerrors.New(pkgerrors.ErrCodeContainment, "target %s is inside source %s", t, s)
	case within(s, t):
		return pkgerrors.New(pkgerrors.ErrCodeContainment, "source %s is inside target %s", s, t)
	}
	return nil
}

// within reports whether path lies strictly below dir.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// crossDevice reports whether err is a cross-device or unsupported-operation
// restriction.
func crossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, errors.ErrUnsupported)
}
