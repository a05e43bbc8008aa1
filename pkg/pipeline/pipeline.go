// Package pipeline runs a complete reuse pass for one project.
//
// This package wires the stages together so the CLI (and tests) drive a single
// entry point and get identical behavior.
//
// # Architecture
//
// A pass runs these stages in order:
//
//  1. Input: requested specs from the caller, or the project's own
//     package.json dependencies when none are given
//  2. Fast path: specs already recorded and installed in the project drop out
//  3. Crawl: find every package.json under the roots
//  4. Match: collect on-disk candidates for the pending specs
//  5. Resolve: pick one candidate per spec
//  6. Install: copy the picks into the project and record them
//  7. Fallback: hand whatever is left to npm, yarn or pnpm
//
// Stages 3-6 are skipped when the fast path satisfies everything, and stage 6
// is skipped when nothing resolved.
//
// # Usage
//
//	runner := pipeline.NewRunner(crawler, matcher, &fallback.Dispatcher{Dir: dir}, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Specs:      []string{"left-pad", "react@17.0.2"},
//	    ProjectDir: dir,
//	})
package pipeline

import (
	"path/filepath"
	"time"

	"github.com/matzehuels/pkgreuse/pkg/depspec"
	"github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/install"
	"github.com/matzehuels/pkgreuse/pkg/manifest"
	"github.com/matzehuels/pkgreuse/pkg/resolve"
)

// =============================================================================
// Options - Pass Configuration
// =============================================================================

// Options configures one reuse pass.
type Options struct {
	// Specs are the requested identifiers ("name" or "name@version"). When
	// empty, the project's package.json dependencies are requested instead.
	Specs []string

	// ProjectDir holds the package.json and install directory to update.
	// Defaults to the current directory.
	ProjectDir string

	// Roots are crawled for manifests. Empty means the platform defaults.
	Roots []string

	// InstallDir is the install directory name (default: node_modules).
	InstallDir string

	// DryRun resolves and reports without copying, writing or spawning.
	DryRun bool

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ValidateAndSetDefaults resolves the project directory and applies defaults.
// It is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.ProjectDir == "" {
		o.ProjectDir = "."
	}
	abs, err := filepath.Abs(o.ProjectDir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "project directory %s", o.ProjectDir)
	}
	o.ProjectDir = abs
	if o.InstallDir == "" {
		o.InstallDir = manifest.InstallDir
	}
	if err := errors.ValidatePackageName(o.InstallDir); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "install directory")
	}
	o.validated = true
	return nil
}

// =============================================================================
// Result
// =============================================================================

// Result describes what a pass did.
type Result struct {
	// Requested are the parsed specs of the pass.
	Requested []depspec.Spec

	// Satisfied were already installed in the project (fast path).
	Satisfied []depspec.Spec

	// Resolved holds the candidate picked for each reusable spec.
	Resolved []resolve.Result

	// Install is the installer report; nil when install did not run.
	Install *install.Report

	// ManifestErr is set when the project's package.json could not be saved.
	// Copied files are kept.
	ManifestErr error

	// Remainder went (or, in a dry run, would go) to the package manager.
	Remainder []depspec.Spec

	// Stats contains timing and size information.
	Stats Stats
}

// Stats contains pass execution statistics.
type Stats struct {
	Manifests    int
	Candidates   int
	CrawlTime    time.Duration
	MatchTime    time.Duration
	InstallTime  time.Duration
	FallbackTime time.Duration
}

// Reused reports how many dependencies were satisfied without the package
// manager.
func (r *Result) Reused() int {
	n := len(r.Satisfied)
	if r.Install != nil {
		n += len(r.Install.Installed) + len(r.Install.Skipped)
	}
	return n
}
