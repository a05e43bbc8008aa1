// Package fallback hands dependencies that could not be reused locally to an
// external package manager.
//
// The package manager runs in the project directory with the caller's stdio,
// in its own process group. Canceling the context passed to [Dispatcher.Run]
// kills the whole group, so install scripts spawned by npm, yarn or pnpm do
// not outlive an interrupted run.
package fallback

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pkgreuse/pkg/depspec"
	pkgerrors "github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/observability"
)

// Manager is a supported package manager.
type Manager string

// Supported package managers.
const (
	NPM  Manager = "npm"
	Yarn Manager = "yarn"
	PNPM Manager = "pnpm"
)

// DefaultManager is used when no manager is configured.
const DefaultManager = NPM

// waitDelay bounds how long Run waits for output pipes after the process
// group has been killed.
const waitDelay = 5 * time.Second

// Managers lists the supported managers.
func Managers() []Manager { return []Manager{NPM, Yarn, PNPM} }

// ParseManager validates s as a manager name. The empty string yields
// DefaultManager.
func ParseManager(s string) (Manager, error) {
	switch m := Manager(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DefaultManager, nil
	case NPM, Yarn, PNPM:
		return m, nil
	default:
		return "", pkgerrors.New(pkgerrors.ErrCodeInvalidInput,
			"unknown package manager %q (want npm, yarn or pnpm)", s)
	}
}

// Verb returns the subcommand that adds dependencies.
func (m Manager) Verb() string {
	if m == NPM {
		return "install"
	}
	return "add"
}

// Args returns the argument list for installing ids.
func (m Manager) Args(ids []string) []string {
	return append([]string{m.Verb()}, ids...)
}

// Runner installs specs through a package manager. [Dispatcher] is the
// process-backed implementation.
type Runner interface {
	Run(ctx context.Context, specs []depspec.Spec) error
}

// Dispatcher runs a package manager as a child process.
type Dispatcher struct {
	Manager Manager     // Package manager (default: npm)
	Binary  string      // Executable override; defaults to the manager name
	Dir     string      // Working directory (project directory)
	Stdin   io.Reader   // Default: os.Stdin
	Stdout  io.Writer   // Default: os.Stdout
	Stderr  io.Writer   // Default: os.Stderr
	Logger  *log.Logger // Default: log.Default()
}

// Run installs specs and waits for the package manager to exit. An empty
// specs list is a no-op.
//
// A non-zero exit or a failure to start returns an ErrCodeFallback error whose
// cause is the *exec.ExitError (when the process ran), so callers can recover
// the exit code. If ctx is canceled the process group is killed and ctx.Err()
// is returned.
func (d *Dispatcher) Run(ctx context.Context, specs []depspec.Spec) error {
	if len(specs) == 0 {
		return nil
	}
	mgr := d.Manager
	if mgr == "" {
		mgr = DefaultManager
	}
	bin := d.Binary
	if bin == "" {
		bin = string(mgr)
	}
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}

	ids := depspec.Strings(specs)
	cmd := exec.CommandContext(ctx, bin, mgr.Args(ids)...)
	cmd.Dir = d.Dir
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if d.Stdin != nil {
		cmd.Stdin = d.Stdin
	}
	if d.Stdout != nil {
		cmd.Stdout = d.Stdout
	}
	if d.Stderr != nil {
		cmd.Stderr = d.Stderr
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	logger.Info("running package manager", "manager", mgr, "args", strings.Join(cmd.Args[1:], " "))
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		observability.Pipeline().OnFallback(ctx, string(mgr), ids, elapsed, ctxErr)
		return ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = pkgerrors.Wrap(pkgerrors.ErrCodeFallback, exitErr, "%s exited with status %d", mgr, exitErr.ExitCode())
		} else {
			err = pkgerrors.Wrap(pkgerrors.ErrCodeFallback, err, "start %s", mgr)
		}
	}
	observability.Pipeline().OnFallback(ctx, string(mgr), ids, elapsed, err)
	return err
}

// ExitCode extracts the package manager's exit code from an error returned by
// Run. ok is false when the process never exited normally.
func ExitCode(err error) (code int, ok bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

var _ Runner = (*Dispatcher)(nil)
