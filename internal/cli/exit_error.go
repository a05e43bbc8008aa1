package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/fang"

	pkgerrors "github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/fallback"
)

// ExitInterrupted is the shell convention for a run stopped by SIGINT.
const ExitInterrupted = 130

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitError attaches the package manager's exit status to err when it has one.
func exitError(err error) error {
	if code, ok := fallback.ExitCode(err); ok && code > 0 {
		return &ExitError{Code: code, Err: err}
	}
	return err
}

// ExitCode maps the error returned by the root command to a process exit
// status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// ErrorHandler prints command errors through fang. Interrupts print nothing;
// coded errors print their message without the code prefix.
func ErrorHandler(w io.Writer, styles fang.Styles, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	fang.DefaultErrorHandler(w, styles, errors.New(pkgerrors.UserMessage(err)))
}
