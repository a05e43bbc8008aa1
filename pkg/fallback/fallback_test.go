package fallback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pkgreuse/pkg/depspec"
	pkgerrors "github.com/matzehuels/pkgreuse/pkg/errors"
)

func TestParseManager(t *testing.T) {
	tests := []struct {
		in      string
		want    Manager
		wantErr bool
	}{
		{"", NPM, false},
		{"npm", NPM, false},
		{"Yarn", Yarn, false},
		{" pnpm ", PNPM, false},
		{"bun", "", true},
	}
	for _, tt := range tests {
		got, err := ParseManager(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseManager(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr && !pkgerrors.Is(err, pkgerrors.ErrCodeInvalidInput) {
			t.Errorf("ParseManager(%q) error code = %s", tt.in, pkgerrors.GetCode(err))
		}
		if got != tt.want {
			t.Errorf("ParseManager(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestManagerArgs(t *testing.T) {
	ids := []string{"left-pad", "react@17.0.2"}
	tests := []struct {
		m    Manager
		want []string
	}{
		{NPM, []string{"install", "left-pad", "react@17.0.2"}},
		{Yarn, []string{"add", "left-pad", "react@17.0.2"}},
		{PNPM, []string{"add", "left-pad", "react@17.0.2"}},
	}
	for _, tt := range tests {
		if got := tt.m.Args(ids); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s.Args = %v, want %v", tt.m, got, tt.want)
		}
	}
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX utilities")
	}
}

// script writes an executable shell script and returns its path.
func script(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pm")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func quiet() *log.Logger { return log.New(io.Discard) }

func TestRunPassesArgsAndDir(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	var out bytes.Buffer
	d := &Dispatcher{
		Manager: Yarn,
		Binary:  script(t, `echo "$(pwd)|$*"`),
		Dir:     dir,
		Stdin:   strings.NewReader(""),
		Stdout:  &out,
		Stderr:  io.Discard,
		Logger:  quiet(),
	}
	specs := []depspec.Spec{{Name: "unknown-pkg"}, {Name: "@scope/x", Version: "1.0.0"}}
	if err := d.Run(context.Background(), specs); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantDir, _ := filepath.EvalSymlinks(dir)
	got := strings.TrimSpace(out.String())
	pwd, args, _ := strings.Cut(got, "|")
	if gotDir, _ := filepath.EvalSymlinks(pwd); gotDir != wantDir {
		t.Errorf("ran in %s, want %s", pwd, dir)
	}
	if args != "add unknown-pkg @scope/x@1.0.0" {
		t.Errorf("args = %q", args)
	}
}

func TestRunEmptyIsNoop(t *testing.T) {
	d := &Dispatcher{Binary: filepath.Join(t.TempDir(), "does-not-exist"), Logger: quiet()}
	if err := d.Run(context.Background(), nil); err != nil {
		t.Errorf("Run(nil) = %v", err)
	}
}

func TestRunExitCode(t *testing.T) {
	skipOnWindows(t)
	d := &Dispatcher{Binary: script(t, "exit 3"), Stdout: io.Discard, Stderr: io.Discard, Logger: quiet()}

	err := d.Run(context.Background(), []depspec.Spec{{Name: "x"}})
	if !pkgerrors.Is(err, pkgerrors.ErrCodeFallback) {
		t.Fatalf("Run error = %v, want FALLBACK_FAILED", err)
	}
	if code, ok := ExitCode(err); !ok || code != 3 {
		t.Errorf("ExitCode = %d, %v; want 3, true", code, ok)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	d := &Dispatcher{Binary: filepath.Join(t.TempDir(), "does-not-exist"), Logger: quiet()}

	err := d.Run(context.Background(), []depspec.Spec{{Name: "x"}})
	if !pkgerrors.Is(err, pkgerrors.ErrCodeFallback) {
		t.Fatalf("Run error = %v, want FALLBACK_FAILED", err)
	}
	if _, ok := ExitCode(err); ok {
		t.Error("spawn failure should carry no exit code")
	}
}

func TestRunCancelKillsProcessGroup(t *testing.T) {
	skipOnWindows(t)
	// The child keeps stdout open, so Run only returns promptly if the whole
	// group is killed.
	bin := script(t, "sleep 30 &\nwait")
	var out bytes.Buffer
	d := &Dispatcher{Binary: bin, Stdout: &out, Stderr: io.Discard, Logger: quiet()}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := d.Run(ctx, []depspec.Spec{{Name: "x"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > waitDelay {
		t.Errorf("Run took %v after cancel", elapsed)
	}
}

func TestExitCodeUnrelated(t *testing.T) {
	if _, ok := ExitCode(errors.New("boom")); ok {
		t.Error("ExitCode(plain error) should report false")
	}
}
