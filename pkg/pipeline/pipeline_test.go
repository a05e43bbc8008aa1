package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pkgreuse/pkg/crawl"
	"github.com/matzehuels/pkgreuse/pkg/depspec"
	pkgerrors "github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/match"
)

// recorder is a fallback.Runner that records its calls.
type recorder struct {
	calls [][]string
	err   error
}

func (r *recorder) Run(_ context.Context, specs []depspec.Spec) error {
	r.calls = append(r.calls, depspec.Strings(specs))
	return r.err
}

// fixture is a workspace with a root to crawl and an empty project outside it.
type fixture struct {
	t       *testing.T
	root    string
	project string
	fb      *recorder
	runner  *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		t:       t,
		root:    filepath.Join(base, "projects"),
		project: filepath.Join(base, "app"),
		fb:      &recorder{},
	}
	for _, dir := range []string{f.root, f.project} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	logger := log.New(io.Discard)
	f.runner = NewRunner(
		crawl.New(crawl.Options{Logger: logger}),
		match.New(match.Options{BatchSize: 2, Logger: logger}),
		f.fb,
		logger,
	)
	return f
}

// existing creates projects/<dir> declaring name@declared, with an installed
// copy of name holding a marker file.
func (f *fixture) existing(dir, name, declared string) string {
	f.t.Helper()
	pdir := filepath.Join(f.root, dir)
	installed := filepath.Join(pdir, "node_modules", filepath.FromSlash(name))
	if err := os.MkdirAll(installed, 0o755); err != nil {
		f.t.Fatal(err)
	}
	body := `{"dependencies": {"` + name + `": "` + declared + `"}}`
	if err := os.WriteFile(filepath.Join(pdir, "package.json"), []byte(body), 0o644); err != nil {
		f.t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(installed, "marker"), []byte(dir), 0o644); err != nil {
		f.t.Fatal(err)
	}
	return installed
}

func (f *fixture) run(specs ...string) (*Result, error) {
	f.t.Helper()
	return f.runner.Execute(context.Background(), Options{
		Specs:      specs,
		ProjectDir: f.project,
		Roots:      []string{f.root},
	})
}

func (f *fixture) manifest() string {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.project, "package.json"))
	if err != nil {
		f.t.Fatal(err)
	}
	return string(data)
}

func (f *fixture) marker(name string) string {
	f.t.Helper()
	data, err := os.ReadFile(filepath.Join(f.project, "node_modules", filepath.FromSlash(name), "marker"))
	if err != nil {
		f.t.Fatalf("reading %s marker: %v", name, err)
	}
	return string(data)
}

func TestExecuteSingleUnconstrained(t *testing.T) {
	f := newFixture(t)
	src := f.existing("a", "left-pad", "^1.3.0")

	result, err := f.run("left-pad")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []struct{ name, path, version string }{{"left-pad", src, "1.3.0"}}
	if len(result.Resolved) != 1 ||
		result.Resolved[0].Name != want[0].name ||
		result.Resolved[0].Path != want[0].path ||
		result.Resolved[0].Version != want[0].version {
		t.Errorf("Resolved = %+v, want %+v", result.Resolved, want)
	}
	if got := f.manifest(); got != "{\n  \"dependencies\": {\n    \"left-pad\": \"1.3.0\"\n  }\n}\n" {
		t.Errorf("manifest =\n%s", got)
	}
	if f.marker("left-pad") != "a" {
		t.Error("installed copy did not come from project a")
	}
	if len(f.fb.calls) != 0 {
		t.Errorf("fallback called: %v", f.fb.calls)
	}
}

func TestExecuteConstrainedPicksExact(t *testing.T) {
	f := newFixture(t)
	f.existing("a", "react", "16.0.0")
	f.existing("b", "react", "17.0.2")

	result, err := f.run("react@17.0.2")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Resolved) != 1 || result.Resolved[0].Version != "17.0.2" {
		t.Fatalf("Resolved = %+v", result.Resolved)
	}
	if f.marker("react") != "b" {
		t.Error("react@17.0.2 should come from project b")
	}
}

func TestExecuteUnconstrainedPicksMaxRegardlessOfOrder(t *testing.T) {
	f := newFixture(t)
	f.existing("a", "lodash", "4.17.21")
	f.existing("b", "lodash", "^3.10.1")
	f.existing("c", "lodash", "~4.17.0")

	result, err := f.run("lodash")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Resolved) != 1 || result.Resolved[0].Version != "4.17.21" {
		t.Fatalf("Resolved = %+v", result.Resolved)
	}
	if f.marker("lodash") != "a" {
		t.Error("lodash should come from project a")
	}
}

func TestExecutePartialFallback(t *testing.T) {
	f := newFixture(t)
	f.existing("a", "left-pad", "1.3.0")

	result, err := f.run("left-pad", "unknown-pkg")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Install == nil || len(result.Install.Installed) != 1 {
		t.Errorf("Install = %+v", result.Install)
	}
	if !reflect.DeepEqual(f.fb.calls, [][]string{{"unknown-pkg"}}) {
		t.Errorf("fallback calls = %v, want [[unknown-pkg]]", f.fb.calls)
	}
}

func TestExecuteProjectInsideRootKeepsOwnCopy(t *testing.T) {
	f := newFixture(t)
	own := filepath.Join(f.root, "app")
	installed := filepath.Join(own, "node_modules", "left-pad")
	if err := os.MkdirAll(installed, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"devDependencies": {"left-pad": "^1.3.0"}}`
	if err := os.WriteFile(filepath.Join(own, "package.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := f.runner.Execute(context.Background(), Options{
		Specs:      []string{"left-pad"},
		ProjectDir: own,
		Roots:      []string{f.root},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Install == nil || len(result.Install.Failed) != 0 || len(result.Install.Skipped) != 1 {
		t.Fatalf("Install = %+v, want the own copy skipped", result.Install)
	}
	data, err := os.ReadFile(filepath.Join(own, "package.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"dependencies": {`) || !strings.Contains(string(data), `"left-pad": "1.3.0"`) {
		t.Errorf("package.json = %s", data)
	}
	if len(f.fb.calls) != 0 {
		t.Errorf("fallback called: %v", f.fb.calls)
	}
}

func TestExecuteNothingFound(t *testing.T) {
	f := newFixture(t)
	f.existing("a", "other", "1.0.0")

	result, err := f.run("left-pad", "react@17.0.2")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Install != nil {
		t.Error("installer ran with nothing resolved")
	}
	if _, err := os.Stat(filepath.Join(f.project, "package.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("manifest written with nothing installed: %v", err)
	}
	if !reflect.DeepEqual(f.fb.calls, [][]string{{"left-pad", "react@17.0.2"}}) {
		t.Errorf("fallback calls = %v", f.fb.calls)
	}
}

func TestExecuteIdempotent(t *testing.T) {
	f := newFixture(t)
	f.existing("a", "left-pad", "1.3.0")

	if _, err := f.run("left-pad"); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	before := f.manifest()

	result, err := f.run("left-pad")
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if len(result.Satisfied) != 1 || result.Install != nil {
		t.Errorf("second pass: satisfied=%v install=%+v", result.Satisfied, result.Install)
	}
	if after := f.manifest(); after != before {
		t.Errorf("manifest changed:\n%s\n->\n%s", before, after)
	}
	if len(f.fb.calls) != 0 {
		t.Errorf("fallback called: %v", f.fb.calls)
	}
}

func TestExecuteFastPathNeverFallsBack(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(filepath.Join(f.project, "node_modules", "left-pad"), 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"name": "app", "dependencies": {"left-pad": "^1.3.0"}}`
	if err := os.WriteFile(filepath.Join(f.project, "package.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := f.run("left-pad", "unknown-pkg")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Satisfied) != 1 || result.Satisfied[0].Name != "left-pad" {
		t.Errorf("Satisfied = %v", result.Satisfied)
	}
	if !reflect.DeepEqual(f.fb.calls, [][]string{{"unknown-pkg"}}) {
		t.Errorf("fallback calls = %v, want [[unknown-pkg]]", f.fb.calls)
	}
}

func TestExecuteFromProjectManifest(t *testing.T) {
	f := newFixture(t)
	f.existing("a", "left-pad", "1.3.0")
	body := `{"name": "app", "dependencies": {"left-pad": "^1.3.0", "react": "17.0.2"}}`
	if err := os.WriteFile(filepath.Join(f.project, "package.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := f.run()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := []depspec.Spec{{Name: "left-pad"}, {Name: "react", Version: "17.0.2"}}
	if !reflect.DeepEqual(result.Requested, want) {
		t.Errorf("Requested = %+v, want %+v", result.Requested, want)
	}
	if !reflect.DeepEqual(f.fb.calls, [][]string{{"react@17.0.2"}}) {
		t.Errorf("fallback calls = %v", f.fb.calls)
	}
}

func TestExecuteNoInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.run()
	if !pkgerrors.Is(err, pkgerrors.ErrCodeNoInput) {
		t.Errorf("Execute() error = %v, want NO_INPUT", err)
	}
}

func TestExecuteInvalidSpec(t *testing.T) {
	f := newFixture(t)
	_, err := f.run("../escape")
	if !pkgerrors.Is(err, pkgerrors.ErrCodeInvalidPackage) {
		t.Errorf("Execute error = %v, want INVALID_PACKAGE", err)
	}
}

func TestExecuteFallbackFailure(t *testing.T) {
	f := newFixture(t)
	f.fb.err = pkgerrors.New(pkgerrors.ErrCodeFallback, "npm exited with status 1")

	result, err := f.run("unknown-pkg")
	if !pkgerrors.Is(err, pkgerrors.ErrCodeFallback) {
		t.Fatalf("Execute error = %v, want FALLBACK_FAILED", err)
	}
	if result == nil || len(result.Remainder) != 1 {
		t.Errorf("Result = %+v", result)
	}
}

func TestExecuteDryRun(t *testing.T) {
	f := newFixture(t)
	f.existing("a", "left-pad", "1.3.0")

	result, err := f.runner.Execute(context.Background(), Options{
		Specs:      []string{"left-pad", "unknown-pkg"},
		ProjectDir: f.project,
		Roots:      []string{f.root},
		DryRun:     true,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Resolved) != 1 || len(result.Remainder) != 1 {
		t.Errorf("Resolved = %+v, Remainder = %+v", result.Resolved, result.Remainder)
	}
	if _, err := os.Stat(filepath.Join(f.project, "node_modules")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dry run created node_modules: %v", err)
	}
	if len(f.fb.calls) != 0 {
		t.Errorf("dry run called fallback: %v", f.fb.calls)
	}
}

func TestExecuteCanceled(t *testing.T) {
	f := newFixture(t)
	f.existing("a", "left-pad", "1.3.0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.runner.Execute(ctx, Options{
		Specs:      []string{"left-pad"},
		ProjectDir: f.project,
		Roots:      []string{f.root},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute error = %v, want context.Canceled", err)
	}
	if len(f.fb.calls) != 0 {
		t.Errorf("fallback called after cancel: %v", f.fb.calls)
	}
}

func TestResultReused(t *testing.T) {
	f := newFixture(t)
	f.existing("a", "left-pad", "1.3.0")

	result, err := f.run("left-pad", "unknown-pkg")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := result.Reused(); got != 1 {
		t.Errorf("Reused = %d, want 1", got)
	}
}
