package resolve

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matzehuels/pkgreuse/pkg/depspec"
	"github.com/matzehuels/pkgreuse/pkg/errors"
)

// candidate creates an installed copy under a fresh project directory.
func candidate(t *testing.T, name, ver string) Candidate {
	t.Helper()
	project := t.TempDir()
	dir := filepath.Join(project, "node_modules", filepath.FromSlash(name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return Candidate{
		Name:     name,
		Version:  ver,
		Dir:      dir,
		Manifest: filepath.Join(project, "package.json"),
	}
}

func stale(name, ver string) Candidate {
	return Candidate{Name: name, Version: ver, Dir: filepath.Join(os.TempDir(), "pkgreuse-missing", name)}
}

func TestResolveUnconstrainedPicksMax(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		want     int
	}{
		{"ascending", []string{"1.0.0", "1.3.0"}, 1},
		{"descending", []string{"2.0.0", "1.3.0"}, 0},
		{"tie keeps first", []string{"1.3.0", "1.3.0"}, 0},
		{"invalid ranks lowest", []string{"latest", "0.0.1"}, 1},
		{"all invalid keeps first", []string{"next", "latest"}, 0},
		{"prerelease below release", []string{"2.0.0-beta.1", "1.9.9", "2.0.0"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cands []Candidate
			for _, v := range tt.versions {
				cands = append(cands, candidate(t, "left-pad", v))
			}
			got := Resolve([]depspec.Spec{{Name: "left-pad"}}, cands)
			if len(got) != 1 {
				t.Fatalf("Resolve returned %d results, want 1", len(got))
			}
			want := cands[tt.want]
			if got[0].Path != want.Dir || got[0].Version != want.Version {
				t.Errorf("Resolve = %+v, want %s from %s", got[0], want.Version, want.Dir)
			}
		})
	}
}

func TestResolveConstrainedExactOnly(t *testing.T) {
	old := candidate(t, "react", "16.0.0")
	exact := candidate(t, "react", "17.0.2")
	later := candidate(t, "react", "17.0.2")

	got := Resolve([]depspec.Spec{{Name: "react", Version: "17.0.2"}}, []Candidate{old, exact, later})
	want := []Result{{Name: "react", Path: exact.Dir, Version: "17.0.2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}

	got = Resolve([]depspec.Spec{{Name: "react", Version: "18.0.0"}}, []Candidate{old, exact})
	if len(got) != 0 {
		t.Errorf("Resolve(react@18.0.0) = %+v, want nothing", got)
	}
}

func TestResolveSkipsStale(t *testing.T) {
	live := candidate(t, "left-pad", "1.0.0")
	gone := stale("left-pad", "9.9.9")

	got := Resolve([]depspec.Spec{{Name: "left-pad"}}, []Candidate{gone, live})
	if len(got) != 1 || got[0].Path != live.Dir {
		t.Errorf("Resolve = %+v, want live candidate %s", got, live.Dir)
	}

	got = Resolve([]depspec.Spec{{Name: "left-pad", Version: "9.9.9"}}, []Candidate{gone})
	if len(got) != 0 {
		t.Errorf("Resolve(stale only) = %+v, want nothing", got)
	}
}

func TestResolveOrderAndUniqueness(t *testing.T) {
	a := candidate(t, "a", "1.0.0")
	b1 := candidate(t, "@scope/b", "1.0.0")
	b2 := candidate(t, "@scope/b", "2.0.0")

	specs := []depspec.Spec{{Name: "@scope/b"}, {Name: "missing"}, {Name: "a"}}
	got := Resolve(specs, []Candidate{a, b1, b2})

	var names []string
	for _, r := range got {
		names = append(names, r.Name)
	}
	if !reflect.DeepEqual(names, []string{"@scope/b", "a"}) {
		t.Errorf("Resolve order = %v, want [@scope/b a]", names)
	}
	if got[0].Version != "2.0.0" {
		t.Errorf("@scope/b version = %s, want 2.0.0", got[0].Version)
	}
	if n := Names(got); !n["a"] || !n["@scope/b"] || n["missing"] {
		t.Errorf("Names = %v", n)
	}
}

func TestLive(t *testing.T) {
	if err := Live(candidate(t, "x", "1.0.0")); err != nil {
		t.Errorf("Live(existing) = %v", err)
	}
	if err := Live(stale("x", "1.0.0")); !errors.Is(err, errors.ErrCodeStaleCandidate) {
		t.Errorf("Live(missing) = %v, want STALE_CANDIDATE", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Live(Candidate{Name: "x", Dir: file}); !errors.Is(err, errors.ErrCodeStaleCandidate) {
		t.Errorf("Live(file) = %v, want STALE_CANDIDATE", err)
	}
}
