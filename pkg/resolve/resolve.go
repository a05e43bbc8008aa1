// Package resolve picks one on-disk installation per requested dependency.
//
// The matcher may find the same dependency next to many manifests. For a
// constrained spec the first exact match in discovery order is used. For an
// unconstrained spec every match competes and the highest semantic version
// wins; equal versions resolve to the first found, and versions that do not
// parse lose to every version that does.
//
// Candidates are re-checked on disk at selection time. A candidate whose
// directory has disappeared since discovery is stale and never selected.
package resolve

import (
	"os"

	"github.com/matzehuels/pkgreuse/pkg/depspec"
	"github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/version"
)

// Candidate is an installed copy of a dependency discovered next to a
// manifest.
type Candidate struct {
	Name     string // Dependency name
	Version  string // Normalized declared version
	Dir      string // Absolute path of the installed copy
	Manifest string // Manifest that declared the dependency
}

// Result is the copy selected for one dependency.
type Result struct {
	Name    string // Dependency name
	Path    string // Directory to copy from
	Version string // Version recorded in the local manifest
}

// Resolve selects at most one candidate per spec. Results follow the order of
// specs; specs with no live candidate are absent.
func Resolve(specs []depspec.Spec, candidates []Candidate) []Result {
	byName := make(map[string][]Candidate)
	for _, c := range candidates {
		byName[c.Name] = append(byName[c.Name], c)
	}

	results := make([]Result, 0, len(specs))
	for _, spec := range specs {
		c, ok := pick(spec, byName[spec.Name])
		if !ok {
			continue
		}
		results = append(results, Result{Name: c.Name, Path: c.Dir, Version: c.Version})
	}
	return results
}

// pick chooses among the candidates for a single spec.
func pick(spec depspec.Spec, found []Candidate) (Candidate, bool) {
	if spec.Constrained() {
		for _, c := range found {
			if spec.Accepts(c.Version) && Live(c) == nil {
				return c, true
			}
		}
		return Candidate{}, false
	}

	live := make([]Candidate, 0, len(found))
	versions := make([]string, 0, len(found))
	for _, c := range found {
		if Live(c) != nil {
			continue
		}
		live = append(live, c)
		versions = append(versions, c.Version)
	}
	idx, ok := version.Max(versions)
	if !ok {
		return Candidate{}, false
	}
	return live[idx], true
}

// Live checks that c's directory still exists. A missing or non-directory
// path yields an ErrCodeStaleCandidate error.
func Live(c Candidate) error {
	info, err := os.Stat(c.Dir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStaleCandidate, err, "%s@%s", c.Name, c.Version)
	}
	if !info.IsDir() {
		return errors.New(errors.ErrCodeStaleCandidate, "%s@%s: %s is not a directory", c.Name, c.Version, c.Dir)
	}
	return nil
}

// Names returns the set of names in results.
func Names(results []Result) map[string]bool {
	names := make(map[string]bool, len(results))
	for _, r := range results {
		names[r.Name] = true
	}
	return names
}
