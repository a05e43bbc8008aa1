// Package depspec parses requested dependency identifiers.
//
// An identifier is "name" or "name@version". Scoped npm names keep their
// leading '@', so "@babel/core@7.24.0" parses to name "@babel/core" and
// version "7.24.0". A Spec without a version is unconstrained: any local copy
// may satisfy it and the highest version wins. A Spec with a version is only
// satisfied by a copy whose declared version equals it exactly.
package depspec

import (
	"sort"
	"strings"

	"github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/version"
)

// Spec is a requested dependency. It is immutable once parsed.
type Spec struct {
	Name    string // Package name, e.g. "left-pad" or "@scope/pkg"
	Version string // Exact version constraint; empty means unconstrained
}

// Parse parses a single identifier and validates the package name.
func Parse(id string) (Spec, error) {
	id = strings.TrimSpace(id)
	name, ver := id, ""
	// Skip index 0 so the '@' of a scope is never taken as the separator.
	if i := strings.LastIndex(id, "@"); i > 0 {
		name, ver = id[:i], id[i+1:]
		if ver == "" {
			return Spec{}, errors.New(errors.ErrCodeInvalidPackage, "empty version in %q", id)
		}
	}
	if err := errors.ValidateNpmPackageName(name); err != nil {
		return Spec{}, err
	}
	return Spec{Name: name, Version: ver}, nil
}

// ParseAll parses every identifier, failing on the first invalid one.
// Duplicate names collapse to the first occurrence.
func ParseAll(ids []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		s, err := Parse(id)
		if err != nil {
			return nil, err
		}
		if seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		specs = append(specs, s)
	}
	return specs, nil
}

// FromDependencies builds specs from a manifest's dependency map. Range
// declarations ("^1.0.0", "~1.0.0") are requested unconstrained; anything else
// is requested at exactly the declared version. Output is sorted by name.
func FromDependencies(deps map[string]string) []Spec {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		raw := strings.TrimSpace(deps[name])
		s := Spec{Name: name}
		if raw != "" && !version.HasRangeMarker(raw) {
			s.Version = raw
		}
		specs = append(specs, s)
	}
	return specs
}

// Constrained reports whether s requires an exact version.
func (s Spec) Constrained() bool { return s.Version != "" }

// Accepts reports whether a candidate declared at ver may satisfy s. ver is
// expected to be already normalized; the comparison is exact.
func (s Spec) Accepts(ver string) bool {
	return !s.Constrained() || ver == s.Version
}

// String returns the identifier form understood by npm, yarn and pnpm.
func (s Spec) String() string {
	if s.Version == "" {
		return s.Name
	}
	return s.Name + "@" + s.Version
}

// Strings converts specs back to identifiers.
func Strings(specs []Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.String()
	}
	return out
}
