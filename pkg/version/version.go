// Package version normalizes and orders the version strings found in
// package.json dependency declarations.
//
// Declared versions are usually ranges ("^1.3.0", "~2.0.1"). Reuse only ever
// needs the base version of such a range, so [Normalize] strips the leading
// range markers and every comparison site works on the normalized string.
// Ordering is semantic-version ordering as implemented by
// github.com/Masterminds/semver/v3.
package version

import (
	"fmt"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// rangeMarkers are the prefixes stripped by Normalize.
const rangeMarkers = "^~"

// Normalize returns raw with surrounding whitespace and every leading range
// marker ('^' or '~') removed.
//
//	Normalize("^1.3.0")  == "1.3.0"
//	Normalize("~2.0.1")  == "2.0.1"
//	Normalize(" 1.0.0 ") == "1.0.0"
//	Normalize(">=1.0.0") == ">=1.0.0"  // other operators are kept
//	Normalize("latest")  == "latest"
func Normalize(raw string) string {
	return strings.TrimLeft(strings.TrimSpace(raw), rangeMarkers)
}

// HasRangeMarker reports whether raw starts with a range marker, meaning the
// declaration accepts more than one concrete version.
func HasRangeMarker(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw != "" && strings.ContainsRune(rangeMarkers, rune(raw[0]))
}

// Version is a parsed semantic version. The zero value is an unparseable
// version and sorts below every parsed one.
type Version struct {
	v *mm.Version
}

// Parse normalizes raw and parses it as a semantic version. Partial versions
// ("1.2") and a leading "v" are accepted.
func Parse(raw string) (Version, error) {
	v, err := mm.NewVersion(Normalize(raw))
	if err != nil {
		return Version{}, fmt.Errorf("version: parse %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

// String returns the canonical form of v, or "" for the zero value.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Compare returns -1, 0 or 1 as a is less than, equal to or greater than b.
// Invalid versions compare equal to each other and lower than valid ones.
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

// Max returns the index of the greatest version in raws.
//
// If multiple versions are equal, the first encountered wins. Strings that do
// not parse rank below every parseable one. ok is false only when raws is
// empty.
func Max(raws []string) (idx int, ok bool) {
	if len(raws) == 0 {
		return 0, false
	}
	var best Version
	for i, raw := range raws {
		v, _ := Parse(raw)
		if i == 0 || Compare(v, best) > 0 {
			best, idx = v, i
		}
	}
	return idx, true
}
