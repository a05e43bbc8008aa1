// Package manifest reads package.json files and persists the caller's own
// manifest.
//
// Two views exist. [Record] is the read-only view of any manifest found on
// disk: its dependency groups merged into a single name→version map. [Local]
// is the caller's own manifest, which the installer appends to and which is
// written back preserving the original top-level key order.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/matzehuels/pkgreuse/pkg/errors"
)

const (
	// FileName is the manifest file name looked for in every directory.
	FileName = "package.json"

	// InstallDir is the install directory sibling to every manifest.
	InstallDir = "node_modules"
)

// packageFile holds the fields of package.json that matter for reuse.
type packageFile struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// Record is a parsed manifest with its dependency groups merged.
type Record struct {
	Path         string            // Absolute path of the package.json
	Name         string            // "name" field, if any
	Dependencies map[string]string // Merged regular, dev and peer dependencies
}

// Dir returns the directory containing the manifest.
func (r *Record) Dir() string { return filepath.Dir(r.Path) }

// InstalledPath returns where dependency name would be installed next to this
// manifest, in the install directory named installDir.
func (r *Record) InstalledPath(installDir, name string) string {
	return InstalledPath(r.Dir(), installDir, name)
}

// InstalledPath returns <dir>/<installDir>/<name>. Scoped names nest under
// their scope directory.
func InstalledPath(dir, installDir, name string) string {
	return filepath.Join(dir, installDir, filepath.FromSlash(name))
}

// Read parses the manifest at path. Any read or decode failure is returned as
// an ErrCodeInvalidManifest error.
func Read(path string) (*Record, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "resolve %s", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", abs)
	}
	return parse(abs, data)
}

func parse(path string, data []byte) (*Record, error) {
	var pkg packageFile
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", path)
	}
	return &Record{
		Path:         path,
		Name:         pkg.Name,
		Dependencies: Merge(pkg.Dependencies, pkg.DevDependencies, pkg.PeerDependencies),
	}, nil
}

// Merge combines dependency groups into a new map. Groups are given in
// precedence order: when a name appears in more than one group, the entry from
// the earliest group is kept. Nil groups are ignored and the inputs are never
// modified.
func Merge(groups ...map[string]string) map[string]string {
	size := 0
	for _, g := range groups {
		size += len(g)
	}
	out := make(map[string]string, size)
	for _, g := range groups {
		for name, ver := range g {
			if _, ok := out[name]; !ok {
				out[name] = ver
			}
		}
	}
	return out
}
