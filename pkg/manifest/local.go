package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"

	"github.com/matzehuels/pkgreuse/pkg/errors"
)

const dependenciesKey = "dependencies"

// Local is the caller's own package.json. Unknown top-level fields are kept
// verbatim and in their original order; only "dependencies" is rewritten.
//
// Local is not safe for concurrent use. The installer is its only writer.
type Local struct {
	path       string
	installDir string
	exists     bool
	mode       os.FileMode
	keys       []string
	fields     map[string]json.RawMessage
	deps       map[string]string
	changed    bool
}

// LoadLocal reads dir/package.json. A missing file is not an error: the
// returned Local is empty and Exists reports false.
func LoadLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "resolve %s", dir)
	}
	l := &Local{
		path:       filepath.Join(abs, FileName),
		installDir: InstallDir,
		mode:       0o644,
		fields:     make(map[string]json.RawMessage),
		deps:       make(map[string]string),
	}

	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "stat %s", l.path)
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", l.path)
	}
	if err := l.decode(data); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", l.path)
	}
	l.exists = true
	l.mode = info.Mode().Perm()
	return l, nil
}

// decode reads the top-level object keeping key order.
func (l *Local) decode(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("top level is not an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if _, dup := l.fields[key]; !dup {
			l.keys = append(l.keys, key)
		}
		l.fields[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("trailing data after top-level object")
	}

	if raw, ok := l.fields[dependenciesKey]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &l.deps); err != nil {
			return fmt.Errorf("%s: %w", dependenciesKey, err)
		}
		if l.deps == nil {
			l.deps = make(map[string]string)
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Path returns the absolute path of the manifest file.
func (l *Local) Path() string { return l.path }

// Dir returns the project directory.
func (l *Local) Dir() string { return filepath.Dir(l.path) }

// Exists reports whether the manifest was present on disk when loaded.
func (l *Local) Exists() bool { return l.exists }

// Changed reports whether Set modified the dependency map since loading.
func (l *Local) Changed() bool { return l.changed }

// Dependencies returns a copy of the "dependencies" map.
func (l *Local) Dependencies() map[string]string { return maps.Clone(l.deps) }

// Has reports whether name is recorded in "dependencies".
func (l *Local) Has(name string) bool {
	_, ok := l.deps[name]
	return ok
}

// Installed reports whether name is recorded and its directory exists in the
// project's install directory.
func (l *Local) Installed(name string) bool {
	if !l.Has(name) {
		return false
	}
	info, err := os.Stat(l.InstallPath(name))
	return err == nil && info.IsDir()
}

// SetInstallDir overrides the install directory name (default node_modules).
func (l *Local) SetInstallDir(name string) {
	if name != "" {
		l.installDir = name
	}
}

// InstallPath returns where name is installed in the project.
func (l *Local) InstallPath(name string) string {
	return InstalledPath(l.Dir(), l.installDir, name)
}

// Set records name at ver in "dependencies".
func (l *Local) Set(name, ver string) {
	if cur, ok := l.deps[name]; ok && cur == ver {
		return
	}
	l.deps[name] = ver
	l.changed = true
}

// Save writes the manifest back if it changed. The file is written to a
// temporary sibling and renamed over the original.
func (l *Local) Save() error {
	if !l.changed {
		return nil
	}
	data, err := l.encode()
	if err != nil {
		return errors.Wrap(errors.ErrCodeManifestWrite, err, "encode %s", l.path)
	}
	if err := writeFileAtomic(l.path, data, l.mode); err != nil {
		return errors.Wrap(errors.ErrCodeManifestWrite, err, "write %s", l.path)
	}
	l.exists = true
	l.changed = false
	return nil
}

// encode renders the manifest with 2-space indentation and a trailing newline.
func (l *Local) encode() ([]byte, error) {
	depsRaw, err := marshal(l.deps)
	if err != nil {
		return nil, err
	}
	keys := l.keys
	if _, ok := l.fields[dependenciesKey]; !ok {
		keys = append(append([]string(nil), keys...), dependenciesKey)
	}

	var buf bytes.Buffer
	buf.WriteString("{")
	for i, key := range keys {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		k, err := marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteString(": ")

		raw := l.fields[key]
		if key == dependenciesKey {
			raw = depsRaw
		}
		if err := json.Indent(&buf, raw, "  ", "  "); err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
	}
	if len(keys) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// marshal encodes v without HTML escaping and without the trailing newline.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(name, mode); err != nil {
		return err
	}
	return os.Rename(name, path)
}
