// Package security guards the files the CLI writes on behalf of stored
// sessions. Session labels come from imported snapshots and must not be
// able to steer a write outside the chosen export directory.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxNameLen bounds file names derived from session labels.
const maxNameLen = 128

// WithinDir returns an error unless path resolves to a location inside
// dir. Symlinks are followed for the longest existing prefix of each path,
// so a link inside dir that points elsewhere is rejected.
func WithinDir(path, dir string) error {
	target, err := canonical(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	root, err := canonical(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return fmt.Errorf("%s is outside %s: %w", path, dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%s escapes %s", path, dir)
	}
	return nil
}

// canonical makes p absolute and resolves symlinks in the part of it that
// exists. The missing tail is appended unchanged.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	existing, tail := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(resolved, tail), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		tail = filepath.Join(filepath.Base(existing), tail)
		existing = parent
	}
}

// SafeFileName turns a session label into a file name stem. Runs of
// characters other than ASCII letters, digits, dot, underscore and dash
// become a single underscore; leading and trailing dots and underscores
// are trimmed. An empty result becomes "session".
func SafeFileName(label string) string {
	var b strings.Builder
	pending := false
	for _, r := range label {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			if pending {
				b.WriteByte('_')
				pending = false
			}
			b.WriteRune(r)
		default:
			pending = b.Len() > 0
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "session"
	}
	return out
}

// ExportPath returns the file dir/<SafeFileName(label)><ext> after checking
// that it stays inside dir.
func ExportPath(dir, label, ext string) (string, error) {
	if dir == "" {
		return "", errors.New("export directory is empty")
	}
	path := filepath.Join(dir, SafeFileName(label)+ext)
	if err := WithinDir(path, dir); err != nil {
		return "", err
	}
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("refusing to write through symlink %s", path)
	}
	return path, nil
}
