package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/starford/slipbox/internal/apperr"
	"github.com/starford/slipbox/internal/checksum"
	"github.com/starford/slipbox/internal/models"
	"github.com/starford/slipbox/internal/parser"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // canonical absolute path to the notes root
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist; symlinks in root are resolved.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", canon)
	}
	return &FS{root: canon}, nil
}

// Root returns the canonical notes root.
func (f *FS) Root() string { return f.root }

// IsHidden reports whether a directory entry name carries the dot prefix
// that excludes it, and everything beneath it, from enumeration.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// safePath resolves a relative path against the root and rejects any result
// that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: %w: absolute paths not allowed: %s", apperr.ErrInvalidPath, rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: %w: path escapes notes root: %s", apperr.ErrInvalidPath, rel)
	}
	return abs, nil
}

// Dirs enumerates candidate search roots. With nested false it returns the
// root alone. Otherwise it descends from the root with an explicit worklist,
// pruning hidden directories and not following directory symlinks.
//
// Directories that cannot be listed are skipped; their errors are joined
// into the returned error alongside the directories that were found.
func (f *FS) Dirs(nested bool) ([]string, error) {
	if !nested {
		return []string{f.root}, nil
	}

	var (
		out   []string
		errs  []error
		stack = []string{f.root}
	)
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if dir == f.root {
				return nil, fmt.Errorf("storage: list %s: %w", dir, err)
			}
			errs = append(errs, fmt.Errorf("storage: list %s: %w", dir, err))
			continue
		}
		out = append(out, dir)
		for _, e := range entries {
			if e.IsDir() && !IsHidden(e.Name()) {
				stack = append(stack, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(out)
	return out, errors.Join(errs...)
}

// walkNotes calls fn for every regular note file under base, in lexical
// order, skipping hidden directories.
func (f *FS) walkNotes(base string, fn func(path string, d fs.DirEntry) error) error {
	return filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != base && IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !parser.IsNote(d.Name()) {
			return nil
		}
		return fn(p, d)
	})
}

// List walks dir (relative to root) and returns metadata for every note file.
func (f *FS) List(dir string) ([]models.NoteMetadata, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []models.NoteMetadata
	err = f.walkNotes(base, func(p string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := checksum.File(p)
		if err != nil {
			return err
		}
		out = append(out, models.NoteMetadata{
			Path:      f.Rel(p),
			Checksum:  sum,
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// Load reads every note under the root. Unreadable files and directories
// are skipped; their errors are joined into the returned error alongside the
// notes that were read.
func (f *FS) Load() ([]File, error) {
	var (
		out  []File
		errs []error
	)
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == f.root {
				return walkErr
			}
			errs = append(errs, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != f.root && IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !parser.IsNote(d.Name()) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		out = append(out, File{Path: p, Content: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: load: %w", err)
	}
	if err := errors.Join(errs...); err != nil {
		return out, fmt.Errorf("storage: load: %w", err)
	}
	return out, nil
}

// Rel returns abs relative to the root with forward slashes. Paths outside
// the root are returned unchanged.
func (f *FS) Rel(abs string) string {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return abs
	}
	return filepath.ToSlash(rel)
}

// Read returns the raw bytes of a note file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write atomically replaces the file at path, creating parent directories.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	_, statErr := os.Stat(abs)
	if err := atomic.WriteFile(abs, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	// New files get the temp file's private mode otherwise.
	if errors.Is(statErr, fs.ErrNotExist) {
		if err := os.Chmod(abs, 0o644); err != nil {
			return fmt.Errorf("storage: chmod %s: %w", path, err)
		}
	}
	return nil
}
