// Package storage defines the note-tree file-system abstraction.
package storage

import "github.com/starford/slipbox/internal/models"

// File is a note read from disk. Path is canonical and absolute.
type File struct {
	Path    string
	Content []byte
}

// Provider is the interface for note-tree file operations.
type Provider interface {
	// Root returns the canonical absolute notes root.
	Root() string
	// Dirs returns the candidate search roots: the notes root alone, or the
	// root plus every non-hidden directory beneath it when nested is true.
	Dirs(nested bool) ([]string, error)
	// List returns metadata for every note file under dir (relative to root).
	List(dir string) ([]models.NoteMetadata, error)
	// Rel returns an absolute path relative to the root, with forward slashes.
	Rel(abs string) string
	// Load reads every note file under the root.
	Load() ([]File, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
}
