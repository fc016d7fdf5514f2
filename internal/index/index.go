package index

// NoteIndex defines the interface for search index operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	Count() (int, error)
	Reset() error
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

var _ NoteIndex = (*DB)(nil)
