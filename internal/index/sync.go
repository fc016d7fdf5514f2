package index

import (
	"log/slog"

	"github.com/starford/slipbox/internal/checksum"
	"github.com/starford/slipbox/internal/parser"
	"github.com/starford/slipbox/internal/storage"
)

// SyncStats reports what a Sync pass changed.
type SyncStats struct {
	Indexed int
	Removed int
	Skipped int
}

// Sync walks the note tree and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db NoteIndex, store storage.Provider, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats

	metas, err := store.List("")
	if err != nil {
		return stats, err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return stats, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			stats.Skipped++
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		stats.Indexed++
		logger.Debug("sync: indexed", slog.String("path", m.Path))
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteNote(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	return stats, nil
}

// indexFile parses data and upserts it under path.
func indexFile(db NoteIndex, path string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	row := NoteRow{
		Path:     path,
		Title:    res.Title,
		Checksum: checksum.Sum(data),
		Tags:     res.Tags,
	}
	return db.UpsertNote(row, res.Body)
}
