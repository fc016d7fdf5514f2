//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Without FTS5 the notes table is the only store; body text lives in
// notes.body and search scans it with LIKE.

func initFTS(_ *sql.DB) error { return nil }

func ftsUpsert(_ *sql.Tx, _, _, _ string, _ []string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) error { return nil }

func ftsReset(_ *sql.Tx) error { return nil }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches notes containing every whitespace-separated term in the
// title, body or tags. Terms are literal. Title matches on the first term
// rank first, then newest notes.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var (
		where []string
		args  []any
	)
	for _, term := range terms {
		like := "%" + likeEscaper.Replace(term) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	args = append(args, "%"+likeEscaper.Replace(terms[0])+"%", limit)

	q := `
		SELECT path, title, substr(body, 1, 200)
		FROM notes
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY (title LIKE ? ESCAPE '\') DESC, updated_at DESC, path
		LIMIT ?`
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, fmt.Errorf("index: search: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
