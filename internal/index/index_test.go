package index

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/slipbox/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestOpen_CreatesParentDir(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "cache", "index.db")
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if _, err := os.Stat(dsn); err != nil {
		t.Errorf("db file not created: %v", err)
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := NoteRow{
		Path:      "hello.md",
		Title:     "Hello World",
		Checksum:  "abc123",
		Tags:      []string{"go", "test"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertNote(row, "This is a hello world note."); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	cs, err := db.GetChecksum("hello.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
}

func TestDeleteNote(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "del.md", Checksum: "x"}, "body")

	if err := db.DeleteNote("del.md"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	cs, _ := db.GetChecksum("del.md")
	if cs != "" {
		t.Errorf("deleted note still has checksum %q", cs)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "up.md", Title: "Old", Checksum: "1"}, "old body")
	_ = db.UpsertNote(NoteRow{Path: "up.md", Title: "New", Checksum: "2", Tags: []string{"new"}}, "new body")

	cs, _ := db.GetChecksum("up.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	n, _ := db.Count()
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestAllChecksumsAndReset(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "a.md", Checksum: "1"}, "a")
	_ = db.UpsertNote(NoteRow{Path: "sub/b.org", Checksum: "2"}, "b")

	got, err := db.AllChecksums()
	if err != nil {
		t.Fatalf("AllChecksums: %v", err)
	}
	want := map[string]string{"a.md": "1", "sub/b.org": "2"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AllChecksums mismatch (-want +got):\n%s", diff)
	}

	if err := db.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	n, _ := db.Count()
	if n != 0 {
		t.Errorf("Count after reset = %d, want 0", n)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "s.md", Title: "Search Me", Checksum: "1"}, "uniqueword appears here")
	_ = db.UpsertNote(NoteRow{Path: "other.md", Title: "Other", Checksum: "2"}, "nothing to see")

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "s.md" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}

func TestSearch_Limit(t *testing.T) {
	db := testDB(t)
	for _, p := range []string{"a.md", "b.md", "c.md"} {
		_ = db.UpsertNote(NoteRow{Path: p, Checksum: p}, "shared term")
	}
	results, err := db.Search("shared", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestSync_Incremental(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	db := testDB(t)
	logger := quietLogger()

	_ = os.WriteFile(filepath.Join(root, "a.md"), []byte("# A\nsee b.md"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "b.org"), []byte("#+title: B\nbody"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "skip.go"), []byte("package x"), 0o644)

	stats, err := Sync(db, store, logger)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if diff := cmp.Diff(SyncStats{Indexed: 2}, stats); diff != "" {
		t.Errorf("first sync (-want +got):\n%s", diff)
	}

	stats, _ = Sync(db, store, logger)
	if diff := cmp.Diff(SyncStats{Skipped: 2}, stats); diff != "" {
		t.Errorf("second sync (-want +got):\n%s", diff)
	}

	_ = os.WriteFile(filepath.Join(root, "a.md"), []byte("# A\nchanged"), 0o644)
	_ = os.Remove(filepath.Join(root, "b.org"))

	stats, _ = Sync(db, store, logger)
	if diff := cmp.Diff(SyncStats{Indexed: 1, Removed: 1}, stats); diff != "" {
		t.Errorf("third sync (-want +got):\n%s", diff)
	}

	results, _ := db.Search("changed", 10)
	if len(results) != 1 || results[0].Title != "A" {
		t.Errorf("search after resync = %+v", results)
	}
}
