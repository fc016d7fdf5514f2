// Package noteservice coordinates the note tree, the backlink resolver and
// the search index behind the HTTP, MCP and CLI surfaces.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/slipbox/internal/apperr"
	"github.com/starford/slipbox/internal/backlinks"
	"github.com/starford/slipbox/internal/checksum"
	"github.com/starford/slipbox/internal/index"
	"github.com/starford/slipbox/internal/models"
	"github.com/starford/slipbox/internal/parser"
	"github.com/starford/slipbox/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Links       []string       `json:"links"`
	Backlinks   []string       `json:"backlinks"`
}

// GraphNode is one note in a graph view.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// GraphView is a link graph with paths relative to the notes root.
type GraphView struct {
	Nodes []GraphNode   `json:"nodes"`
	Links []models.Link `json:"links"`
}

// Service coordinates storage, backlink resolution and the search index.
// The index is optional; without it Search and Sync fail.
type Service struct {
	store    storage.Provider
	resolver *backlinks.Resolver
	db       index.NoteIndex
	logger   *slog.Logger
}

// NewService creates a new note service. db may be nil.
func NewService(store storage.Provider, resolver *backlinks.Resolver, db index.NoteIndex, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, resolver: resolver, db: db, logger: logger}
}

// Root returns the canonical notes root.
func (s *Service) Root() string { return s.store.Root() }

// Backlinks resolves the notes referencing target. target is absolute or
// relative to the notes root.
func (s *Service) Backlinks(ctx context.Context, target string, opts backlinks.Options) ([]string, error) {
	if target == "" {
		return nil, fmt.Errorf("noteservice: backlinks: %w: empty path", apperr.ErrTargetNotFound)
	}
	return s.resolver.Resolve(ctx, s.abs(target), opts)
}

// GetNote reads a note, parses it, and enriches it with its graph backlinks.
func (s *Service) GetNote(ctx context.Context, p string) (*NoteDetail, error) {
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	bl, err := s.resolver.Resolve(ctx, s.abs(p), backlinks.Options{Mode: backlinks.ModeGraph})
	if err != nil {
		return nil, err
	}
	return buildNoteDetail(p, data, bl)
}

// CreateNote writes a new note, optionally seeded with a title, and indexes
// it when an index is attached.
func (s *Service) CreateNote(ctx context.Context, p, title string) (*NoteDetail, error) {
	p = path.Clean(filepath.ToSlash(p))
	if !parser.IsNote(p) {
		return nil, fmt.Errorf("noteservice: create: %w: %s has no note extension", apperr.ErrInvalidPath, p)
	}
	if _, err := s.store.Read(p); err == nil {
		return nil, fmt.Errorf("noteservice: create: %w: %s", apperr.ErrAlreadyExists, p)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	content, err := noteTemplate(title)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	if s.db != nil {
		if err := s.indexFile(p, content); err != nil {
			return nil, err
		}
	}
	return buildNoteDetail(p, content, nil)
}

// ListNotes returns metadata for every note under folder ("" for all).
func (s *Service) ListNotes(_ context.Context, folder string) ([]models.NoteMetadata, error) {
	items, err := s.store.List(folder)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return nonNilSlice(items), nil
}

// Graph builds a fresh link graph over the whole tree.
func (s *Service) Graph(ctx context.Context) (*GraphView, error) {
	g, err := s.resolver.Graph(ctx)
	if err != nil {
		return nil, err
	}
	paths := g.Paths()
	view := &GraphView{
		Nodes: make([]GraphNode, len(paths)),
		Links: []models.Link{},
	}
	for i, p := range paths {
		rel := s.store.Rel(p)
		view.Nodes[i] = GraphNode{
			ID:    rel,
			Label: strings.TrimSuffix(path.Base(rel), path.Ext(rel)),
		}
	}
	for _, l := range g.Links() {
		view.Links = append(view.Links, models.Link{
			Source: s.store.Rel(l.Source),
			Target: s.store.Rel(l.Target),
		})
	}
	return view, nil
}

// Search queries the free-text index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.db == nil {
		return nil, errors.New("noteservice: search: no index attached")
	}
	res, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// Sync brings the index up to date with the tree. With reindex set the
// index is emptied first.
func (s *Service) Sync(_ context.Context, reindex bool) (index.SyncStats, error) {
	if s.db == nil {
		return index.SyncStats{}, errors.New("noteservice: sync: no index attached")
	}
	if reindex {
		if err := s.db.Reset(); err != nil {
			return index.SyncStats{}, err
		}
	}
	stats, err := index.Sync(s.db, s.store, s.logger)
	if err != nil {
		return stats, fmt.Errorf("noteservice: sync: %w", err)
	}
	s.logger.Info("sync: done",
		slog.Int("indexed", stats.Indexed),
		slog.Int("removed", stats.Removed),
		slog.Int("unchanged", stats.Skipped))
	return stats, nil
}

func (s *Service) indexFile(p string, data []byte) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	return s.db.UpsertNote(index.NoteRow{
		Path:     p,
		Title:    res.Title,
		Checksum: checksum.Sum(data),
		Tags:     res.Tags,
	}, res.Body)
}

func (s *Service) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.store.Root(), filepath.FromSlash(p))
}

// noteTemplate renders the initial content of a new note: empty, or YAML
// frontmatter carrying the title followed by a matching heading.
func noteTemplate(title string) ([]byte, error) {
	if title == "" {
		return []byte{}, nil
	}
	fm, err := yaml.Marshal(map[string]string{"title": title})
	if err != nil {
		return nil, fmt.Errorf("noteservice: encode frontmatter: %w", err)
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n# ")
	b.WriteString(title)
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func buildNoteDetail(p string, data []byte, bl []string) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{
		Path:        p,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Links:       nonNilSlice(res.Links),
		Backlinks:   nonNilSlice(bl),
	}, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
