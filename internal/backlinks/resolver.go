// Package backlinks answers "which notes reference this file", either by
// scanning note content for the relative path each directory would use to
// reference it, or by querying a freshly built link graph.
package backlinks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/slipbox/internal/apperr"
	"github.com/starford/slipbox/internal/finder"
	"github.com/starford/slipbox/internal/graph"
	"github.com/starford/slipbox/internal/relpath"
	"github.com/starford/slipbox/internal/storage"
)

// Mode selects how backlinks are discovered.
type Mode string

const (
	// ModeSearch scans note content under every search root.
	ModeSearch Mode = "search"
	// ModeGraph builds a NoteGraph over the notes root and reads its
	// reverse index.
	ModeGraph Mode = "graph"
)

// ParseMode validates a mode name. Empty selects ModeSearch.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSearch:
		return ModeSearch, nil
	case ModeGraph:
		return ModeGraph, nil
	default:
		return "", fmt.Errorf("backlinks: unknown mode %q", s)
	}
}

// Options control a single resolution.
type Options struct {
	// Nested searches from every directory under the notes root rather
	// than the root alone.
	Nested bool
	// Absolute returns absolute paths instead of paths relative to the
	// notes root.
	Absolute bool
	Mode     Mode
}

// Resolver finds backlinks within one notes root.
type Resolver struct {
	store   storage.Provider
	finder  finder.Finder
	workers int
	verbose bool
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithWorkers bounds concurrent per-root searches and graph extraction.
func WithWorkers(n int) Option {
	return func(r *Resolver) { r.workers = n }
}

// WithVerbose surfaces absorbed per-root failures as warnings instead of
// debug records.
func WithVerbose(v bool) Option {
	return func(r *Resolver) { r.verbose = v }
}

// WithLogger sets the logger for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver over store using f for search-based resolution.
func New(store storage.Provider, f finder.Finder, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		finder: f,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	return r
}

// Root returns the canonical notes root.
func (r *Resolver) Root() string { return r.store.Root() }

// Target canonicalizes target, which must be an existing file. Failure
// wraps apperr.ErrTargetNotFound.
func (r *Resolver) Target(target string) (string, error) {
	canon, err := relpath.Canonical(target)
	if err != nil {
		return "", fmt.Errorf("resolve: %w: %s: %v", apperr.ErrTargetNotFound, target, err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return "", fmt.Errorf("resolve: %w: %s: %v", apperr.ErrTargetNotFound, target, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("resolve: %w: %s is a directory", apperr.ErrTargetNotFound, target)
	}
	return canon, nil
}

// Resolve returns the notes referencing target, deduplicated and formatted
// per opts. Only a missing target or a cancelled context is an error;
// roots that cannot be listed or searched contribute nothing.
func (r *Resolver) Resolve(ctx context.Context, target string, opts Options) ([]string, error) {
	canon, err := r.Target(target)
	if err != nil {
		return nil, err
	}

	var found []string
	switch opts.Mode {
	case ModeGraph:
		found, err = r.fromGraph(ctx, canon)
	case ModeSearch, "":
		found, err = r.fromSearch(ctx, canon, opts.Nested)
	default:
		return nil, fmt.Errorf("backlinks: unknown mode %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}
	return r.Format(found, opts.Absolute), nil
}

// fromSearch fans the content search out over every search root and joins
// the results in root order. Each root's matches are sorted so repeated
// calls agree.
func (r *Resolver) fromSearch(ctx context.Context, target string, nested bool) ([]string, error) {
	roots, err := r.store.Dirs(nested)
	if err != nil {
		r.diag(ctx, "resolve: enumerate roots failed",
			slog.String("root", r.store.Root()), slog.String("error", err.Error()))
	}

	results := make([][]string, len(roots))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.workers)
	for i, root := range roots {
		eg.Go(func() error {
			pattern := relpath.Relativize(root, target)
			matches, err := r.finder.Find(egCtx, root, pattern)
			if err != nil {
				r.diag(egCtx, "resolve: search failed",
					slog.String("root", root),
					slog.String("pattern", pattern),
					slog.String("error", err.Error()))
				return nil
			}
			for j, m := range matches {
				matches[j] = filepath.Clean(m)
			}
			sort.Strings(matches)
			results[i] = matches
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	for _, matches := range results {
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

// fromGraph builds a NoteGraph over the whole notes tree and reads the
// target's backlinks.
func (r *Resolver) fromGraph(ctx context.Context, target string) ([]string, error) {
	g, err := r.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return g.BacklinksOf(target), nil
}

// Graph loads every note under the root and builds a fresh link graph.
// Notes that cannot be read are left out.
func (r *Resolver) Graph(ctx context.Context) (*graph.Graph, error) {
	files, err := r.store.Load()
	if err != nil {
		r.diag(ctx, "resolve: load notes failed",
			slog.String("root", r.store.Root()), slog.String("error", err.Error()))
	}
	sources := make([]graph.Source, len(files))
	for i, f := range files {
		sources[i] = graph.Source{Path: f.Path, Content: f.Content}
	}
	g, err := graph.Build(ctx, r.store.Root(), sources, graph.WithWorkers(r.workers))
	if err != nil {
		return nil, fmt.Errorf("resolve: build graph: %w", err)
	}
	r.logger.Debug("resolve: graph built", slog.Int("notes", g.Len()))
	return g, nil
}

// Format renders result paths. Unless absolute, the notes root prefix is
// removed and then at most one leading separator.
func (r *Resolver) Format(paths []string, absolute bool) []string {
	out := make([]string, len(paths))
	root := r.store.Root()
	for i, p := range paths {
		if absolute {
			out[i] = p
			continue
		}
		rel := strings.TrimPrefix(p, root)
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func (r *Resolver) diag(ctx context.Context, msg string, attrs ...slog.Attr) {
	level := slog.LevelDebug
	if r.verbose {
		level = slog.LevelWarn
	}
	r.logger.LogAttrs(ctx, level, msg, attrs...)
}
