// Package graph builds an in-memory link graph over a note collection:
// outgoing references extracted from each note's content and the reverse
// backlink index they imply.
package graph

import (
	"context"
	"path"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/starford/slipbox/internal/models"
	"github.com/starford/slipbox/internal/parser"
)

// Source is a note handed to Build: a canonical path and its content.
type Source struct {
	Path    string
	Content []byte
}

type note struct {
	content   []byte
	outgoing  map[string]struct{}
	backlinks map[string]struct{}
}

// Graph maps canonical note paths to notes. After a completed scan, B is an
// outgoing link of A exactly when A is a backlink of B.
//
// A Graph is not safe for concurrent mutation; queries may run concurrently
// once Build or Rebuild has returned.
type Graph struct {
	root    string
	workers int

	notes  map[string]*note
	byName map[string][]string // base name -> paths sharing it
}

// Option configures a Graph.
type Option func(*Graph)

// WithWorkers bounds the number of notes scanned concurrently. Values below
// one mean GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(g *Graph) {
		g.workers = n
	}
}

// Build creates a graph over sources. root is the notes root that
// references are also resolved against; it may be empty. When two sources
// share a path the later one wins.
func Build(ctx context.Context, root string, sources []Source, opts ...Option) (*Graph, error) {
	g := &Graph{
		root:   root,
		notes:  make(map[string]*note, len(sources)),
		byName: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.workers < 1 {
		g.workers = runtime.GOMAXPROCS(0)
	}

	for _, s := range sources {
		p := filepath.Clean(s.Path)
		if _, dup := g.notes[p]; !dup {
			name := filepath.Base(p)
			g.byName[name] = append(g.byName[name], p)
		}
		g.notes[p] = &note{content: s.Content}
	}

	if err := g.scan(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Rebuild rescans every note's stored content. Rebuilding from unchanged
// content yields the same link sets every time.
func (g *Graph) Rebuild(ctx context.Context) error {
	return g.scan(ctx)
}

// scan runs the two build phases. Phase one extracts and resolves each
// note's references in parallel into a private slot; nothing in the graph
// is written. Phase two resets every backlink set and applies the edges.
func (g *Graph) scan(ctx context.Context) error {
	paths := g.Paths()
	resolved := make([][]string, len(paths))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(min(g.workers, max(len(paths), 1)))
	for i, p := range paths {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			resolved[i] = g.resolveAll(p, parser.ExtractLinks(string(g.notes[p].content)))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, n := range g.notes {
		n.backlinks = make(map[string]struct{})
	}
	for i, src := range paths {
		out := make(map[string]struct{}, len(resolved[i]))
		for _, dst := range resolved[i] {
			out[dst] = struct{}{}
			g.notes[dst].backlinks[src] = struct{}{}
		}
		g.notes[src].outgoing = out
	}
	return nil
}

// resolveAll maps reference tokens found in src to known note paths.
// Unknown references and self-references are dropped.
func (g *Graph) resolveAll(src string, tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		dst, ok := g.resolve(src, tok)
		if !ok || dst == src {
			continue
		}
		out = append(out, dst)
	}
	return out
}

// resolve tries tok relative to the referencing note's directory, then
// relative to the notes root, then as a base name that is unique in the
// graph.
func (g *Graph) resolve(src, tok string) (string, bool) {
	rel := filepath.FromSlash(tok)
	if p := filepath.Join(filepath.Dir(src), rel); g.Has(p) {
		return p, true
	}
	if g.root != "" {
		if p := filepath.Join(g.root, rel); g.Has(p) {
			return p, true
		}
	}
	if cands := g.byName[path.Base(tok)]; len(cands) == 1 {
		return cands[0], true
	}
	return "", false
}

// Has reports whether p is a note in the graph.
func (g *Graph) Has(p string) bool {
	_, ok := g.notes[filepath.Clean(p)]
	return ok
}

// Len returns the number of notes.
func (g *Graph) Len() int { return len(g.notes) }

// Paths returns every note path in sorted order.
func (g *Graph) Paths() []string {
	out := make([]string, 0, len(g.notes))
	for p := range g.notes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// BacklinksOf returns the sorted paths of notes referencing p. An unknown
// path has no backlinks.
func (g *Graph) BacklinksOf(p string) []string {
	n, ok := g.notes[filepath.Clean(p)]
	if !ok {
		return nil
	}
	return sortedKeys(n.backlinks)
}

// OutgoingOf returns the sorted paths of notes p references.
func (g *Graph) OutgoingOf(p string) []string {
	n, ok := g.notes[filepath.Clean(p)]
	if !ok {
		return nil
	}
	return sortedKeys(n.outgoing)
}

// Links returns every edge, ordered by source then target.
func (g *Graph) Links() []models.Link {
	var out []models.Link
	for _, src := range g.Paths() {
		for _, dst := range sortedKeys(g.notes[src].outgoing) {
			out = append(out, models.Link{Source: src, Target: dst})
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
