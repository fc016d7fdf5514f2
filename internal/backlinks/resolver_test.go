package backlinks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/slipbox/internal/apperr"
	"github.com/starford/slipbox/internal/finder"
	"github.com/starford/slipbox/internal/testutil"
)

type finderFunc func(ctx context.Context, root, pattern string) ([]string, error)

func (f finderFunc) Find(ctx context.Context, root, pattern string) ([]string, error) {
	return f(ctx, root, pattern)
}

var flatNotes = map[string]string{
	"a.md": "see b.md",
	"b.md": "hello",
}

var nestedNotes = map[string]string{
	"a.md":     "see b.md",
	"b.md":     "hello",
	"sub/c.md": "../b.md",
}

func TestResolve_FlatRelative(t *testing.T) {
	root, store := testutil.TestNotes(t, flatNotes)
	r := New(store, finder.Native{})

	got, err := r.Resolve(context.Background(), filepath.Join(root, "b.md"), Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{"a.md"}, got); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_FlatAbsolute(t *testing.T) {
	root, store := testutil.TestNotes(t, flatNotes)
	r := New(store, finder.Native{})

	got, err := r.Resolve(context.Background(), filepath.Join(root, "b.md"), Options{Absolute: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{filepath.Join(root, "a.md")}, got); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_NestedDeduplicates(t *testing.T) {
	root, store := testutil.TestNotes(t, nestedNotes)
	r := New(store, finder.Native{})

	got, err := r.Resolve(context.Background(), filepath.Join(root, "b.md"), Options{Nested: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{"a.md", "sub/c.md"}, got); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_NestedUsesPerRootRelativePaths(t *testing.T) {
	root, store := testutil.TestNotes(t, nestedNotes)

	var mu sync.Mutex
	patterns := make(map[string]string)
	f := finderFunc(func(_ context.Context, dir, pattern string) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		patterns[store.Rel(dir)] = pattern
		return nil, nil
	})

	if _, err := New(store, f).Resolve(context.Background(), filepath.Join(root, "b.md"), Options{Nested: true}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := map[string]string{".": "b.md", "sub": "../b.md"}
	if diff := cmp.Diff(want, patterns); diff != "" {
		t.Errorf("patterns mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_GraphMode(t *testing.T) {
	root, store := testutil.TestNotes(t, nestedNotes)
	r := New(store, finder.Native{})

	got, err := r.Resolve(context.Background(), filepath.Join(root, "b.md"), Options{Mode: ModeGraph})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{"a.md", "sub/c.md"}, got); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}

	got, err = r.Resolve(context.Background(), filepath.Join(root, "b.md"), Options{Mode: ModeGraph, Absolute: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{filepath.Join(root, "a.md"), filepath.Join(root, "sub", "c.md")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_GraphModeIgnoresUnknownTarget(t *testing.T) {
	root, store := testutil.TestNotes(t, map[string]string{
		"a.md":       "see data.csv",
		"data.csv":   "1,2,3",
		".hidden.md": "b",
	})
	got, err := New(store, finder.Native{}).Resolve(context.Background(), filepath.Join(root, "data.csv"), Options{Mode: ModeGraph})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve = %v, want none", got)
	}
}

func TestResolve_TargetNotFound(t *testing.T) {
	root, store := testutil.TestNotes(t, flatNotes)
	r := New(store, finder.Native{})

	for _, mode := range []Mode{ModeSearch, ModeGraph} {
		_, err := r.Resolve(context.Background(), filepath.Join(root, "missing.md"), Options{Mode: mode})
		if !errors.Is(err, apperr.ErrTargetNotFound) {
			t.Errorf("%s: err = %v, want ErrTargetNotFound", mode, err)
		}
	}
}

func TestResolve_DirectoryTargetRejected(t *testing.T) {
	root, store := testutil.TestNotes(t, nestedNotes)
	_, err := New(store, finder.Native{}).Resolve(context.Background(), filepath.Join(root, "sub"), Options{})
	if !errors.Is(err, apperr.ErrTargetNotFound) {
		t.Errorf("err = %v, want ErrTargetNotFound", err)
	}
}

func TestResolve_SearchFailuresAreAbsorbed(t *testing.T) {
	root, store := testutil.TestNotes(t, nestedNotes)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	f := finderFunc(func(_ context.Context, dir, _ string) ([]string, error) {
		if dir == root {
			return nil, errors.New("backend exploded")
		}
		return []string{filepath.Join(dir, "c.md")}, nil
	})

	for _, verbose := range []bool{false, true} {
		logs.Reset()
		r := New(store, f, WithLogger(logger), WithVerbose(verbose))
		got, err := r.Resolve(context.Background(), filepath.Join(root, "b.md"), Options{Nested: true})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if diff := cmp.Diff([]string{"sub/c.md"}, got); diff != "" {
			t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
		}
		logged := strings.Contains(logs.String(), "backend exploded")
		if logged != verbose {
			t.Errorf("verbose=%v: failure logged = %v\n%s", verbose, logged, logs.String())
		}
	}
}

func TestResolve_DeduplicatesAcrossRootsStably(t *testing.T) {
	root, store := testutil.TestNotes(t, map[string]string{
		"b.md": "",
		"x/":   "",
		"y/z/": "",
	})
	shared := []string{filepath.Join(root, "x", "n.md"), filepath.Join(root, "a.md")}
	f := finderFunc(func(_ context.Context, dir, _ string) ([]string, error) {
		// Every root reports the same files in a different order.
		out := append([]string(nil), shared...)
		if dir == root {
			out[0], out[1] = out[1], out[0]
		}
		return append(out, filepath.Join(dir, "own.md")), nil
	})
	r := New(store, f, WithWorkers(4))

	first, err := r.Resolve(context.Background(), filepath.Join(root, "b.md"), Options{Nested: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"a.md", "own.md", "x/n.md", "x/own.md", "y/own.md", "y/z/own.md"}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Errorf("Resolve mismatch (-want +got):\n%s", diff)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), filepath.Join(root, "b.md"), Options{Nested: true})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("repeated call reordered results (-first +again):\n%s", diff)
		}
	}
}

func TestResolve_Cancelled(t *testing.T) {
	root, store := testutil.TestNotes(t, flatNotes)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(store, finder.Native{}).Resolve(ctx, filepath.Join(root, "b.md"), Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFormat(t *testing.T) {
	root, store := testutil.TestNotes(t, nil)
	r := New(store, finder.Native{})
	in := []string{
		filepath.Join(root, "a.md"),
		filepath.Join(root, "sub", "c.md"),
		"/elsewhere/x.md",
	}

	// Outside the root only the leading separator goes.
	if diff := cmp.Diff([]string{"a.md", "sub/c.md", "elsewhere/x.md"}, r.Format(in, false)); diff != "" {
		t.Errorf("relative mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in, r.Format(in, true)); diff != "" {
		t.Errorf("absolute mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeSearch, "search": ModeSearch, "graph": ModeGraph} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("fuzzy"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
