package finder

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestNew(t *testing.T) {
	if f, err := New("", ""); err != nil || f == nil {
		t.Fatalf("New(default) = %v, %v", f, err)
	}
	f, err := New(BackendRipgrep, "")
	if err != nil {
		t.Fatalf("New(ripgrep): %v", err)
	}
	if rg := f.(*Ripgrep); rg.Path != "rg" {
		t.Errorf("rg path = %q, want rg", rg.Path)
	}
	if _, err := New("tantivy", ""); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNative_FindsLiteralMatchesAtAnyDepth(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.md":          "see b.md",
		"b.md":          "hello",
		"sub/c.md":      "../b.md",
		"sub/deep/d.md": "mentions b.md twice: b.md",
		"e.md":          "b.m d is not it",
		"f.md":          "regex chars b.md? are literal",
	})

	got, err := Native{}.Find(context.Background(), root, "b.md")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want := []string{
		filepath.Join(root, "a.md"),
		filepath.Join(root, "f.md"),
		filepath.Join(root, "sub", "c.md"),
		filepath.Join(root, "sub", "deep", "d.md"),
	}
	if diff := cmp.Diff(sorted(want), sorted(got)); diff != "" {
		t.Errorf("Find mismatch (-want +got):\n%s", diff)
	}
}

func TestNative_PatternIsNotARegex(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.md": "bxmd",
		"b.md": "b.md",
	})
	got, err := Native{}.Find(context.Background(), root, "b.md")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff([]string{filepath.Join(root, "b.md")}, got); diff != "" {
		t.Errorf("Find mismatch (-want +got):\n%s", diff)
	}
}

func TestNative_SkipsHidden(t *testing.T) {
	root := writeTree(t, map[string]string{
		".git/HEAD":       "b.md",
		".draft.md":       "b.md",
		"sub/.cache/x.md": "b.md",
		"visible.md":      "b.md",
	})
	got, err := Native{}.Find(context.Background(), root, "b.md")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff([]string{filepath.Join(root, "visible.md")}, got); diff != "" {
		t.Errorf("Find mismatch (-want +got):\n%s", diff)
	}
}

func TestNative_MissingRoot(t *testing.T) {
	_, err := Native{}.Find(context.Background(), filepath.Join(t.TempDir(), "gone"), "x")
	if err == nil {
		t.Error("expected error for missing root")
	}
}

func TestNative_Cancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.md": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Native{}.Find(ctx, root, "x")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// fakeRg writes a shell script standing in for rg.
func fakeRg(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unsupported")
	}
	p := filepath.Join(t.TempDir(), "rg")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRipgrep_NoMatchesIsEmpty(t *testing.T) {
	rg := &Ripgrep{Path: fakeRg(t, "exit 1")}
	got, err := rg.Find(context.Background(), t.TempDir(), "x")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestRipgrep_FailureIsError(t *testing.T) {
	rg := &Ripgrep{Path: fakeRg(t, "echo boom >&2; exit 2")}
	_, err := rg.Find(context.Background(), t.TempDir(), "x")
	if err == nil {
		t.Fatal("expected error for exit status 2")
	}
}

func TestRipgrep_MissingExecutable(t *testing.T) {
	rg := &Ripgrep{Path: filepath.Join(t.TempDir(), "no-such-rg")}
	if _, err := rg.Find(context.Background(), t.TempDir(), "x"); err == nil {
		t.Fatal("expected error for missing executable")
	}
}

func TestRipgrep_ParsesOutput(t *testing.T) {
	rg := &Ripgrep{Path: fakeRg(t, `printf '/n/a.md\n/n/sub/c.md\n'`)}
	got, err := rg.Find(context.Background(), t.TempDir(), "x")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff([]string{"/n/a.md", "/n/sub/c.md"}, got); diff != "" {
		t.Errorf("Find mismatch (-want +got):\n%s", diff)
	}
}

func TestRipgrep_AgreesWithNative(t *testing.T) {
	path, err := exec.LookPath("rg")
	if err != nil {
		t.Skip("rg not installed")
	}
	root := writeTree(t, map[string]string{
		"a.md":     "see b.md",
		"b.md":     "hello",
		"sub/c.md": "../b.md",
	})
	rgGot, err := (&Ripgrep{Path: path}).Find(context.Background(), root, "b.md")
	if err != nil {
		t.Fatalf("rg Find: %v", err)
	}
	nativeGot, err := Native{}.Find(context.Background(), root, "b.md")
	if err != nil {
		t.Fatalf("native Find: %v", err)
	}
	if diff := cmp.Diff(sorted(nativeGot), sorted(rgGot)); diff != "" {
		t.Errorf("backends disagree (-native +rg):\n%s", diff)
	}
}
