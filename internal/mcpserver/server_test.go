package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/slipbox/internal/backlinks"
	"github.com/starford/slipbox/internal/finder"
	"github.com/starford/slipbox/internal/index"
	"github.com/starford/slipbox/internal/noteservice"
	"github.com/starford/slipbox/internal/testutil"
)

var mcpNotes = map[string]string{
	"a.md":      "see b.md",
	"b.md":      "# Bee\nhello searchable",
	"sub/c.org": "up to ../b.md",
}

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	root, store := testutil.TestNotes(t, mcpNotes)
	db := testutil.TestDB(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	r := backlinks.New(store, finder.Native{}, backlinks.WithLogger(logger))
	svc := noteservice.NewService(store, r, db, logger)
	if _, err := svc.Sync(context.Background(), false); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return New(svc, "test", logger), root
}

// callTool invokes a tool handler directly; mcp-go has no in-process call
// helper.
func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"get_backlinks": srv.getBacklinks,
		"search_notes":  srv.searchNotes,
		"read_note":     srv.readNote,
		"list_notes":    srv.listNotes,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestGetBacklinks(t *testing.T) {
	srv, root := testServer(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"search", map[string]any{"path": "b.md"}, "a.md\nsub/c.org"},
		{"graph", map[string]any{"path": "b.md", "mode": "graph"}, "a.md\nsub/c.org"},
		{"absolute", map[string]any{"path": "b.md", "absolute": true, "mode": "graph"},
			filepath.Join(root, "a.md") + "\n" + filepath.Join(root, "sub", "c.org")},
		{"none", map[string]any{"path": "a.md"}, "no backlinks found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := callTool(t, srv, "get_backlinks", tt.args)
			if r.IsError {
				t.Fatalf("unexpected error: %s", resultText(r))
			}
			if got := resultText(r); got != tt.want {
				t.Errorf("backlinks = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetBacklinks_Errors(t *testing.T) {
	srv, _ := testServer(t)

	for _, args := range []map[string]any{
		{},
		{"path": "missing.md"},
		{"path": "b.md", "mode": "fuzzy"},
	} {
		if r := callTool(t, srv, "get_backlinks", args); !r.IsError {
			t.Errorf("args %v: expected error result, got %q", args, resultText(r))
		}
	}
}

func TestSearchNotes(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "search_notes", map[string]any{"query": "searchable"})
	if r.IsError {
		t.Fatalf("search error: %s", resultText(r))
	}
	var results []index.SearchResult
	if err := json.Unmarshal([]byte(resultText(r)), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 1 || results[0].Path != "b.md" || results[0].Title != "Bee" {
		t.Errorf("results = %+v", results)
	}
}

func TestReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "read_note", map[string]any{"path": "sub/c.org"})
	if got := resultText(r); got != mcpNotes["sub/c.org"] {
		t.Errorf("read result = %q", got)
	}

	r = callTool(t, srv, "read_note", map[string]any{"path": "nope.md"})
	if !r.IsError || resultText(r) != "not found: nope.md" {
		t.Errorf("missing note result = %q (error %v)", resultText(r), r.IsError)
	}
}

func TestListNotes(t *testing.T) {
	srv, _ := testServer(t)

	if got := resultText(callTool(t, srv, "list_notes", map[string]any{})); got != "a.md\nb.md\nsub/c.org" {
		t.Errorf("list = %q", got)
	}
	if got := resultText(callTool(t, srv, "list_notes", map[string]any{"folder": "sub"})); got != "sub/c.org" {
		t.Errorf("list sub = %q", got)
	}
}

func TestLinkConventionsResource(t *testing.T) {
	srv, _ := testServer(t)

	contents, err := srv.readLinkConventions(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != linkConventionsURI || tc.Text != LinkConventions {
		t.Errorf("resource = %+v", contents[0])
	}
}
