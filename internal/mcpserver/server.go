// Package mcpserver exposes slipbox tools over the Model Context Protocol
// (stdio transport).
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/slipbox/internal/apperr"
	"github.com/starford/slipbox/internal/backlinks"
	"github.com/starford/slipbox/internal/noteservice"
)

const (
	linkConventionsURI = "slipbox://link-conventions"
	searchLimit        = 15
)

// Server wraps the MCP server with slipbox tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *noteservice.Service
	logger *slog.Logger
}

// New creates a new MCP server with all slipbox tools registered.
func New(svc *noteservice.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, logger: logger}

	s.mcp = server.NewMCPServer(
		"slipbox",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("List the notes that reference a note by its file name or relative path. "+
			"See the "+linkConventionsURI+" resource for how links are recognized."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Target note, relative to the notes root (e.g. ideas/zettel.md) or absolute")),
		mcp.WithBoolean("nested", mcp.Description("Search from every directory under the notes root")),
		mcp.WithBoolean("absolute", mcp.Description("Return absolute paths")),
		mcp.WithString("mode", mcp.Enum(string(backlinks.ModeSearch), string(backlinks.ModeGraph)),
			mcp.Description("Discovery mode: content search (default) or parsed link graph")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the notes root")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes or the notes below a folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listNotes)

	s.mcp.AddResource(
		mcp.NewResource(linkConventionsURI, "Link Conventions",
			mcp.WithResourceDescription("How slipbox recognizes links between notes and finds backlinks."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLinkConventions,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := backlinks.ParseMode(req.GetString("mode", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	found, err := s.svc.Backlinks(ctx, path, backlinks.Options{
		Nested:   req.GetBool("nested", false),
		Absolute: req.GetBool("absolute", false),
		Mode:     mode,
	})
	if err != nil {
		return s.toolError("get_backlinks", path, err), nil
	}
	if len(found) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(found, "\n")), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, searchLimit)
	if err != nil {
		return s.toolError("search_notes", query, err), nil
	}
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, path)
	if err != nil {
		return s.toolError("read_note", path, err), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := req.GetString("folder", "")
	metas, err := s.svc.ListNotes(ctx, folder)
	if err != nil {
		return s.toolError("list_notes", folder, err), nil
	}
	paths := make([]string, len(metas))
	for i, m := range metas {
		paths[i] = m.Path
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) readLinkConventions(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      linkConventionsURI,
			MIMEType: "text/markdown",
			Text:     LinkConventions,
		},
	}, nil
}

// toolError turns a service error into a tool-level error result. Lookups
// of missing notes read as "not found"; anything else is logged too.
func (s *Server) toolError(tool, arg string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrTargetNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", arg))
	case errors.Is(err, apperr.ErrInvalidPath):
		return mcp.NewToolResultError(err.Error())
	}
	s.logger.Error("mcp: tool failed",
		slog.String("tool", tool),
		slog.String("arg", arg),
		slog.String("error", err.Error()))
	return mcp.NewToolResultError(err.Error())
}
