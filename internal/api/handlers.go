package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/slipbox/internal/backlinks"
	"github.com/starford/slipbox/internal/noteservice"
)

const defaultSearchLimit = 15

// Handler holds API route handlers.
type Handler struct {
	svc    *noteservice.Service
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Encoded slashes (ideas%2Fzettel.md) are accepted.
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// queryBool parses an optional boolean query parameter.
func queryBool(q url.Values, key string) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// Backlinks handles GET /api/backlinks.
//
//	@Summary		List the notes that reference a note
//	@Tags			backlinks
//	@Produce		json
//	@Param			path		query		string	true	"Target note, relative to the notes root or absolute"
//	@Param			nested		query		bool	false	"Search from every directory under the root"
//	@Param			absolute	query		bool	false	"Return absolute paths"
//	@Param			mode		query		string	false	"Discovery mode"	Enums(search, graph)
//	@Success		200			{object}	BacklinksResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("path")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	nested, err := queryBool(q, "nested")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid 'nested' value"))
		return
	}
	absolute, err := queryBool(q, "absolute")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid 'absolute' value"))
		return
	}
	mode, err := backlinks.ParseMode(q.Get("mode"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	found, err := h.svc.Backlinks(r.Context(), target, backlinks.Options{
		Nested:   nested,
		Absolute: absolute,
		Mode:     mode,
	})
	if err != nil {
		writeError(w, r, h.logger, "backlinks", err, slog.String("path", target))
		return
	}
	if found == nil {
		found = []string{}
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{
		Path:      target,
		Mode:      string(mode),
		Backlinks: found,
	})
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, optionally below a folder
//	@Tags			notes
//	@Produce		json
//	@Param			folder	query		string	false	"Folder relative to the notes root"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	folder := r.URL.Query().Get("folder")
	items, err := h.svc.ListNotes(r.Context(), folder)
	if err != nil {
		writeError(w, r, h.logger, "list notes", err, slog.String("folder", folder))
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note with its backlinks
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		writeError(w, r, h.logger, "get note", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new, optionally titled, note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Path, req.Title)
	if err != nil {
		writeError(w, r, h.logger, "create note", err, slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, h.logger, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the link graph of the whole tree
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
