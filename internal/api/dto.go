package api

import (
	"github.com/starford/slipbox/internal/index"
	"github.com/starford/slipbox/internal/models"
	"github.com/starford/slipbox/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path  string `json:"path" example:"ideas/zettel.md"`
	Title string `json:"title,omitempty" example:"Zettel"`
}

// BacklinksResponse lists the notes referencing Path.
type BacklinksResponse struct {
	Path      string   `json:"path" example:"ideas/zettel.md"`
	Mode      string   `json:"mode" example:"search"`
	Backlinks []string `json:"backlinks"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []models.NoteMetadata `json:"notes"`
	Total int                   `json:"total" example:"42"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// GraphResponse is the link graph of the whole tree.
type GraphResponse = noteservice.GraphView
