// Package models defines the domain types shared by slipbox packages.
package models

import "time"

// NoteMetadata is a lightweight representation returned by list operations.
// Path is relative to the notes root and uses forward slashes.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link represents a directed edge between two notes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}
