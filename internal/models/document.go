// Package models defines the types shared by the library, the API and the
// host surfaces.
package models

import "time"

// DocumentFile is a lightweight listing entry for a .mindmap file.
type DocumentFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentSummary is the indexed view of a document in the library.
type DocumentSummary struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	NodeCount int       `json:"node_count"`
	Tags      []string  `json:"tags"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DirEntry is one item of a library folder listing.
type DirEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

// Backup is one timestamped copy of a document.
type Backup struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// WindowBounds is the persisted editor window geometry.
type WindowBounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Preferences are the user settings shared across documents.
type Preferences struct {
	Theme             string        `json:"theme"`
	Locale            string        `json:"locale"`
	RecentFiles       []string      `json:"recentFiles"`
	LastSaveDirectory string        `json:"lastSaveDirectory,omitempty"`
	WindowBounds      *WindowBounds `json:"windowBounds,omitempty"`
}
