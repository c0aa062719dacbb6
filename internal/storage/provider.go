// Package storage provides file access for the document library and
// timestamped document backups.
package storage

import "github.com/starford/hippomind/internal/models"

// Provider is the interface for library file operations. Paths are relative
// to the library root.
type Provider interface {
	// List returns every .mindmap file under dir, skipping backup folders.
	List(dir string) ([]models.DocumentFile, error)
	// ListDir returns the folders and documents directly inside dir.
	ListDir(dir string) ([]models.DirEntry, error)
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	Delete(path string) error
	Move(oldPath, newPath string) error
	// Abs resolves a library-relative path to an absolute one.
	Abs(path string) (string, error)
}
