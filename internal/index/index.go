package index

import "github.com/starford/hippomind/internal/models"

// DocumentIndex defines the library index operations. Consumers depend on
// this interface rather than on *DB.
type DocumentIndex interface {
	UpsertDocument(d DocumentRow, body string, links []string) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	GetDocument(path string) (*models.DocumentSummary, error)
	ListDocuments(limit, offset int, tag, sort string) ([]models.DocumentSummary, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Backlinks(target string) ([]string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// PreferenceStore persists user preferences.
type PreferenceStore interface {
	GetPreference(key string, dst any) (bool, error)
	SetPreference(key string, value any) error
}

var (
	_ DocumentIndex   = (*DB)(nil)
	_ PreferenceStore = (*DB)(nil)
)
