// Package testutil provides shared test helpers for setting up libraries,
// databases and documents.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/hippomind/internal/index"
	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "hippomind-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory.
func TestLibrary(t *testing.T) *storage.FS {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// WriteDocument encodes doc to root/rel and returns the absolute path.
func WriteDocument(t *testing.T, root, rel string, doc *mindmap.Document) string {
	t.Helper()
	data, err := mindmap.Encode(doc)
	if err != nil {
		t.Fatal(err)
	}
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := storage.WriteFile(abs, data); err != nil {
		t.Fatal(err)
	}
	return abs
}

// FixedTime is the creation time of documents built by NewDocument.
var FixedTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewDocument returns a document with a root and two children, created at
// a fixed time.
func NewDocument(t *testing.T, title string) *mindmap.Document {
	t.Helper()
	d := mindmap.New(title, FixedTime)
	for _, text := range []string{"Alpha", "Beta"} {
		var err error
		d, _, err = mindmap.AddNode(d, d.RootID, text, true)
		if err != nil {
			t.Fatal(err)
		}
	}
	return d
}
