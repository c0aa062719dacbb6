package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/storage"
)

// watcherTestEnv sets up a library dir, storage and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, *storage.FS, *DB) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store, testDB(t)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeDoc(t *testing.T, path, title string) {
	t.Helper()
	data, err := mindmap.Encode(mindmap.New(title, time.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestSync_IndexesAndRemovesStale(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	writeDoc(t, filepath.Join(root, "one.mindmap"), "One")
	writeDoc(t, filepath.Join(root, "sub", "two.mindmap"), "Two")
	writeDoc(t, filepath.Join(root, mindmap.BackupFolderName, "one", "2024-01-01T00-00-00-000Z.mindmap"), "Old")
	_ = os.WriteFile(filepath.Join(root, "broken.mindmap"), []byte("{"), 0o644)
	_ = db.UpsertDocument(DocumentRow{Path: "gone.mindmap", Checksum: "x"}, "", nil)

	if err := Sync(db, store, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	docs, total, _ := db.ListDocuments(10, 0, "", SortPath)
	if total != 2 || docs[0].Path != "one.mindmap" || docs[1].Path != "sub/two.mindmap" {
		t.Fatalf("indexed = %+v", docs)
	}
	if docs[1].Title != "Two" || docs[1].NodeCount != 1 {
		t.Errorf("summary = %+v", docs[1])
	}
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, quietLogger(), func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	writeDoc(t, filepath.Join(root, "new.mindmap"), "New")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("new.mindmap")
		return cs != ""
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:new.mindmap" {
				return true
			}
		}
		return false
	}, "expected created:new.mindmap callback")
}

func TestWatcher_IgnoresBackups(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	writeDoc(t, filepath.Join(root, mindmap.BackupFolderName, "x", "2024-01-01T00-00-00-000Z.mindmap"), "Backup")
	writeDoc(t, filepath.Join(root, "real.mindmap"), "Real")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("real.mindmap")
		return cs != ""
	}, "real file not indexed")

	sums, _ := db.AllChecksums()
	if len(sums) != 1 {
		t.Errorf("indexed %v, want only real.mindmap", sums)
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(root, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)

	writeDoc(t, filepath.Join(subDir, "deep.mindmap"), "Deep")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("subdir/deep.mindmap")
		return cs != ""
	}, "file in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	writeDoc(t, filepath.Join(root, "del.mindmap"), "Delete me")
	_ = Sync(db, store, quietLogger())

	if cs, _ := db.GetChecksum("del.mindmap"); cs == "" {
		t.Fatal("precondition: file should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(root, "del.mindmap"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum("del.mindmap")
		return cs == ""
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	root, store, db := watcherTestEnv(t)
	writeDoc(t, filepath.Join(root, "old.mindmap"), "Rename")
	_ = Sync(db, store, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(root, "old.mindmap"), filepath.Join(root, "renamed.mindmap"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum("old.mindmap")
		newCS, _ := db.GetChecksum("renamed.mindmap")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}
