package index

import (
	"log/slog"
	"time"

	"github.com/starford/hippomind/internal/checksum"
	"github.com/starford/hippomind/internal/parser"
	"github.com/starford/hippomind/internal/storage"
)

// Sync walks the library and brings the index up to date. Changed files are
// re-parsed, unchanged ones skipped by checksum, and rows whose file is gone
// are removed. Unreadable or invalid documents are logged and left out.
func Sync(db DocumentIndex, store storage.Provider, logger *slog.Logger) error {
	files, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(files))
	for _, f := range files {
		disk[f.Path] = struct{}{}
		if checksums[f.Path] == f.Checksum {
			continue
		}
		data, err := store.Read(f.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, f.Path, data, f.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: indexed", slog.String("path", f.Path))
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeleteDocument(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}
	return nil
}

// IndexFile parses data and upserts it under path.
func IndexFile(db DocumentIndex, path string, data []byte, modTime time.Time) error {
	res, err := parser.Parse(data)
	if err != nil {
		return err
	}
	row := DocumentRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  checksum.Sum(data),
		NodeCount: res.NodeCount,
		Tags:      res.Tags,
		UpdatedAt: modTime,
	}
	return db.UpsertDocument(row, res.Body, res.Links)
}
