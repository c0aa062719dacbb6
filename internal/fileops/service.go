// Package fileops is the persistence bridge between editors and disk: it
// opens, saves and backs up .mindmap files and reports failures as result
// values.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/hippomind/internal/apperr"
	"github.com/starford/hippomind/internal/index"
	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/models"
	"github.com/starford/hippomind/internal/storage"
)

// LoadResult is the outcome of reading a document.
type LoadResult struct {
	Success  bool              `json:"success"`
	Data     *mindmap.Document `json:"data,omitempty"`
	FilePath string            `json:"filePath,omitempty"`
	Error    string            `json:"error,omitempty"`
	Migrated bool              `json:"migrated,omitempty"`
	Err      error             `json:"-"`
}

// SaveResult is the outcome of writing a document or a backup.
type SaveResult struct {
	Success  bool   `json:"success"`
	FilePath string `json:"filePath,omitempty"`
	Error    string `json:"error,omitempty"`
	Err      error  `json:"-"`
}

func loadFailed(path string, err error) LoadResult {
	return LoadResult{FilePath: path, Error: err.Error(), Err: err}
}

func saveFailed(path string, err error) SaveResult {
	return SaveResult{FilePath: path, Error: err.Error(), Err: err}
}

// Service reads and writes documents. The library, index and preference
// store are optional.
type Service struct {
	store   *storage.FS
	db      index.DocumentIndex
	prefs   index.PreferenceStore
	backups *storage.Backups
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLibrary resolves relative paths against store and re-indexes files
// saved inside it.
func WithLibrary(store *storage.FS, db index.DocumentIndex) Option {
	return func(s *Service) {
		s.store = store
		s.db = db
	}
}

// WithPreferences records recent files and the last save directory.
func WithPreferences(p index.PreferenceStore) Option {
	return func(s *Service) { s.prefs = p }
}

// WithBackups overrides the backup writer.
func WithBackups(b *storage.Backups) Option {
	return func(s *Service) { s.backups = b }
}

// New creates a Service.
func New(logger *slog.Logger, opts ...Option) *Service {
	s := &Service{logger: logger, backups: storage.NewBackups(mindmap.MaxBackupCount, nil)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Resolve turns path into an absolute file path. Relative paths are taken
// from the library root when one is configured.
func (s *Service) Resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("fileops: empty path")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	if s.store != nil {
		return s.store.Abs(path)
	}
	return filepath.Abs(path)
}

// Open reads, validates, decodes and migrates the document at path.
func (s *Service) Open(ctx context.Context, path string) LoadResult {
	if err := ctx.Err(); err != nil {
		return loadFailed(path, err)
	}
	abs, err := s.Resolve(path)
	if err != nil {
		return loadFailed(path, err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return loadFailed(abs, fmt.Errorf("fileops: read %s: %w", abs, err))
	}
	doc, migrated, err := mindmap.DecodeMigrating(raw)
	if err != nil {
		s.logger.Warn("fileops: invalid document", slog.String("path", abs), slog.String("error", err.Error()))
		return loadFailed(abs, err)
	}
	if migrated {
		s.logger.Info("fileops: migrated document", slog.String("path", abs), slog.String("version", doc.Version))
	}
	s.remember(abs)
	return LoadResult{Success: true, Data: doc, FilePath: abs, Migrated: migrated}
}

// Save writes doc to path with an atomic replace.
func (s *Service) Save(ctx context.Context, path string, doc *mindmap.Document) SaveResult {
	if err := ctx.Err(); err != nil {
		return saveFailed(path, err)
	}
	abs, err := s.Resolve(path)
	if err != nil {
		return saveFailed(path, err)
	}
	if !strings.HasSuffix(abs, mindmap.FileExtension) {
		return saveFailed(abs, fmt.Errorf("fileops: %s is not a %s file: %w", abs, mindmap.FileExtension, apperr.ErrInvalid))
	}
	data, err := mindmap.Encode(doc)
	if err != nil {
		return saveFailed(abs, err)
	}
	if err := storage.WriteFile(abs, data); err != nil {
		return saveFailed(abs, err)
	}
	s.logger.Debug("fileops: saved", slog.String("path", abs))
	s.reindex(abs, data)
	s.remember(abs)
	return SaveResult{Success: true, FilePath: abs}
}

// CreateBackup writes doc into the backup folder of path and prunes old
// copies.
func (s *Service) CreateBackup(ctx context.Context, path string, doc *mindmap.Document) SaveResult {
	if err := ctx.Err(); err != nil {
		return saveFailed(path, err)
	}
	abs, err := s.Resolve(path)
	if err != nil {
		return saveFailed(path, err)
	}
	data, err := mindmap.Encode(doc)
	if err != nil {
		return saveFailed(abs, err)
	}
	out, err := s.backups.Create(abs, data)
	if err != nil {
		return saveFailed(abs, err)
	}
	s.logger.Debug("fileops: backup", slog.String("path", out))
	return SaveResult{Success: true, FilePath: out}
}

// ListBackups returns the backups of path, newest first.
func (s *Service) ListBackups(path string) ([]models.Backup, error) {
	abs, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	return s.backups.List(abs)
}

// RestoreBackup loads a backup. FilePath in the result is the document the
// backup belongs to, so saving overwrites the original.
func (s *Service) RestoreBackup(ctx context.Context, backupPath string) LoadResult {
	abs, err := s.Resolve(backupPath)
	if err != nil {
		return loadFailed(backupPath, err)
	}
	src, ok := storage.BackupSource(abs)
	if !ok {
		return loadFailed(abs, fmt.Errorf("fileops: %s is not a backup", abs))
	}
	res := s.Open(ctx, abs)
	if !res.Success {
		return res
	}
	res.FilePath = src
	return res
}

// remember updates the recent files list and the last save directory.
func (s *Service) remember(abs string) {
	if s.prefs == nil {
		return
	}
	if _, err := index.AddRecentFile(s.prefs, abs); err != nil {
		s.logger.Warn("fileops: recent files", slog.String("error", err.Error()))
	}
	if err := s.prefs.SetPreference(index.PrefLastSaveDirectory, filepath.Dir(abs)); err != nil {
		s.logger.Warn("fileops: last save directory", slog.String("error", err.Error()))
	}
}

// reindex refreshes the library row when abs lies inside the library.
func (s *Service) reindex(abs string, data []byte) {
	if s.store == nil || s.db == nil {
		return
	}
	rel, ok := s.store.Rel(abs)
	if !ok {
		return
	}
	if err := index.IndexFile(s.db, rel, data, time.Now()); err != nil {
		s.logger.Warn("fileops: index", slog.String("path", rel), slog.String("error", err.Error()))
	}
}
