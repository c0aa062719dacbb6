package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/models"
)

// backupLayout is the ISO-8601 timestamp used for backup names before ':'
// and '.' are replaced with '-'. Fixed-width fields keep lexicographic order
// equal to chronological order.
const backupLayout = "2006-01-02T15:04:05.000Z"

// BackupDir returns <dir>/Backups/<base name without extension> for docPath.
func BackupDir(docPath string) string {
	base := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	return filepath.Join(filepath.Dir(docPath), mindmap.BackupFolderName, base)
}

// BackupSource returns the document a backup path belongs to. ok is false
// when path is not inside a backup folder.
func BackupSource(backupPath string) (string, bool) {
	docDir := filepath.Dir(backupPath)
	folder := filepath.Dir(docDir)
	if filepath.Base(folder) != mindmap.BackupFolderName || !IsDocument(backupPath) {
		return "", false
	}
	return filepath.Join(filepath.Dir(folder), filepath.Base(docDir)+mindmap.FileExtension), true
}

// BackupName returns the file name of a backup taken at t.
func BackupName(t time.Time) string {
	ts := t.UTC().Format(backupLayout)
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return ts + mindmap.FileExtension
}

// parseBackupName recovers the timestamp of a backup file name.
func parseBackupName(name string) (time.Time, bool) {
	ts := strings.TrimSuffix(name, mindmap.FileExtension)
	// 2006-01-02T15-04-05-000Z
	if len(ts) != len(backupLayout) {
		return time.Time{}, false
	}
	b := []byte(ts)
	b[13], b[16], b[19] = ':', ':', '.'
	t, err := time.Parse(backupLayout, string(b))
	return t, err == nil
}

// Backups writes and prunes the per-document backup folders.
type Backups struct {
	keep int
	now  func() time.Time
}

// NewBackups returns a Backups that retains the newest keep copies per
// document. keep <= 0 uses MaxBackupCount.
func NewBackups(keep int, now func() time.Time) *Backups {
	if keep <= 0 {
		keep = mindmap.MaxBackupCount
	}
	if now == nil {
		now = time.Now
	}
	return &Backups{keep: keep, now: now}
}

// Create writes content as a new backup of docPath and prunes old copies.
// It returns the backup path.
func (b *Backups) Create(docPath string, content []byte) (string, error) {
	dir := BackupDir(docPath)
	path := filepath.Join(dir, BackupName(b.now()))
	if err := WriteFile(path, content); err != nil {
		return "", fmt.Errorf("storage: backup %s: %w", docPath, err)
	}
	if _, err := b.Prune(docPath); err != nil {
		return path, err
	}
	return path, nil
}

// Prune deletes all but the newest backups of docPath by name order and
// returns the removed paths.
func (b *Backups) Prune(docPath string) ([]string, error) {
	names, err := backupNames(BackupDir(docPath))
	if err != nil {
		return nil, err
	}
	if len(names) <= b.keep {
		return nil, nil
	}
	var removed []string
	dir := BackupDir(docPath)
	for _, name := range names[:len(names)-b.keep] {
		p := filepath.Join(dir, name)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("storage: prune backup %s: %w", p, err)
		}
		removed = append(removed, p)
	}
	return removed, nil
}

// List returns the backups of docPath, newest first.
func (b *Backups) List(docPath string) ([]models.Backup, error) {
	dir := BackupDir(docPath)
	names, err := backupNames(dir)
	if err != nil {
		return nil, err
	}
	out := make([]models.Backup, 0, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		p := filepath.Join(dir, names[i])
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		created, ok := parseBackupName(names[i])
		if !ok {
			created = info.ModTime()
		}
		out = append(out, models.Backup{Path: p, Name: names[i], Size: info.Size(), CreatedAt: created})
	}
	return out, nil
}

// backupNames returns the .mindmap file names in dir sorted ascending.
func backupNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read backups: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsDocument(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
