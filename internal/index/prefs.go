package index

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-json"

	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/models"
)

// Preference keys.
const (
	PrefTheme             = "theme"
	PrefLocale            = "locale"
	PrefRecentFiles       = "recentFiles"
	PrefLastSaveDirectory = "lastSaveDirectory"
	PrefWindowBounds      = "windowBounds"
)

// PreferenceKeys lists the keys the preference store accepts.
var PreferenceKeys = []string{PrefTheme, PrefLocale, PrefRecentFiles, PrefLastSaveDirectory, PrefWindowBounds}

// MaxRecentFiles caps the recent files list.
const MaxRecentFiles = 10

// GetPreference decodes the stored JSON value of key into dst. It reports
// false when the key was never set.
func (db *DB) GetPreference(key string, dst any) (bool, error) {
	var raw string
	err := db.conn.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("index: get preference %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("index: decode preference %s: %w", key, err)
	}
	return true, nil
}

// SetPreference stores value as JSON under key.
func (db *DB) SetPreference(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("index: encode preference %s: %w", key, err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(raw))
	if err != nil {
		return fmt.Errorf("index: set preference %s: %w", key, err)
	}
	return nil
}

// Preferences loads all known preferences, filling defaults for unset keys.
func Preferences(s PreferenceStore) (models.Preferences, error) {
	p := models.Preferences{
		Theme:       string(mindmap.DefaultThemeName),
		Locale:      mindmap.DefaultLocale,
		RecentFiles: []string{},
	}
	if _, err := s.GetPreference(PrefTheme, &p.Theme); err != nil {
		return p, err
	}
	if _, err := s.GetPreference(PrefLocale, &p.Locale); err != nil {
		return p, err
	}
	if _, err := s.GetPreference(PrefRecentFiles, &p.RecentFiles); err != nil {
		return p, err
	}
	if _, err := s.GetPreference(PrefLastSaveDirectory, &p.LastSaveDirectory); err != nil {
		return p, err
	}
	var wb models.WindowBounds
	ok, err := s.GetPreference(PrefWindowBounds, &wb)
	if err != nil {
		return p, err
	}
	if ok {
		p.WindowBounds = &wb
	}
	return p, nil
}

// AddRecentFile moves path to the front of the recent files list, keeping
// at most MaxRecentFiles entries.
func AddRecentFile(s PreferenceStore, path string) ([]string, error) {
	var recent []string
	if _, err := s.GetPreference(PrefRecentFiles, &recent); err != nil {
		return nil, err
	}
	recent = slices.DeleteFunc(recent, func(p string) bool { return p == path })
	recent = append([]string{path}, recent...)
	if len(recent) > MaxRecentFiles {
		recent = recent[:MaxRecentFiles]
	}
	return recent, s.SetPreference(PrefRecentFiles, recent)
}
