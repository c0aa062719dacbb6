package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/hippomind/internal/index"
	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/models"
)

// GetPreferences handles GET /prefs.
//
//	@Summary		Read all user preferences
//	@Tags			prefs
//	@Produce		json
//	@Success		200	{object}	models.Preferences
//	@Security		BearerAuth
//	@Router			/prefs [get]
func (h *Handler) GetPreferences(w http.ResponseWriter, _ *http.Request) {
	if h.prefs == nil {
		writeJSON(w, http.StatusOK, models.Preferences{Theme: string(mindmap.DefaultThemeName), Locale: h.defaultLocale(), RecentFiles: []string{}})
		return
	}
	p, err := index.Preferences(h.prefs)
	if err != nil {
		writeError(w, "get preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func prefKey(r *http.Request) (string, error) {
	key := chi.URLParam(r, "key")
	keys := make([]any, len(index.PreferenceKeys))
	for i, k := range index.PreferenceKeys {
		keys[i] = k
	}
	return key, validation.Validate(key, validation.Required, validation.In(keys...))
}

// GetPreference handles GET /prefs/{key}. An unset key answers with a null
// value.
func (h *Handler) GetPreference(w http.ResponseWriter, r *http.Request) {
	key, err := prefKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown preference: "+err.Error()))
		return
	}
	var value any
	if h.prefs != nil {
		if _, err := h.prefs.GetPreference(key, &value); err != nil {
			writeError(w, "get preference", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": value})
}

// SetPreference handles PUT /prefs/{key}.
func (h *Handler) SetPreference(w http.ResponseWriter, r *http.Request) {
	key, err := prefKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown preference: "+err.Error()))
		return
	}
	if h.prefs == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("preferences are not configured"))
		return
	}
	var req PreferenceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validatePreference(key, req.Value); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.prefs.SetPreference(key, req.Value); err != nil {
		writeError(w, "set preference", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": req.Value})
}

func validatePreference(key string, value any) error {
	switch key {
	case index.PrefTheme:
		s, _ := value.(string)
		return validation.Validate(s, validation.Required,
			validation.In(string(mindmap.ThemeLight), string(mindmap.ThemeDark), string(mindmap.ThemeSepia), string(mindmap.ThemeSlate)))
	case index.PrefLocale:
		s, _ := value.(string)
		locales := make([]any, len(mindmap.SupportedLocales))
		for i, l := range mindmap.SupportedLocales {
			locales[i] = l
		}
		return validation.Validate(s, validation.Required, validation.In(locales...))
	case index.PrefRecentFiles:
		list, ok := value.([]any)
		if !ok || len(list) > index.MaxRecentFiles {
			return validation.NewError("validation_recent_files", "must be a list of at most 10 paths")
		}
	}
	return nil
}

func (h *Handler) defaultLocale() string {
	if h.locale != "" {
		return h.locale
	}
	return mindmap.DefaultLocale
}

// Version handles GET /app/version.
func (h *Handler) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Name:          mindmap.AppName,
		Version:       mindmap.AppVersion,
		FormatVersion: mindmap.FormatVersion,
	})
}

// Locale handles GET /app/locale: the stored preference, else the
// configured default.
func (h *Handler) Locale(w http.ResponseWriter, _ *http.Request) {
	locale := h.defaultLocale()
	if h.prefs != nil {
		var stored string
		if ok, err := h.prefs.GetPreference(index.PrefLocale, &stored); err == nil && ok && slices.Contains(mindmap.SupportedLocales, stored) {
			locale = stored
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"locale": locale})
}
