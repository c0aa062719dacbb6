package api

import (
	"github.com/starford/hippomind/internal/geometry"
	"github.com/starford/hippomind/internal/index"
	"github.com/starford/hippomind/internal/render"
	"github.com/starford/hippomind/internal/storage"
	"github.com/starford/hippomind/internal/workspace"
)

// Deps are the services the handlers drive. Index and Prefs may be nil when
// no library is configured.
type Deps struct {
	Workspace *workspace.Workspace
	Library   *storage.FS
	Index     index.DocumentIndex
	Prefs     index.PreferenceStore
	Renderer  *render.Renderer
	Measurer  geometry.Measurer
	// Locale is reported when no locale preference is stored.
	Locale string
}

// Handler holds API route handlers.
type Handler struct {
	ws       *workspace.Workspace
	store    *storage.FS
	db       index.DocumentIndex
	prefs    index.PreferenceStore
	renderer *render.Renderer
	measurer geometry.Measurer
	locale   string
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		ws:       d.Workspace,
		store:    d.Library,
		db:       d.Index,
		prefs:    d.Prefs,
		renderer: d.Renderer,
		measurer: d.Measurer,
		locale:   d.Locale,
	}
	if h.measurer == nil {
		h.measurer = geometry.FixedMeasurer{Width: 8}
	}
	return h
}
