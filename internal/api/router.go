package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted. sseHandler,
// if non-nil, is mounted at GET /events behind the same auth.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/library", func(r chi.Router) {
		r.Get("/", h.ListDocuments)
		r.Get("/search", h.SearchDocuments)
		r.Get("/dir", h.ListDir)
		r.Get("/backlinks", h.Backlinks)
	})

	r.Route("/tabs", func(r chi.Router) {
		r.Get("/", h.ListTabs)
		r.Post("/", h.NewTab)
		r.Post("/open", h.OpenTab)
		r.Post("/restore", h.RestoreBackup)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTab)
			r.Delete("/", h.CloseTab)
			r.Post("/activate", h.ActivateTab)
			r.Post("/save", h.SaveTab)
			r.Post("/backup", h.BackupTab)
			r.Get("/backups", h.ListBackups)
			r.Post("/undo", h.Undo)
			r.Post("/redo", h.Redo)
			r.Get("/render", h.Render)
			r.Put("/title", h.SetTitle)
			r.Put("/theme", h.SetTheme)
			r.Put("/selection", h.Select)

			r.Post("/nodes", h.AddNode)
			r.Patch("/nodes/{nodeId}", h.UpdateNode)
			r.Delete("/nodes/{nodeId}", h.DeleteNode)
			r.Post("/nodes/{nodeId}/autosize", h.AutoSizeNode)

			r.Patch("/edges/{parentId}/{childId}", h.UpdateEdge)

			r.Post("/attachments", h.AddAttachment)
			r.Post("/attachments/upload", h.UploadAttachment)
			r.Patch("/attachments/{attachmentId}", h.UpdateAttachment)
			r.Delete("/attachments/{attachmentId}", h.DeleteAttachment)
		})
	})

	r.Get("/prefs", h.GetPreferences)
	r.Get("/prefs/{key}", h.GetPreference)
	r.Put("/prefs/{key}", h.SetPreference)

	r.Get("/app/version", h.Version)
	r.Get("/app/locale", h.Locale)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
