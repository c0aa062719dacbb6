package api

import (
	"net/http"
	"strconv"

	"github.com/starford/hippomind/internal/models"
)

// ListDocuments handles GET /library.
//
//	@Summary		List library documents with optional pagination and filtering
//	@Tags			library
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			sort	query		string	false	"Sort field"	Enums(updated, title, path)
//	@Success		200		{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/library [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSON(w, http.StatusOK, DocumentListResponse{Documents: nil, Total: 0})
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	docs, total, err := h.db.ListDocuments(limit, offset, q.Get("tag"), q.Get("sort"))
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: total})
}

// SearchDocuments handles GET /library/search.
//
//	@Summary		Full-text search across the library
//	@Tags			library
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/library/search [get]
func (h *Handler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	out := SearchResponse{Results: []SearchResult{}}
	if h.db == nil {
		writeJSON(w, http.StatusOK, out)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.db.Search(q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	for _, res := range results {
		out.Results = append(out.Results, SearchResult(res))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListDir handles GET /library/dir?path=.
//
//	@Summary		List the folders and documents of a library folder
//	@Tags			library
//	@Produce		json
//	@Param			path	query		string	false	"Library-relative folder"
//	@Success		200		{object}	DirListResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/library/dir [get]
func (h *Handler) ListDir(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if h.store == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no library configured"))
		return
	}
	entries, err := h.store.ListDir(path)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return
	}
	if entries == nil {
		entries = []models.DirEntry{}
	}
	writeJSON(w, http.StatusOK, DirListResponse{Path: path, Entries: entries})
}

// Backlinks handles GET /library/backlinks?target=.
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'target' is required"))
		return
	}
	out := BacklinksResponse{Target: target, Sources: []string{}}
	if h.db != nil {
		sources, err := h.db.Backlinks(target)
		if err != nil {
			writeError(w, "backlinks", err)
			return
		}
		if sources != nil {
			out.Sources = sources
		}
	}
	writeJSON(w, http.StatusOK, out)
}
