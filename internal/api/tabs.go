package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/hippomind/internal/apperr"
	"github.com/starford/hippomind/internal/editor"
	"github.com/starford/hippomind/internal/render"
	"github.com/starford/hippomind/internal/workspace"
)

func (h *Handler) tabResponse(w http.ResponseWriter, status int, info workspace.TabInfo, id string) {
	doc, err := h.ws.Document(info.ID)
	if err != nil {
		writeError(w, "tab", err)
		return
	}
	writeJSON(w, status, TabResponse{Tab: info, Document: doc, ID: id})
}

// ListTabs handles GET /tabs.
//
//	@Summary		List open documents
//	@Tags			tabs
//	@Produce		json
//	@Success		200	{object}	TabListResponse
//	@Security		BearerAuth
//	@Router			/tabs [get]
func (h *Handler) ListTabs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TabListResponse{Tabs: h.ws.List()})
}

// NewTab handles POST /tabs.
//
//	@Summary		Open a blank document
//	@Tags			tabs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NewTabRequest	false	"Title"
//	@Success		201		{object}	TabResponse
//	@Security		BearerAuth
//	@Router			/tabs [post]
func (h *Handler) NewTab(w http.ResponseWriter, r *http.Request) {
	var req NewTabRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	h.tabResponse(w, http.StatusCreated, h.ws.New(req.Title), "")
}

// OpenTab handles POST /tabs/open.
//
//	@Summary		Open a .mindmap file
//	@Tags			tabs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"File path"
//	@Success		200		{object}	TabResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tabs/open [post]
func (h *Handler) OpenTab(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.confine(req.Path); err != nil {
		writeError(w, "open tab", err)
		return
	}
	info, err := h.ws.Open(r.Context(), req.Path)
	if err != nil {
		writeError(w, "open tab", err)
		return
	}
	h.tabResponse(w, http.StatusOK, info, "")
}

// RestoreBackup handles POST /tabs/restore.
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.confine(req.Path); err != nil {
		writeError(w, "restore backup", err)
		return
	}
	info, err := h.ws.RestoreBackup(r.Context(), req.Path)
	if err != nil {
		writeError(w, "restore backup", err)
		return
	}
	h.tabResponse(w, http.StatusCreated, info, "")
}

// errOutsideLibrary rejects request paths that name files the library does
// not contain.
var errOutsideLibrary = fmt.Errorf("path is outside the library: %w", apperr.ErrInvalid)

// confine checks that path stays inside the library. Relative paths may not
// climb out of the root and absolute ones must lie under it. Without a
// library only local relative paths are accepted.
func (h *Handler) confine(path string) error {
	if path == "" {
		return nil
	}
	switch {
	case h.store == nil:
		if !filepath.IsLocal(path) {
			return fmt.Errorf("%w: %s", errOutsideLibrary, path)
		}
	case filepath.IsAbs(path):
		if _, ok := h.store.Rel(filepath.Clean(path)); !ok {
			return fmt.Errorf("%w: %s", errOutsideLibrary, path)
		}
	default:
		if _, err := h.store.Abs(path); err != nil {
			return fmt.Errorf("%w: %s", errOutsideLibrary, path)
		}
	}
	return nil
}

// GetTab handles GET /tabs/{id}.
func (h *Handler) GetTab(w http.ResponseWriter, r *http.Request) {
	info, err := h.ws.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get tab", err)
		return
	}
	h.tabResponse(w, http.StatusOK, info, "")
}

// CloseTab handles DELETE /tabs/{id}?force=true.
//
//	@Summary		Close a document
//	@Tags			tabs
//	@Param			id		path	string	true	"Tab id"
//	@Param			force	query	bool	false	"Discard unsaved changes"
//	@Success		204		"Tab closed"
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tabs/{id} [delete]
func (h *Handler) CloseTab(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := h.ws.Close(chi.URLParam(r, "id"), force); err != nil {
		writeError(w, "close tab", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateTab handles POST /tabs/{id}/activate.
func (h *Handler) ActivateTab(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.ws.Activate(id); err != nil {
		writeError(w, "activate tab", err)
		return
	}
	info, _ := h.ws.Get(id)
	writeJSON(w, http.StatusOK, TabResponse{Tab: info})
}

// SaveTab handles POST /tabs/{id}/save. A body with a path saves as.
//
//	@Summary		Save a document
//	@Tags			tabs
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Tab id"
//	@Param			body	body		SaveRequest	false	"Target path"
//	@Success		200		{object}	fileops.SaveResult
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tabs/{id}/save [post]
func (h *Handler) SaveTab(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if err := h.confine(req.Path); err != nil {
		writeError(w, "save tab", err)
		return
	}
	res, err := h.ws.SaveAs(r.Context(), chi.URLParam(r, "id"), req.Path)
	if err != nil {
		writeError(w, "save tab", err)
		return
	}
	status := http.StatusOK
	switch {
	case res.Success:
	case errors.Is(res.Err, apperr.ErrInvalid):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

// BackupTab handles POST /tabs/{id}/backup.
func (h *Handler) BackupTab(w http.ResponseWriter, r *http.Request) {
	res, err := h.ws.CreateBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "backup tab", err)
		return
	}
	status := http.StatusCreated
	if !res.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

// ListBackups handles GET /tabs/{id}/backups.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.ws.Backups(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "list backups", err)
		return
	}
	writeJSON(w, http.StatusOK, BackupListResponse{Backups: backups})
}

// Undo handles POST /tabs/{id}/undo. Nothing to undo is a 409.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, "undo", (*editor.Editor).Undo)
}

// Redo handles POST /tabs/{id}/redo. Nothing to redo is a 409.
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, "redo", (*editor.Editor).Redo)
}

func (h *Handler) step(w http.ResponseWriter, r *http.Request, op string, fn func(*editor.Editor) bool) {
	moved := false
	info, err := h.ws.With(chi.URLParam(r, "id"), func(ed *editor.Editor) error {
		moved = fn(ed)
		return nil
	})
	if err != nil {
		writeError(w, op, err)
		return
	}
	if !moved {
		writeJSON(w, http.StatusConflict, errorBody("nothing to "+op))
		return
	}
	h.tabResponse(w, http.StatusOK, info, "")
}

// Render handles GET /tabs/{id}/render?format=svg|png.
//
//	@Summary		Export a document as an image
//	@Tags			tabs
//	@Produce		image/svg+xml
//	@Produce		image/png
//	@Param			id		path	string	true	"Tab id"
//	@Param			format	query	string	false	"Image format"	Enums(svg, png)
//	@Success		200
//	@Failure		413		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tabs/{id}/render [get]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("rendering is not configured"))
		return
	}
	format, err := render.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	doc, err := h.ws.Document(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "render", err)
		return
	}
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, doc, format); err != nil {
		if errors.Is(err, render.ErrCanvasTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody(err.Error()))
			return
		}
		writeError(w, "render", err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
