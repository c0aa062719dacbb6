package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/hippomind/internal/editor"
	"github.com/starford/hippomind/internal/geometry"
	"github.com/starford/hippomind/internal/mindmap"
)

// edit runs fn on the tab's editor and answers with the updated tab.
func (h *Handler) edit(w http.ResponseWriter, r *http.Request, op string, status int, fn func(*editor.Editor) (string, error)) {
	var id string
	info, err := h.ws.With(chi.URLParam(r, "id"), func(ed *editor.Editor) error {
		var err error
		id, err = fn(ed)
		return err
	})
	if err != nil {
		writeError(w, op, err)
		return
	}
	h.tabResponse(w, status, info, id)
}

// AddNode handles POST /tabs/{id}/nodes.
//
//	@Summary		Add a child or sibling node
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Tab id"
//	@Param			body	body		AddNodeRequest	true	"Reference node"
//	@Success		201		{object}	TabResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse	"root has no siblings"
//	@Security		BearerAuth
//	@Router			/tabs/{id}/nodes [post]
func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asChild := req.AsChild == nil || *req.AsChild
	h.edit(w, r, "add node", http.StatusCreated, func(ed *editor.Editor) (string, error) {
		return ed.AddNode(req.ParentID, req.Text, asChild)
	})
}

// UpdateNode handles PATCH /tabs/{id}/nodes/{nodeId}.
func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var patch mindmap.NodePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		writeJSON(w, http.StatusBadRequest, errorBody("patch is empty"))
		return
	}
	nodeID := chi.URLParam(r, "nodeId")
	h.edit(w, r, "update node", http.StatusOK, func(ed *editor.Editor) (string, error) {
		return nodeID, ed.UpdateNode(nodeID, patch)
	})
}

// DeleteNode handles DELETE /tabs/{id}/nodes/{nodeId}.
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeId")
	h.edit(w, r, "delete node", http.StatusOK, func(ed *editor.Editor) (string, error) {
		return nodeID, ed.DeleteNode(nodeID)
	})
}

// AutoSizeNode handles POST /tabs/{id}/nodes/{nodeId}/autosize: the node is
// resized to fit its text.
func (h *Handler) AutoSizeNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeId")
	h.edit(w, r, "autosize node", http.StatusOK, func(ed *editor.Editor) (string, error) {
		doc := ed.Document()
		n := doc.Node(nodeID)
		if n == nil {
			return "", mindmap.ErrNodeNotFound
		}
		size := geometry.AutoSize(n.Text, geometry.FontFor(doc, n), h.measurer)
		if size == n.Size {
			return nodeID, nil
		}
		return nodeID, ed.UpdateNode(nodeID, mindmap.NodePatch{Size: &size})
	})
}

// UpdateEdge handles PATCH /tabs/{id}/edges/{parentId}/{childId}. A JSON
// null removes that field from the override.
func (h *Handler) UpdateEdge(w http.ResponseWriter, r *http.Request) {
	var patch mindmap.EdgePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	parentID, childID := chi.URLParam(r, "parentId"), chi.URLParam(r, "childId")
	h.edit(w, r, "update edge", http.StatusOK, func(ed *editor.Editor) (string, error) {
		return mindmap.EdgeKey(parentID, childID), ed.UpdateEdgeStyle(parentID, childID, patch)
	})
}

// AddAttachment handles POST /tabs/{id}/attachments.
func (h *Handler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	var req AttachmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.edit(w, r, "add attachment", http.StatusCreated, func(ed *editor.Editor) (string, error) {
		return ed.AddAttachment(req.Attachment)
	})
}

// UpdateAttachment handles PATCH /tabs/{id}/attachments/{attachmentId}.
func (h *Handler) UpdateAttachment(w http.ResponseWriter, r *http.Request) {
	var patch mindmap.AttachmentPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	id := chi.URLParam(r, "attachmentId")
	h.edit(w, r, "update attachment", http.StatusOK, func(ed *editor.Editor) (string, error) {
		return id, ed.UpdateAttachment(id, patch)
	})
}

// DeleteAttachment handles DELETE /tabs/{id}/attachments/{attachmentId}.
func (h *Handler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "attachmentId")
	h.edit(w, r, "delete attachment", http.StatusOK, func(ed *editor.Editor) (string, error) {
		return id, ed.DeleteAttachment(id)
	})
}

// SetTitle handles PUT /tabs/{id}/title.
func (h *Handler) SetTitle(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.edit(w, r, "set title", http.StatusOK, func(ed *editor.Editor) (string, error) {
		ed.SetTitle(req.Title)
		return "", nil
	})
}

// SetTheme handles PUT /tabs/{id}/theme.
func (h *Handler) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req ThemeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	theme, _ := mindmap.ThemeByName(req.Name)
	h.edit(w, r, "set theme", http.StatusOK, func(ed *editor.Editor) (string, error) {
		ed.SetTheme(theme)
		return "", nil
	})
}

// Select handles PUT /tabs/{id}/selection. Selection is not an edit and
// does not enter history.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.edit(w, r, "select", http.StatusOK, func(ed *editor.Editor) (string, error) {
		switch {
		case req.Edge != nil:
			ed.SelectEdge(req.Edge.ParentID, req.Edge.ChildID)
		case req.AttachmentID != "":
			ed.SelectAttachment(req.AttachmentID)
		default:
			ed.SelectNode(req.NodeID)
		}
		return "", nil
	})
}
