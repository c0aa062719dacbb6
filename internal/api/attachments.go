package api

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/starford/hippomind/internal/editor"
	"github.com/starford/hippomind/internal/geometry"
	"github.com/starford/hippomind/internal/mindmap"
)

const maxUploadBytes = 20 << 20

// UploadAttachment handles POST /tabs/{id}/attachments/upload
// (multipart/form-data, field "file", optional "x" and "y"). The file is
// embedded in the document as base64; images become image attachments
// scaled to at most 400px wide, anything else a document attachment.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	a := mindmap.Attachment{
		Type:     mindmap.AttachmentDocument,
		Name:     filepath.Base(header.Filename),
		Data:     base64.StdEncoding.EncodeToString(raw),
		MimeType: header.Header.Get("Content-Type"),
		Size:     geometry.DefaultAttachmentSize,
	}
	if a.MimeType == "" || a.MimeType == "application/octet-stream" {
		a.MimeType = http.DetectContentType(raw)
	}
	a.Pos.X, _ = strconv.ParseFloat(r.FormValue("x"), 64)
	a.Pos.Y, _ = strconv.ParseFloat(r.FormValue("y"), 64)

	if strings.HasPrefix(a.MimeType, "image/") {
		a.Type = mindmap.AttachmentImage
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
			a.Size = geometry.ImageSize(cfg.Width, cfg.Height)
		}
	}

	h.edit(w, r, "upload attachment", http.StatusCreated, func(ed *editor.Editor) (string, error) {
		return ed.AddAttachment(a)
	})
}
