package api

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/hippomind/internal/editor"
	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/models"
	"github.com/starford/hippomind/internal/workspace"
)

// NewTabRequest is the request body for opening a blank document.
type NewTabRequest struct {
	Title string `json:"title" example:"Projet"`
}

// PathRequest names a file to open, save to or restore.
type PathRequest struct {
	Path string `json:"path" example:"projets/roadmap.mindmap"`
}

// Validate requires a path.
func (r PathRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Path, validation.Required))
}

// SaveRequest optionally redirects a save to a new path.
type SaveRequest struct {
	Path string `json:"path,omitempty" example:"projets/copie.mindmap"`
}

// Validate requires a new path to name a mind map file.
func (r SaveRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Path, validation.By(documentPath)))
}

func documentPath(v any) error {
	p, _ := v.(string)
	if p != "" && !strings.HasSuffix(p, mindmap.FileExtension) {
		return errors.New("must end in " + mindmap.FileExtension)
	}
	return nil
}

// AddNodeRequest is the request body for adding a node.
type AddNodeRequest struct {
	ParentID string `json:"parentId" validate:"required"`
	Text     string `json:"text,omitempty"`
	AsChild  *bool  `json:"asChild,omitempty"`
}

// Validate requires the reference node.
func (r AddNodeRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.ParentID, validation.Required))
}

// TitleRequest renames a document.
type TitleRequest struct {
	Title string `json:"title" validate:"required"`
}

// Validate requires a non-empty title.
func (r TitleRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Title, validation.Required, validation.Length(1, 200)))
}

// ThemeRequest switches a document to a preset theme.
type ThemeRequest struct {
	Name string `json:"name" example:"dark"`
}

// Validate accepts only the preset names.
func (r ThemeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required,
			validation.In(string(mindmap.ThemeLight), string(mindmap.ThemeDark), string(mindmap.ThemeSepia), string(mindmap.ThemeSlate))))
}

// AttachmentRequest is the request body for adding an attachment.
type AttachmentRequest struct {
	mindmap.Attachment
}

// Validate checks the attachment kind and shape.
func (r AttachmentRequest) Validate() error {
	a := r.Attachment
	return validation.ValidateStruct(&a,
		validation.Field(&a.Type, validation.Required,
			validation.In(mindmap.AttachmentImage, mindmap.AttachmentDocument, mindmap.AttachmentText, mindmap.AttachmentShape)),
		validation.Field(&a.ShapeType,
			validation.In(mindmap.ShapeRectangle, mindmap.ShapeCircle, mindmap.ShapeTriangle, mindmap.ShapeStar, mindmap.ShapeArrow)),
	)
}

// PreferenceRequest carries a preference value of any JSON type.
type PreferenceRequest struct {
	Value any `json:"value"`
}

// TabResponse describes a tab and, where useful, its document.
type TabResponse struct {
	Tab      workspace.TabInfo `json:"tab"`
	Document *mindmap.Document `json:"document,omitempty"`
	ID       string            `json:"id,omitempty" example:"5f0c7d0e-2c55-4a4e-9a52-2f1c2f5e7f11"`
}

// TabListResponse lists open tabs.
type TabListResponse struct {
	Tabs []workspace.TabInfo `json:"tabs" validate:"required"`
}

// DocumentListResponse wraps paginated library listings.
type DocumentListResponse struct {
	Documents []models.DocumentSummary `json:"documents" validate:"required"`
	Total     int                      `json:"total" example:"42" validate:"required"`
}

// DirListResponse is the response for GET /library/dir.
type DirListResponse struct {
	Path    string            `json:"path" example:"projects"`
	Entries []models.DirEntry `json:"entries" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"projets/roadmap.mindmap" validate:"required"`
	Title   string `json:"title" example:"Roadmap" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// BacklinksResponse lists documents linking to a target.
type BacklinksResponse struct {
	Target  string   `json:"target"`
	Sources []string `json:"sources"`
}

// BackupListResponse lists the backups of a tab's file.
type BackupListResponse struct {
	Backups []models.Backup `json:"backups" validate:"required"`
}

// VersionResponse identifies the application.
type VersionResponse struct {
	Name          string `json:"name" example:"HippoMind"`
	Version       string `json:"version" example:"1.0.0"`
	FormatVersion string `json:"formatVersion" example:"1.0.0"`
}

// SelectionRequest replaces the selection of a tab.
type SelectionRequest = editor.Selection
