// Package mindmap defines the mind map document model, its file format and
// the pure mutation functions that derive one document value from another.
//
// Documents are treated as immutable once published: every mutation copies
// the top-level maps and the nodes it touches, so history snapshots share
// all untouched nodes with the current document.
package mindmap

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ThemeName identifies a theme preset.
type ThemeName string

const (
	ThemeLight ThemeName = "light"
	ThemeDark  ThemeName = "dark"
	ThemeSepia ThemeName = "sepia"
	ThemeSlate ThemeName = "slate"
)

// NodeShape is the outline drawn around node text.
type NodeShape string

const (
	ShapePill        NodeShape = "pill"
	ShapeRoundedRect NodeShape = "rounded-rect"
)

// EdgeKind selects how a parent/child connector is drawn.
type EdgeKind string

const (
	EdgeStraight EdgeKind = "straight"
	EdgeSmooth   EdgeKind = "smooth"
)

// LayoutType tags the layout algorithm recorded in the document.
type LayoutType string

const (
	LayoutBalanced LayoutType = "balanced"
	LayoutRadial   LayoutType = "radial"
)

// AttachmentType is the kind of a free-floating attachment.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentDocument AttachmentType = "document"
	AttachmentText     AttachmentType = "text"
	AttachmentShape    AttachmentType = "shape"
)

// ShapeType is the figure drawn by a shape attachment.
type ShapeType string

const (
	ShapeRectangle ShapeType = "rectangle"
	ShapeCircle    ShapeType = "circle"
	ShapeTriangle  ShapeType = "triangle"
	ShapeStar      ShapeType = "star"
	ShapeArrow     ShapeType = "arrow"
)

// Document is the root aggregate persisted as a .mindmap file.
type Document struct {
	Version     string                 `json:"version"`
	Meta        Meta                   `json:"meta"`
	Theme       Theme                  `json:"theme"`
	Layout      Layout                 `json:"layout"`
	RootID      string                 `json:"rootId"`
	Nodes       map[string]*Node       `json:"nodes"`
	Edges       map[string]EdgeStyle   `json:"edges,omitempty"`
	Attachments map[string]*Attachment `json:"attachments,omitempty"`
}

// Meta carries authoring information.
type Meta struct {
	Title      string `json:"title"`
	CreatedAt  string `json:"createdAt"`
	ModifiedAt string `json:"modifiedAt"`
	App        string `json:"app"`
	AppVersion string `json:"appVersion"`
	Locale     string `json:"locale"`
}

// Theme is a visual preset plus any per-document overrides.
type Theme struct {
	Name ThemeName `json:"name"`
	Node NodeTheme `json:"node"`
	Edge EdgeTheme `json:"edge"`
}

type NodeTheme struct {
	Shape      NodeShape `json:"shape"`
	BG         string    `json:"bg"`
	FG         string    `json:"fg"`
	Border     string    `json:"border"`
	FontFamily string    `json:"fontFamily,omitempty"`
}

type EdgeTheme struct {
	Style EdgeKind `json:"style"`
	Width float64  `json:"width"`
	Color string   `json:"color,omitempty"`
}

type Layout struct {
	Type    LayoutType `json:"type"`
	Spacing Spacing    `json:"spacing"`
}

type Spacing struct {
	Sibling float64 `json:"sibling"`
	Level   float64 `json:"level"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Node is a positioned text box in the tree. Children defines the tree;
// there is no stored parent reference.
type Node struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Pos       Point     `json:"pos"`
	Size      Size      `json:"size"`
	Style     NodeStyle `json:"style"`
	Data      NodeData  `json:"data"`
	Children  []string  `json:"children"`
	Collapsed *bool     `json:"collapsed,omitempty"`
}

// IsCollapsed reports whether the node hides its descendants.
func (n *Node) IsCollapsed() bool {
	return n.Collapsed != nil && *n.Collapsed
}

func (n *Node) clone() *Node {
	c := *n
	c.Children = append([]string(nil), n.Children...)
	c.Data.Tags = append([]string(nil), n.Data.Tags...)
	return &c
}

// NodeStyle holds per-node overrides. A nil field inherits from the theme.
type NodeStyle struct {
	BG         *string  `json:"bg,omitempty"`
	FG         *string  `json:"fg,omitempty"`
	Border     *string  `json:"border,omitempty"`
	Badge      *string  `json:"badge,omitempty"`
	FontSize   *float64 `json:"fontSize,omitempty"`
	FontWeight *string  `json:"fontWeight,omitempty"`
	FontStyle  *string  `json:"fontStyle,omitempty"`
	FontFamily *string  `json:"fontFamily,omitempty"`
}

type NodeData struct {
	Notes string   `json:"notes"`
	Tags  []string `json:"tags"`
}

// EdgeStyle is a sparse per-edge override keyed by EdgeKey.
type EdgeStyle struct {
	Style *EdgeKind `json:"style,omitempty"`
	Width *float64  `json:"width,omitempty"`
	Color *string   `json:"color,omitempty"`
}

// IsEmpty reports whether the override sets no field.
func (s EdgeStyle) IsEmpty() bool {
	return s.Style == nil && s.Width == nil && s.Color == nil
}

// Attachment is a free-floating object that is not part of the node tree.
type Attachment struct {
	ID       string         `json:"id"`
	Type     AttachmentType `json:"type"`
	Name     string         `json:"name"`
	Data     string         `json:"data"`
	FilePath string         `json:"filePath,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
	Pos      Point          `json:"pos"`
	Size     Size           `json:"size"`
	Rotation *float64       `json:"rotation,omitempty"`
	ZIndex   *int           `json:"zIndex,omitempty"`

	Text            string   `json:"text,omitempty"`
	FontSize        *float64 `json:"fontSize,omitempty"`
	FontWeight      string   `json:"fontWeight,omitempty"`
	FontStyle       string   `json:"fontStyle,omitempty"`
	FontFamily      string   `json:"fontFamily,omitempty"`
	TextColor       string   `json:"textColor,omitempty"`
	BackgroundColor string   `json:"backgroundColor,omitempty"`

	ShapeType   ShapeType `json:"shapeType,omitempty"`
	FillColor   string    `json:"fillColor,omitempty"`
	StrokeColor string    `json:"strokeColor,omitempty"`
	StrokeWidth *float64  `json:"strokeWidth,omitempty"`

	// Order records insertion order and breaks z-index ties.
	Order int `json:"order,omitempty"`
}

// Z returns the effective z-index (0 when unset).
func (a *Attachment) Z() int {
	if a.ZIndex == nil {
		return 0
	}
	return *a.ZIndex
}

func (a *Attachment) clone() *Attachment {
	c := *a
	return &c
}

// New returns a fresh document titled title with a synthesized root node.
// An empty title falls back to DefaultTitle.
func New(title string, now time.Time) *Document {
	if title == "" {
		title = DefaultTitle
	}
	rootID := uuid.NewString()
	ts := Timestamp(now)
	return &Document{
		Version: FormatVersion,
		Meta: Meta{
			Title:      title,
			CreatedAt:  ts,
			ModifiedAt: ts,
			App:        AppName,
			AppVersion: AppVersion,
			Locale:     DefaultLocale,
		},
		Theme:  Themes[DefaultThemeName],
		Layout: DefaultLayout,
		RootID: rootID,
		Nodes: map[string]*Node{
			rootID: {
				ID:       rootID,
				Text:     title,
				Size:     RootNodeSize,
				Data:     NodeData{Tags: []string{}},
				Children: []string{},
			},
		},
	}
}

// Timestamp formats t the way documents store times (ISO 8601, UTC, milliseconds).
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// EdgeKey returns the edges map key for a parent/child pair.
func EdgeKey(parentID, childID string) string {
	return parentID + "->" + childID
}

// SplitEdgeKey is the inverse of EdgeKey.
func SplitEdgeKey(key string) (parentID, childID string, ok bool) {
	return strings.Cut(key, "->")
}

// Node returns the node with the given id, or nil.
func (d *Document) Node(id string) *Node {
	return d.Nodes[id]
}

// Root returns the root node.
func (d *Document) Root() *Node {
	return d.Nodes[d.RootID]
}

// ParentOf finds the node whose children contain id. It scans all nodes;
// the first match wins when a malformed document lists a child twice.
func (d *Document) ParentOf(id string) *Node {
	for _, n := range d.Nodes {
		for _, c := range n.Children {
			if c == id {
				return n
			}
		}
	}
	return nil
}

// Walk visits nodes reachable from the root in depth-first pre-order,
// passing each node's depth. Returning false from fn skips the subtree.
func (d *Document) Walk(fn func(n *Node, depth int) bool) {
	seen := make(map[string]bool, len(d.Nodes))
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		n := d.Nodes[id]
		if n == nil || seen[id] {
			return
		}
		seen[id] = true
		if !fn(n, depth) {
			return
		}
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	visit(d.RootID, 0)
}

// Reachable returns the set of node ids reachable from the root.
func (d *Document) Reachable() map[string]bool {
	out := make(map[string]bool, len(d.Nodes))
	d.Walk(func(n *Node, _ int) bool {
		out[n.ID] = true
		return true
	})
	return out
}

// shallow copies the document header and its maps. Node and attachment
// values are shared until a mutation replaces them.
func (d *Document) shallow() *Document {
	c := *d
	c.Nodes = make(map[string]*Node, len(d.Nodes)+1)
	for k, v := range d.Nodes {
		c.Nodes[k] = v
	}
	if d.Edges != nil {
		c.Edges = make(map[string]EdgeStyle, len(d.Edges))
		for k, v := range d.Edges {
			c.Edges[k] = v
		}
	}
	if d.Attachments != nil {
		c.Attachments = make(map[string]*Attachment, len(d.Attachments))
		for k, v := range d.Attachments {
			c.Attachments[k] = v
		}
	}
	return &c
}

// Touch returns a copy of d whose modifiedAt is set to now.
func Touch(d *Document, now time.Time) *Document {
	c := *d
	c.Meta.ModifiedAt = Timestamp(now)
	return &c
}

// WithTitle returns a copy of d renamed to title.
func WithTitle(d *Document, title string) *Document {
	c := *d
	c.Meta.Title = title
	return &c
}

// WithTheme returns a copy of d using theme.
func WithTheme(d *Document, theme Theme) *Document {
	c := *d
	c.Theme = theme
	return &c
}
