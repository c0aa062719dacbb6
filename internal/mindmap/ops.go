package mindmap

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/starford/hippomind/internal/apperr"
)

var (
	ErrNodeNotFound       = fmt.Errorf("node %w", apperr.ErrNotFound)
	ErrAttachmentNotFound = fmt.Errorf("attachment %w", apperr.ErrNotFound)
	ErrRootImmutable      = fmt.Errorf("root node cannot be deleted: %w", apperr.ErrConflict)
	ErrNoParent           = fmt.Errorf("node has no parent to insert a sibling into: %w", apperr.ErrConflict)
)

// IsNoop reports whether err is one of the precondition failures that leave
// a document unchanged.
func IsNoop(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrAttachmentNotFound) ||
		errors.Is(err, ErrRootImmutable) || errors.Is(err, ErrNoParent)
}

// AddNode creates a node under parentID (asChild) or right after it in its
// parent's children (sibling). It returns the new document and node id.
func AddNode(d *Document, parentID, text string, asChild bool) (*Document, string, error) {
	ref := d.Nodes[parentID]
	if ref == nil {
		return d, "", fmt.Errorf("mindmap: add node under %s: %w", parentID, ErrNodeNotFound)
	}
	var grand *Node
	if !asChild {
		if grand = d.ParentOf(parentID); grand == nil {
			return d, "", fmt.Errorf("mindmap: add sibling of %s: %w", parentID, ErrNoParent)
		}
	}
	if text == "" {
		text = DefaultNodeText
	}

	id := uuid.NewString()
	n := &Node{
		ID:       id,
		Text:     text,
		Pos:      ref.Pos,
		Size:     DefaultNodeSize,
		Data:     NodeData{Tags: []string{}},
		Children: []string{},
	}
	out := d.shallow()
	if asChild {
		n.Pos.X += ChildOffsetX
		p := ref.clone()
		p.Children = append(p.Children, id)
		out.Nodes[p.ID] = p
	} else {
		n.Pos.Y += SiblingOffsetY
		g := grand.clone()
		g.Children = insertAfter(g.Children, parentID, id)
		out.Nodes[g.ID] = g
	}
	out.Nodes[id] = n
	return out, id, nil
}

func insertAfter(ids []string, after, id string) []string {
	for i, v := range ids {
		if v == after {
			out := make([]string, 0, len(ids)+1)
			out = append(out, ids[:i+1]...)
			out = append(out, id)
			return append(out, ids[i+1:]...)
		}
	}
	return append(ids, id)
}

// NodePatch lists the node fields to replace. Nil fields are left as is.
type NodePatch struct {
	Text      *string    `json:"text,omitempty"`
	Pos       *Point     `json:"pos,omitempty"`
	Size      *Size      `json:"size,omitempty"`
	Style     *NodeStyle `json:"style,omitempty"`
	Data      *NodeData  `json:"data,omitempty"`
	Children  []string   `json:"children,omitempty"`
	Collapsed *bool      `json:"collapsed,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p NodePatch) IsEmpty() bool {
	return p.Text == nil && p.Pos == nil && p.Size == nil && p.Style == nil &&
		p.Data == nil && p.Children == nil && p.Collapsed == nil
}

// UpdateNode shallow-merges patch into the node.
func UpdateNode(d *Document, id string, patch NodePatch) (*Document, error) {
	cur := d.Nodes[id]
	if cur == nil {
		return d, fmt.Errorf("mindmap: update node %s: %w", id, ErrNodeNotFound)
	}
	n := cur.clone()
	if patch.Text != nil {
		n.Text = *patch.Text
	}
	if patch.Pos != nil {
		n.Pos = *patch.Pos
	}
	if patch.Size != nil {
		n.Size = *patch.Size
	}
	if patch.Style != nil {
		n.Style = *patch.Style
	}
	if patch.Data != nil {
		n.Data = NodeData{Notes: patch.Data.Notes, Tags: append([]string{}, patch.Data.Tags...)}
	}
	if patch.Children != nil {
		n.Children = append([]string{}, patch.Children...)
	}
	if patch.Collapsed != nil {
		v := *patch.Collapsed
		n.Collapsed = &v
	}
	out := d.shallow()
	out.Nodes[id] = n
	return out, nil
}

// DeleteNode removes the node and its whole subtree. Edge overrides that
// reference a removed node are dropped too. The former parent id is
// returned ("" for an orphan).
func DeleteNode(d *Document, id string) (*Document, string, error) {
	if id == d.RootID {
		return d, "", fmt.Errorf("mindmap: delete node %s: %w", id, ErrRootImmutable)
	}
	if d.Nodes[id] == nil {
		return d, "", fmt.Errorf("mindmap: delete node %s: %w", id, ErrNodeNotFound)
	}
	out := d.shallow()
	parentID := ""
	if p := d.ParentOf(id); p != nil {
		parentID = p.ID
		np := p.clone()
		np.Children = removeID(np.Children, id)
		out.Nodes[np.ID] = np
	}

	removed := make(map[string]bool)
	var drop func(string)
	drop = func(nid string) {
		n := out.Nodes[nid]
		if n == nil || removed[nid] {
			return
		}
		removed[nid] = true
		for _, c := range n.Children {
			drop(c)
		}
		delete(out.Nodes, nid)
	}
	drop(id)

	for key := range out.Edges {
		p, c, _ := SplitEdgeKey(key)
		if removed[p] || removed[c] {
			delete(out.Edges, key)
		}
	}
	return out, parentID, nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// EdgePatch updates an edge override. Set fields are merged; fields named in
// Unset are stripped after the merge.
type EdgePatch struct {
	Style *EdgeKind
	Width *float64
	Color *string
	Unset []string
}

// Edge override field names accepted by EdgePatch.Unset.
const (
	EdgeFieldStyle = "style"
	EdgeFieldWidth = "width"
	EdgeFieldColor = "color"
)

// UpdateEdgeStyle merges patch into the override for parentID->childID and
// deletes the entry when nothing is left in it.
func UpdateEdgeStyle(d *Document, parentID, childID string, patch EdgePatch) (*Document, error) {
	key := EdgeKey(parentID, childID)
	s := d.Edges[key]
	if patch.Style != nil {
		v := *patch.Style
		s.Style = &v
	}
	if patch.Width != nil {
		v := *patch.Width
		s.Width = &v
	}
	if patch.Color != nil {
		v := *patch.Color
		s.Color = &v
	}
	for _, f := range patch.Unset {
		switch f {
		case EdgeFieldStyle:
			s.Style = nil
		case EdgeFieldWidth:
			s.Width = nil
		case EdgeFieldColor:
			s.Color = nil
		default:
			return d, fmt.Errorf("mindmap: unknown edge field %q: %w", f, apperr.ErrInvalid)
		}
	}

	out := d.shallow()
	if out.Edges == nil {
		out.Edges = make(map[string]EdgeStyle)
	}
	if s.IsEmpty() {
		delete(out.Edges, key)
	} else {
		out.Edges[key] = s
	}
	if len(out.Edges) == 0 {
		out.Edges = nil
	}
	return out, nil
}

// AddAttachment stores a copy of a under a fresh id and returns that id.
func AddAttachment(d *Document, a Attachment) (*Document, string, error) {
	a.ID = uuid.NewString()
	next := 0
	for _, cur := range d.Attachments {
		if cur.Order > next {
			next = cur.Order
		}
	}
	a.Order = next + 1
	out := d.shallow()
	if out.Attachments == nil {
		out.Attachments = make(map[string]*Attachment)
	}
	out.Attachments[a.ID] = &a
	return out, a.ID, nil
}

// AttachmentPatch lists the attachment fields to replace. Nil fields are left as is.
type AttachmentPatch struct {
	Name            *string    `json:"name,omitempty"`
	Data            *string    `json:"data,omitempty"`
	FilePath        *string    `json:"filePath,omitempty"`
	MimeType        *string    `json:"mimeType,omitempty"`
	Pos             *Point     `json:"pos,omitempty"`
	Size            *Size      `json:"size,omitempty"`
	Rotation        *float64   `json:"rotation,omitempty"`
	ZIndex          *int       `json:"zIndex,omitempty"`
	Text            *string    `json:"text,omitempty"`
	FontSize        *float64   `json:"fontSize,omitempty"`
	FontWeight      *string    `json:"fontWeight,omitempty"`
	FontStyle       *string    `json:"fontStyle,omitempty"`
	FontFamily      *string    `json:"fontFamily,omitempty"`
	TextColor       *string    `json:"textColor,omitempty"`
	BackgroundColor *string    `json:"backgroundColor,omitempty"`
	ShapeType       *ShapeType `json:"shapeType,omitempty"`
	FillColor       *string    `json:"fillColor,omitempty"`
	StrokeColor     *string    `json:"strokeColor,omitempty"`
	StrokeWidth     *float64   `json:"strokeWidth,omitempty"`
}

// UpdateAttachment shallow-merges patch into the attachment.
func UpdateAttachment(d *Document, id string, patch AttachmentPatch) (*Document, error) {
	cur := d.Attachments[id]
	if cur == nil {
		return d, fmt.Errorf("mindmap: update attachment %s: %w", id, ErrAttachmentNotFound)
	}
	a := cur.clone()
	setString(&a.Name, patch.Name)
	setString(&a.Data, patch.Data)
	setString(&a.FilePath, patch.FilePath)
	setString(&a.MimeType, patch.MimeType)
	if patch.Pos != nil {
		a.Pos = *patch.Pos
	}
	if patch.Size != nil {
		a.Size = *patch.Size
	}
	if patch.Rotation != nil {
		v := *patch.Rotation
		a.Rotation = &v
	}
	if patch.ZIndex != nil {
		v := *patch.ZIndex
		a.ZIndex = &v
	}
	setString(&a.Text, patch.Text)
	if patch.FontSize != nil {
		v := *patch.FontSize
		a.FontSize = &v
	}
	setString(&a.FontWeight, patch.FontWeight)
	setString(&a.FontStyle, patch.FontStyle)
	setString(&a.FontFamily, patch.FontFamily)
	setString(&a.TextColor, patch.TextColor)
	setString(&a.BackgroundColor, patch.BackgroundColor)
	if patch.ShapeType != nil {
		a.ShapeType = *patch.ShapeType
	}
	setString(&a.FillColor, patch.FillColor)
	setString(&a.StrokeColor, patch.StrokeColor)
	if patch.StrokeWidth != nil {
		v := *patch.StrokeWidth
		a.StrokeWidth = &v
	}
	out := d.shallow()
	out.Attachments[id] = a
	return out, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// DeleteAttachment removes the attachment.
func DeleteAttachment(d *Document, id string) (*Document, error) {
	if d.Attachments[id] == nil {
		return d, fmt.Errorf("mindmap: delete attachment %s: %w", id, ErrAttachmentNotFound)
	}
	out := d.shallow()
	delete(out.Attachments, id)
	if len(out.Attachments) == 0 {
		out.Attachments = nil
	}
	return out, nil
}

// SortedAttachments returns attachments in render order: z-index ascending,
// then insertion order, then id.
func SortedAttachments(d *Document) []*Attachment {
	out := make([]*Attachment, 0, len(d.Attachments))
	for _, a := range d.Attachments {
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if zi, zj := out[i].Z(), out[j].Z(); zi != zj {
			return zi < zj
		}
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}
