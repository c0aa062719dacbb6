// Package editor owns one open document: its current value, undo history,
// selection and save state. Every edit goes through the mindmap mutation
// functions; an Editor never writes document fields directly.
package editor

import (
	"time"

	"github.com/starford/hippomind/internal/history"
	"github.com/starford/hippomind/internal/mindmap"
)

// EdgeRef identifies a parent/child connector.
type EdgeRef struct {
	ParentID string `json:"parentId"`
	ChildID  string `json:"childId"`
}

// Selection is the current selection. At most one field is set.
type Selection struct {
	NodeID       string   `json:"nodeId,omitempty"`
	Edge         *EdgeRef `json:"edge,omitempty"`
	AttachmentID string   `json:"attachmentId,omitempty"`
}

// Editor is not safe for concurrent use.
type Editor struct {
	doc      *mindmap.Document
	hist     *history.History[*mindmap.Document]
	sel      Selection
	filePath string
	dirty    bool
	now      func() time.Time
}

// Option configures an Editor.
type Option func(*options)

type options struct {
	now      func() time.Time
	maxDepth int
}

// WithClock overrides the clock used for modifiedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHistoryLimit bounds the undo stack. Zero keeps it unbounded.
func WithHistoryLimit(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// New returns an editor over doc with the root selected. filePath is empty
// for documents that were never saved.
func New(doc *mindmap.Document, filePath string, opts ...Option) *Editor {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Editor{
		doc:      doc,
		hist:     history.New[*mindmap.Document](history.WithLimit(o.maxDepth)),
		sel:      Selection{NodeID: doc.RootID},
		filePath: filePath,
		now:      o.now,
	}
}

// Document returns the current document. The value must not be modified.
func (e *Editor) Document() *mindmap.Document { return e.doc }

func (e *Editor) Selection() Selection { return e.sel }
func (e *Editor) FilePath() string     { return e.filePath }
func (e *Editor) Dirty() bool          { return e.dirty }
func (e *Editor) CanUndo() bool        { return e.hist.CanUndo() }
func (e *Editor) CanRedo() bool        { return e.hist.CanRedo() }

// HistoryDepth returns the undo and redo stack sizes.
func (e *Editor) HistoryDepth() (past, future int) { return e.hist.Depth() }

// NextRedo returns the document Redo would restore.
func (e *Editor) NextRedo() (*mindmap.Document, bool) { return e.hist.PeekFuture() }

// MarkSaved records that the document as of snap was written to path. The
// dirty flag is cleared only if no edit happened since snap was taken.
func (e *Editor) MarkSaved(path string, snap *mindmap.Document) {
	e.filePath = path
	if snap == e.doc {
		e.dirty = false
	}
}

// MarkDirty flags the document as changed without touching history, for
// content that did not come from the file at FilePath.
func (e *Editor) MarkDirty() { e.dirty = true }

// Load replaces the document, clearing history and selecting the root.
func (e *Editor) Load(doc *mindmap.Document, path string) {
	e.doc = doc
	e.filePath = path
	e.dirty = false
	e.hist.Reset()
	e.sel = Selection{NodeID: doc.RootID}
}

// commit pushes the current document to history and installs next.
func (e *Editor) commit(next *mindmap.Document) {
	e.hist.Push(e.doc)
	e.doc = mindmap.Touch(next, e.now())
	e.dirty = true
}

// BeginGesture records one history entry for a sequence of live updates
// (a drag, a resize) applied with UpdateNodeLive.
func (e *Editor) BeginGesture() {
	e.hist.Push(e.doc)
}

// AddNode adds a child (or sibling) of parentID and selects it.
func (e *Editor) AddNode(parentID, text string, asChild bool) (string, error) {
	next, id, err := mindmap.AddNode(e.doc, parentID, text, asChild)
	if err != nil {
		return "", err
	}
	e.commit(next)
	e.sel = Selection{NodeID: id}
	return id, nil
}

// UpdateNode merges patch into a node as one undoable edit.
func (e *Editor) UpdateNode(id string, patch mindmap.NodePatch) error {
	next, err := mindmap.UpdateNode(e.doc, id, patch)
	if err != nil {
		return err
	}
	e.commit(next)
	return nil
}

// UpdateNodeLive merges patch without touching history. Callers pair it
// with BeginGesture.
func (e *Editor) UpdateNodeLive(id string, patch mindmap.NodePatch) error {
	next, err := mindmap.UpdateNode(e.doc, id, patch)
	if err != nil {
		return err
	}
	e.doc = mindmap.Touch(next, e.now())
	e.dirty = true
	return nil
}

// DeleteNode removes a node and its subtree and selects the former parent
// (the root for orphans).
func (e *Editor) DeleteNode(id string) error {
	next, parentID, err := mindmap.DeleteNode(e.doc, id)
	if err != nil {
		return err
	}
	e.commit(next)
	if parentID == "" {
		parentID = e.doc.RootID
	}
	e.sel = Selection{NodeID: parentID}
	return nil
}

// UpdateEdgeStyle merges an edge override.
func (e *Editor) UpdateEdgeStyle(parentID, childID string, patch mindmap.EdgePatch) error {
	next, err := mindmap.UpdateEdgeStyle(e.doc, parentID, childID, patch)
	if err != nil {
		return err
	}
	e.commit(next)
	return nil
}

// AddAttachment stores a and returns its new id.
func (e *Editor) AddAttachment(a mindmap.Attachment) (string, error) {
	next, id, err := mindmap.AddAttachment(e.doc, a)
	if err != nil {
		return "", err
	}
	e.commit(next)
	return id, nil
}

func (e *Editor) UpdateAttachment(id string, patch mindmap.AttachmentPatch) error {
	next, err := mindmap.UpdateAttachment(e.doc, id, patch)
	if err != nil {
		return err
	}
	e.commit(next)
	return nil
}

// DeleteAttachment removes an attachment and clears the selection if it
// pointed at it.
func (e *Editor) DeleteAttachment(id string) error {
	next, err := mindmap.DeleteAttachment(e.doc, id)
	if err != nil {
		return err
	}
	e.commit(next)
	if e.sel.AttachmentID == id {
		e.sel = Selection{}
	}
	return nil
}

// SetTitle renames the document.
func (e *Editor) SetTitle(title string) {
	e.commit(mindmap.WithTitle(e.doc, title))
}

// SetTheme switches the document theme.
func (e *Editor) SetTheme(theme mindmap.Theme) {
	e.commit(mindmap.WithTheme(e.doc, theme))
}

// Undo restores the previous document. It reports false when there is
// nothing to undo.
func (e *Editor) Undo() bool {
	prev, ok := e.hist.Undo(e.doc)
	if !ok {
		return false
	}
	e.doc = prev
	e.dirty = true
	e.fixSelection()
	return true
}

// Redo re-applies the next document. It reports false when there is
// nothing to redo.
func (e *Editor) Redo() bool {
	next, ok := e.hist.Redo(e.doc)
	if !ok {
		return false
	}
	e.doc = next
	e.dirty = true
	e.fixSelection()
	return true
}

// fixSelection drops a selection that no longer resolves.
func (e *Editor) fixSelection() {
	switch {
	case e.sel.NodeID != "" && e.doc.Node(e.sel.NodeID) == nil:
		e.sel = Selection{NodeID: e.doc.RootID}
	case e.sel.AttachmentID != "" && e.doc.Attachments[e.sel.AttachmentID] == nil:
		e.sel = Selection{}
	case e.sel.Edge != nil && (e.doc.Node(e.sel.Edge.ParentID) == nil || e.doc.Node(e.sel.Edge.ChildID) == nil):
		e.sel = Selection{}
	}
}

// SelectNode selects a node, or clears the selection for "".
func (e *Editor) SelectNode(id string) {
	e.sel = Selection{NodeID: id}
}

func (e *Editor) SelectEdge(parentID, childID string) {
	if parentID == "" || childID == "" {
		e.sel.Edge = nil
		return
	}
	e.sel = Selection{Edge: &EdgeRef{ParentID: parentID, ChildID: childID}}
}

func (e *Editor) SelectAttachment(id string) {
	e.sel = Selection{AttachmentID: id}
}
