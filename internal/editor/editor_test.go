package editor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/starford/hippomind/internal/mindmap"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newEditor(t *testing.T) *Editor {
	t.Helper()
	doc := mindmap.New("Root", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return New(doc, "", WithClock(fixedClock()))
}

func TestScenarioAddChildThenUndo(t *testing.T) {
	e := newEditor(t)
	before := e.Document()
	rootID := before.RootID

	id, err := e.AddNode(rootID, "Child A", true)
	require.NoError(t, err)
	assert.NotEqual(t, rootID, id)
	assert.Equal(t, mindmap.Point{X: 220, Y: 0}, e.Document().Node(id).Pos)
	assert.Equal(t, []string{id}, e.Document().Root().Children)
	past, _ := e.HistoryDepth()
	assert.Equal(t, 1, past)
	assert.Equal(t, id, e.Selection().NodeID)
	assert.True(t, e.Dirty())
	assert.NotEqual(t, before.Meta.ModifiedAt, e.Document().Meta.ModifiedAt)

	require.True(t, e.Undo())
	assert.Equal(t, before, e.Document())
	assert.Empty(t, e.Document().Root().Children)
	past, future := e.HistoryDepth()
	assert.Equal(t, 0, past)
	assert.Equal(t, 1, future)
	assert.Equal(t, rootID, e.Selection().NodeID)
}

func TestDeleteRootDoesNotPushHistory(t *testing.T) {
	e := newEditor(t)
	before := e.Document()
	err := e.DeleteNode(before.RootID)
	require.ErrorIs(t, err, mindmap.ErrRootImmutable)
	assert.Same(t, before, e.Document())
	assert.False(t, e.CanUndo())
	assert.False(t, e.Dirty())
}

func TestSiblingOfRootDoesNotPushHistory(t *testing.T) {
	e := newEditor(t)
	_, err := e.AddNode(e.Document().RootID, "x", false)
	require.ErrorIs(t, err, mindmap.ErrNoParent)
	assert.False(t, e.CanUndo())
}

func TestDeleteSelectsParent(t *testing.T) {
	e := newEditor(t)
	root := e.Document().RootID
	a, _ := e.AddNode(root, "A", true)
	b, _ := e.AddNode(a, "B", true)
	require.NoError(t, e.DeleteNode(b))
	assert.Equal(t, a, e.Selection().NodeID)
	require.NoError(t, e.DeleteNode(a))
	assert.Equal(t, root, e.Selection().NodeID)
}

func TestDeleteSelectedAttachmentClearsSelection(t *testing.T) {
	e := newEditor(t)
	id, err := e.AddAttachment(mindmap.Attachment{Type: mindmap.AttachmentShape, ShapeType: mindmap.ShapeStar})
	require.NoError(t, err)
	e.SelectAttachment(id)
	require.NoError(t, e.DeleteAttachment(id))
	assert.Equal(t, Selection{}, e.Selection())
}

func TestUndoRedoSelectionRecovers(t *testing.T) {
	e := newEditor(t)
	a, _ := e.AddNode(e.Document().RootID, "A", true)
	require.Equal(t, a, e.Selection().NodeID)
	e.Undo()
	assert.Equal(t, e.Document().RootID, e.Selection().NodeID)
}

func TestNewEditClearsFuture(t *testing.T) {
	e := newEditor(t)
	root := e.Document().RootID
	_, _ = e.AddNode(root, "A", true)
	cur := e.Document()
	e.Undo()
	head, ok := e.NextRedo()
	require.True(t, ok)
	assert.Same(t, cur, head)

	_, _ = e.AddNode(root, "B", true)
	assert.False(t, e.CanRedo())
}

func TestGestureRecordsSingleEntry(t *testing.T) {
	e := newEditor(t)
	a, _ := e.AddNode(e.Document().RootID, "A", true)
	e.BeginGesture()
	for i := range 5 {
		pos := mindmap.Point{X: float64(300 + i), Y: 10}
		require.NoError(t, e.UpdateNodeLive(a, mindmap.NodePatch{Pos: &pos}))
	}
	past, _ := e.HistoryDepth()
	assert.Equal(t, 2, past)
	e.Undo()
	assert.Equal(t, mindmap.Point{X: 220}, e.Document().Node(a).Pos)
}

func TestMarkSavedKeepsDirtyAfterConcurrentEdit(t *testing.T) {
	e := newEditor(t)
	_, _ = e.AddNode(e.Document().RootID, "A", true)
	snap := e.Document()
	_, _ = e.AddNode(e.Document().RootID, "B", true)
	e.MarkSaved("/tmp/x.mindmap", snap)
	assert.True(t, e.Dirty())
	e.MarkSaved("/tmp/x.mindmap", e.Document())
	assert.False(t, e.Dirty())
	assert.Equal(t, "/tmp/x.mindmap", e.FilePath())
}

func TestEdgeStyleUndo(t *testing.T) {
	e := newEditor(t)
	root := e.Document().RootID
	a, _ := e.AddNode(root, "A", true)
	w := 5.0
	require.NoError(t, e.UpdateEdgeStyle(root, a, mindmap.EdgePatch{Width: &w}))
	require.Contains(t, e.Document().Edges, mindmap.EdgeKey(root, a))
	require.NoError(t, e.UpdateEdgeStyle(root, a, mindmap.EdgePatch{Unset: []string{"width"}}))
	assert.NotContains(t, e.Document().Edges, mindmap.EdgeKey(root, a))
	e.Undo()
	assert.Equal(t, 5.0, *e.Document().Edges[mindmap.EdgeKey(root, a)].Width)
}

func TestUndoRedoInverseProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := New(mindmap.New("Root", time.Unix(0, 0)), "", WithClock(fixedClock()))
		for range rapid.IntRange(0, 10).Draw(rt, "warmup") {
			ids := nodeIDs(e.Document())
			_, _ = e.AddNode(rapid.SampledFrom(ids).Draw(rt, "parent"), "w", true)
		}

		d := e.Document()
		before := contentOf(rt, d)
		ids := nodeIDs(d)
		target := rapid.SampledFrom(ids).Draw(rt, "target")
		var err error
		switch rapid.IntRange(0, 3).Draw(rt, "op") {
		case 0:
			_, err = e.AddNode(target, "n", rapid.Bool().Draw(rt, "asChild"))
		case 1:
			text := rapid.String().Draw(rt, "text")
			err = e.UpdateNode(target, mindmap.NodePatch{Text: &text})
		case 2:
			err = e.DeleteNode(target)
		case 3:
			_, err = e.AddAttachment(mindmap.Attachment{Type: mindmap.AttachmentText})
		}
		if err != nil {
			if e.Document() != d || contentOf(rt, d) != before {
				rt.Fatalf("failed edit changed the document")
			}
			return
		}
		md := e.Document()
		edited := contentOf(rt, md)
		if !e.Undo() {
			rt.Fatalf("undo unavailable after edit")
		}
		if e.Document() != d {
			rt.Fatalf("undo did not restore the pre-edit document")
		}
		if got := contentOf(rt, e.Document()); got != before {
			rt.Fatalf("undo restored different content:\n got %s\nwant %s", got, before)
		}
		if !e.Redo() {
			rt.Fatalf("redo unavailable after undo")
		}
		if got := contentOf(rt, e.Document()); e.Document() != md || got != edited {
			rt.Fatalf("redo did not restore the edited document")
		}
	})
}

// contentOf encodes d with its modification stamp blanked.
func contentOf(rt *rapid.T, d *mindmap.Document) string {
	c := *d
	c.Meta.ModifiedAt = ""
	data, err := mindmap.Encode(&c)
	if err != nil {
		rt.Fatalf("encode: %v", err)
	}
	return string(data)
}

func nodeIDs(d *mindmap.Document) []string {
	var ids []string
	d.Walk(func(n *mindmap.Node, _ int) bool {
		ids = append(ids, n.ID)
		return true
	})
	return ids
}
