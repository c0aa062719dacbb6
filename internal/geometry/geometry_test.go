package geometry

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/hippomind/internal/mindmap"
)

func TestAutoSizeShortText(t *testing.T) {
	size := AutoSize("Hi", FontSpec{Size: 16}, FixedMeasurer{Width: 8})
	assert.Equal(t, mindmap.Size{W: 120, H: 60}, size)
}

func TestAutoSizeEmptyText(t *testing.T) {
	size := AutoSize("", FontSpec{}, FixedMeasurer{Width: 8})
	assert.Equal(t, mindmap.Size{W: 120, H: 60}, size)
}

func TestAutoSizeWraps(t *testing.T) {
	// 10px per rune, 276px of content per line: 27 runes fit.
	m := FixedMeasurer{Width: 10}
	text := strings.Repeat("abcdefghi ", 6) // six 9-rune words
	text = strings.TrimSpace(text)
	lines := WrapText(text, FontSpec{Size: 16}, m, MaxNodeWidth-NodePadding)
	require.Len(t, lines, 3)
	assert.Equal(t, "abcdefghi abcdefghi", lines[0])

	size := AutoSize(text, FontSpec{Size: 16}, m)
	assert.Equal(t, 214.0, size.W) // 19 runes * 10 + 24
	assert.Equal(t, 96.0, size.H)  // 3 * 24 + 24
}

func TestAutoSizeClampsLongWord(t *testing.T) {
	size := AutoSize(strings.Repeat("x", 60), FontSpec{Size: 20}, FixedMeasurer{Width: 10})
	assert.Equal(t, 300.0, size.W)
	assert.Equal(t, 60.0, size.H) // 1 * 30 + 24 < 60
}

func TestGoFontMeasurer(t *testing.T) {
	m, err := NewGoFontMeasurer()
	require.NoError(t, err)
	short := m.MeasureString("i", FontSpec{Size: 16})
	long := m.MeasureString("wwwwwwww", FontSpec{Size: 16})
	assert.Greater(t, long, short)
	assert.Greater(t, m.MeasureString("wwww", FontSpec{Size: 32}), m.MeasureString("wwww", FontSpec{Size: 16}))
}

func node(x, y, w, h float64) *mindmap.Node {
	return &mindmap.Node{Pos: mindmap.Point{X: x, Y: y}, Size: mindmap.Size{W: w, H: h}}
}

func near(t *testing.T, want, got Point) {
	t.Helper()
	if math.Abs(want.X-got.X) > 1e-9 || math.Abs(want.Y-got.Y) > 1e-9 {
		t.Errorf("point = %+v, want %+v", got, want)
	}
}

func TestConnectionPointsHorizontal(t *testing.T) {
	start, end := ConnectionPoints(node(0, 0, 180, 50), node(220, 0, 180, 50))
	near(t, Point{X: 180, Y: 25}, start)
	near(t, Point{X: 220, Y: 25}, end)
}

func TestConnectionPointsVertical(t *testing.T) {
	start, end := ConnectionPoints(node(0, 0, 100, 40), node(0, 200, 100, 40))
	near(t, Point{X: 50, Y: 40}, start)
	near(t, Point{X: 50, Y: 200}, end)
}

func TestConnectionPointsDiagonalStaysOnBorder(t *testing.T) {
	p, c := node(0, 0, 100, 100), node(300, 300, 100, 100)
	start, end := ConnectionPoints(p, c)
	near(t, Point{X: 100, Y: 100}, start)
	near(t, Point{X: 300, Y: 300}, end)
}

func TestBoundaryPointSameCenter(t *testing.T) {
	got := BoundaryPoint(Point{X: 10, Y: 10}, 20, 20, 0)
	near(t, Point{X: 20, Y: 10}, got)
}

func TestEdgePath(t *testing.T) {
	s, e := Point{X: 0, Y: 0}, Point{X: 100, Y: 50}
	assert.Equal(t, []float64{0, 0, 100, 50}, EdgePath(s, e, mindmap.EdgeStraight))
	assert.Equal(t, []float64{0, 0, 50, 0, 50, 50, 100, 50}, EdgePath(s, e, mindmap.EdgeSmooth))
}

func buildTree(t *testing.T) (*mindmap.Document, string, string, string) {
	t.Helper()
	d := mindmap.New("Root", time.Unix(0, 0))
	d, a, err := mindmap.AddNode(d, d.RootID, "A", true)
	require.NoError(t, err)
	d, b, err := mindmap.AddNode(d, a, "B", true)
	require.NoError(t, err)
	d, c, err := mindmap.AddNode(d, b, "C", true)
	require.NoError(t, err)
	return d, a, b, c
}

func TestVisibilityUnderCollapsedParent(t *testing.T) {
	d, a, b, c := buildTree(t)
	collapsed := true
	d, err := mindmap.UpdateNode(d, a, mindmap.NodePatch{Collapsed: &collapsed})
	require.NoError(t, err)

	assert.True(t, IsVisible(d, d.RootID))
	assert.True(t, IsVisible(d, a))
	assert.False(t, IsVisible(d, b))
	assert.False(t, IsVisible(d, c))
	assert.Len(t, VisibleNodes(d), 2)
	assert.Len(t, Edges(d), 1)
}

func TestOrphansAreVisible(t *testing.T) {
	d, a, b, _ := buildTree(t)
	d, err := mindmap.UpdateNode(d, a, mindmap.NodePatch{Children: []string{}})
	require.NoError(t, err)
	assert.True(t, IsVisible(d, b))
	assert.Len(t, VisibleNodes(d), 4)
}

func TestVisibilityCycleGuard(t *testing.T) {
	d, a, b, _ := buildTree(t)
	// b lists a as a child while a lists b: a two-node cycle outside the root's reach.
	d, _ = mindmap.UpdateNode(d, d.RootID, mindmap.NodePatch{Children: []string{}})
	d, _ = mindmap.UpdateNode(d, b, mindmap.NodePatch{Children: []string{a}})
	assert.False(t, IsVisible(d, a))
	assert.False(t, IsVisible(d, "missing"))
}

func TestEdgesUseOverrides(t *testing.T) {
	d, a, _, _ := buildTree(t)
	color := "#ff0000"
	kind := mindmap.EdgeStraight
	d, err := mindmap.UpdateEdgeStyle(d, d.RootID, a, mindmap.EdgePatch{Color: &color, Style: &kind})
	require.NoError(t, err)

	for _, e := range Edges(d) {
		if e.ChildID == a {
			assert.Equal(t, "#ff0000", e.Color)
			assert.Len(t, e.Path, 4)
		} else {
			assert.Equal(t, d.Theme.Edge.Color, e.Color)
			assert.Len(t, e.Path, 8)
		}
	}
}

func TestFontFor(t *testing.T) {
	d := mindmap.New("Root", time.Unix(0, 0))
	size, weight := 20.0, "bold"
	n := &mindmap.Node{Style: mindmap.NodeStyle{FontSize: &size, FontWeight: &weight}}
	f := FontFor(d, n)
	assert.Equal(t, 20.0, f.Size)
	assert.True(t, f.Bold)
	assert.False(t, f.Italic)
	assert.Equal(t, d.Theme.Node.FontFamily, f.Family)
}

func TestImageSize(t *testing.T) {
	assert.Equal(t, mindmap.Size{W: 400, H: 100}, ImageSize(800, 200))
	assert.Equal(t, mindmap.Size{W: 120, H: 90}, ImageSize(120, 90))
	assert.Equal(t, DefaultAttachmentSize, ImageSize(0, 10))
}
