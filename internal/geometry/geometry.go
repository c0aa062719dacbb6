// Package geometry computes node sizes from text, connector anchor points
// and paths, and which nodes are visible under collapsed parents.
package geometry

import (
	"math"
	"sort"
	"strings"

	"github.com/starford/hippomind/internal/mindmap"
)

// Auto-size parameters.
const (
	MaxNodeWidth    = 300
	MinNodeWidth    = 120
	MinNodeHeight   = 60
	NodePadding     = 24
	DefaultFontSize = 16
	LineHeightRatio = 1.5
)

// Point is a position on the canvas.
type Point struct {
	X, Y float64
}

// FontFor resolves the font a node's text is drawn with, falling back to the
// document theme.
func FontFor(doc *mindmap.Document, n *mindmap.Node) FontSpec {
	f := FontSpec{Size: DefaultFontSize, Family: doc.Theme.Node.FontFamily}
	if n.Style.FontSize != nil && *n.Style.FontSize > 0 {
		f.Size = *n.Style.FontSize
	}
	if n.Style.FontWeight != nil {
		f.Bold = *n.Style.FontWeight == "bold"
	}
	if n.Style.FontStyle != nil {
		f.Italic = *n.Style.FontStyle == "italic"
	}
	if n.Style.FontFamily != nil && *n.Style.FontFamily != "" {
		f.Family = *n.Style.FontFamily
	}
	return f
}

// WrapText greedily packs space-separated words into lines no wider than
// maxWidth. A single word wider than maxWidth gets a line of its own.
func WrapText(text string, f FontSpec, m Measurer, maxWidth float64) []string {
	var lines []string
	cur := ""
	for _, word := range strings.Split(text, " ") {
		test := word
		if cur != "" {
			test = cur + " " + word
		}
		if m.MeasureString(test, f) > maxWidth && cur != "" {
			lines = append(lines, cur)
			cur = word
		} else {
			cur = test
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// AutoSize returns the node size that fits text: width is the longest
// wrapped line plus padding clamped to [120, 300], height is
// max(60, lines*lineHeight+padding). Both are rounded.
func AutoSize(text string, f FontSpec, m Measurer) mindmap.Size {
	if f.Size <= 0 {
		f.Size = DefaultFontSize
	}
	lines := WrapText(text, f, m, MaxNodeWidth-NodePadding)
	longest := 0.0
	for _, l := range lines {
		longest = math.Max(longest, m.MeasureString(l, f))
	}
	w := math.Max(MinNodeWidth, math.Min(MaxNodeWidth, longest+NodePadding))
	h := math.Max(MinNodeHeight, float64(len(lines))*f.Size*LineHeightRatio+NodePadding)
	return mindmap.Size{W: math.Round(w), H: math.Round(h)}
}

// Center returns the center of a node's box.
func Center(n *mindmap.Node) Point {
	return Point{X: n.Pos.X + n.Size.W/2, Y: n.Pos.Y + n.Size.H/2}
}

// BoundaryPoint returns where a ray leaving c at angle crosses the border of
// a w*h box centered on c.
func BoundaryPoint(c Point, w, h, angle float64) Point {
	halfW, halfH := w/2, h/2
	cos, sin := math.Cos(angle), math.Sin(angle)

	t := math.Inf(1)
	if cos > 0 {
		t = math.Min(t, halfW/cos)
	}
	if cos < 0 {
		t = math.Min(t, -halfW/cos)
	}
	if sin > 0 {
		t = math.Min(t, halfH/sin)
	}
	if sin < 0 {
		t = math.Min(t, -halfH/sin)
	}
	if math.IsInf(t, 1) {
		t = 0
	}
	return Point{
		X: clamp(c.X+t*cos, c.X-halfW, c.X+halfW),
		Y: clamp(c.Y+t*sin, c.Y-halfH, c.Y+halfH),
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ConnectionPoints returns the connector endpoints between parent and child:
// each lies on its box border facing the other box's center.
func ConnectionPoints(parent, child *mindmap.Node) (start, end Point) {
	pc, cc := Center(parent), Center(child)
	angle := math.Atan2(cc.Y-pc.Y, cc.X-pc.X)
	start = BoundaryPoint(pc, parent.Size.W, parent.Size.H, angle)
	end = BoundaryPoint(cc, child.Size.W, child.Size.H, angle+math.Pi)
	return start, end
}

// EdgePath returns connector coordinates as a flat list: four numbers for a
// straight segment, eight for a smooth cubic (start, two control points, end)
// whose control points are offset horizontally by half the horizontal span.
func EdgePath(start, end Point, kind mindmap.EdgeKind) []float64 {
	if kind != mindmap.EdgeSmooth {
		return []float64{start.X, start.Y, end.X, end.Y}
	}
	off := math.Abs(end.X-start.X) * 0.5
	return []float64{
		start.X, start.Y,
		start.X + off, start.Y,
		end.X - off, end.Y,
		end.X, end.Y,
	}
}

// IsVisible reports whether a node is drawn: the root and orphans always are;
// any other node is visible when its parent is expanded and visible.
func IsVisible(doc *mindmap.Document, id string) bool {
	visited := make(map[string]bool)
	for {
		if visited[id] {
			return false
		}
		visited[id] = true
		if doc.Node(id) == nil {
			return false
		}
		if id == doc.RootID {
			return true
		}
		parent := doc.ParentOf(id)
		if parent == nil {
			return true
		}
		if parent.IsCollapsed() {
			return false
		}
		id = parent.ID
	}
}

// VisibleNodes returns the visible nodes: the tree in depth-first order
// followed by visible orphans sorted by id.
func VisibleNodes(doc *mindmap.Document) []*mindmap.Node {
	var out []*mindmap.Node
	seen := make(map[string]bool, len(doc.Nodes))
	doc.Walk(func(n *mindmap.Node, _ int) bool {
		seen[n.ID] = true
		out = append(out, n)
		return !n.IsCollapsed()
	})

	var rest []string
	for id := range doc.Nodes {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		if IsVisible(doc, id) {
			out = append(out, doc.Nodes[id])
		}
	}
	return out
}

// Edge is a resolved connector ready to draw.
type Edge struct {
	ParentID string
	ChildID  string
	Kind     mindmap.EdgeKind
	Width    float64
	Color    string
	Path     []float64
}

// Edges returns the connectors between visible parents and visible children,
// styled by the per-edge override, then the theme, then built-in defaults.
func Edges(doc *mindmap.Document) []Edge {
	visible := VisibleNodes(doc)
	isVisible := make(map[string]bool, len(visible))
	for _, n := range visible {
		isVisible[n.ID] = true
	}

	defKind := doc.Theme.Edge.Style
	if defKind == "" {
		defKind = mindmap.EdgeSmooth
	}
	defWidth := doc.Theme.Edge.Width
	if defWidth == 0 {
		defWidth = 2
	}
	defColor := doc.Theme.Edge.Color
	if defColor == "" {
		defColor = doc.Theme.Node.Border
	}

	var out []Edge
	for _, n := range visible {
		for _, cid := range n.Children {
			child := doc.Node(cid)
			if child == nil || !isVisible[cid] {
				continue
			}
			e := Edge{ParentID: n.ID, ChildID: cid, Kind: defKind, Width: defWidth, Color: defColor}
			if o, ok := doc.Edges[mindmap.EdgeKey(n.ID, cid)]; ok {
				if o.Style != nil && *o.Style != "" {
					e.Kind = *o.Style
				}
				if o.Width != nil && *o.Width != 0 {
					e.Width = *o.Width
				}
				if o.Color != nil && *o.Color != "" {
					e.Color = *o.Color
				}
			}
			start, end := ConnectionPoints(n, child)
			e.Path = EdgePath(start, end, e.Kind)
			out = append(out, e)
		}
	}
	return out
}

// Bounds returns the smallest box holding every visible node and attachment.
func Bounds(doc *mindmap.Document) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	grow := func(p mindmap.Point, s mindmap.Size) {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X+s.W)
		maxY = math.Max(maxY, p.Y+s.H)
	}
	for _, n := range VisibleNodes(doc) {
		grow(n.Pos, n.Size)
	}
	for _, a := range doc.Attachments {
		grow(a.Pos, a.Size)
	}
	if math.IsInf(minX, 1) {
		return 0, 0, 0, 0
	}
	return minX, minY, maxX, maxY
}
