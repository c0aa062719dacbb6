// Package render draws a mind map document to SVG or PNG: attachments in
// z-order, then connectors, then nodes, matching what the canvas shows.
package render

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/starford/hippomind/internal/apperr"
	"github.com/starford/hippomind/internal/geometry"
	"github.com/starford/hippomind/internal/mindmap"
)

// Format is an output image format.
type Format string

const (
	FormatSVG Format = "svg"
	FormatPNG Format = "png"
)

// ParseFormat accepts "svg" or "png" (case-insensitive, leading dot allowed).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(s, "."))) {
	case FormatSVG, "":
		return FormatSVG, nil
	case FormatPNG:
		return FormatPNG, nil
	}
	return "", fmt.Errorf("render: unsupported format %q", s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/svg+xml"
}

// Raster limits. A PNG canvas costs four bytes per pixel.
const (
	MaxCanvasSide   = 16384
	MaxCanvasPixels = 64 << 20
)

// ErrCanvasTooLarge is returned when a document spans more pixels than a
// PNG canvas may hold.
var ErrCanvasTooLarge = fmt.Errorf("render: canvas too large: %w", apperr.ErrInvalid)

func checkCanvas(width, height int) error {
	if width > MaxCanvasSide || height > MaxCanvasSide || width*height > MaxCanvasPixels {
		return fmt.Errorf("%w (%dx%d)", ErrCanvasTooLarge, width, height)
	}
	return nil
}

// canvasSide rounds an extent up to whole pixels. Extents that do not fit an
// int32 saturate so checkCanvas rejects them.
func canvasSide(extent float64) int {
	if math.IsNaN(extent) || extent >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Ceil(extent)) + 1
}

// Renderer draws documents. It is safe for concurrent use.
type Renderer struct {
	fonts  *geometry.GoFontMeasurer
	margin float64
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithMargin sets the blank border around the content.
func WithMargin(m float64) Option {
	return func(r *Renderer) { r.margin = m }
}

// New returns a Renderer measuring and drawing text with fonts.
func New(fonts *geometry.GoFontMeasurer, opts ...Option) *Renderer {
	r := &Renderer{fonts: fonts, margin: 40}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render writes doc to w in format f.
func (r *Renderer) Render(w io.Writer, doc *mindmap.Document, f Format) error {
	sc := r.scene(doc)
	switch f {
	case FormatPNG:
		return r.png(w, sc)
	default:
		return r.svg(w, sc)
	}
}

// backdrops is the page color behind each theme.
var backdrops = map[mindmap.ThemeName]string{
	mindmap.ThemeLight: "#f9fafb",
	mindmap.ThemeDark:  "#111827",
	mindmap.ThemeSepia: "#ede6d6",
	mindmap.ThemeSlate: "#0f172a",
}

// scene is a document resolved into drawable primitives in output coordinates.
type scene struct {
	width, height int
	background    string
	attachments   []*mindmap.Attachment
	edges         []geometry.Edge
	nodes         []nodeBox
	dx, dy        float64
}

type nodeBox struct {
	x, y, w, h float64
	radius     float64
	bg, fg     string
	border     string
	badge      string
	font       geometry.FontSpec
	lines      []string
}

func (r *Renderer) scene(doc *mindmap.Document) scene {
	minX, minY, maxX, maxY := geometry.Bounds(doc)
	sc := scene{
		width:       canvasSide(maxX - minX + 2*r.margin),
		height:      canvasSide(maxY - minY + 2*r.margin),
		background:  backdrops[doc.Theme.Name],
		attachments: mindmap.SortedAttachments(doc),
		edges:       geometry.Edges(doc),
		dx:          r.margin - minX,
		dy:          r.margin - minY,
	}
	if sc.background == "" {
		sc.background = backdrops[mindmap.ThemeLight]
	}

	for _, n := range geometry.VisibleNodes(doc) {
		f := geometry.FontFor(doc, n)
		b := nodeBox{
			x: n.Pos.X + sc.dx, y: n.Pos.Y + sc.dy, w: n.Size.W, h: n.Size.H,
			radius: 8,
			bg:     pick(n.Style.BG, doc.Theme.Node.BG),
			fg:     pick(n.Style.FG, doc.Theme.Node.FG),
			border: pick(n.Style.Border, doc.Theme.Node.Border),
			badge:  pick(n.Style.Badge, ""),
			font:   f,
			lines:  geometry.WrapText(n.Text, f, r.fonts, geometry.MaxNodeWidth-geometry.NodePadding),
		}
		if doc.Theme.Node.Shape == mindmap.ShapePill {
			b.radius = b.h / 2
		}
		sc.nodes = append(sc.nodes, b)
	}
	return sc
}

func pick(override *string, fallback string) string {
	if override != nil && *override != "" {
		return *override
	}
	return fallback
}

// shapePoints returns the outline of a polygonal shape attachment inside the
// x,y,w,h box. Circles and rectangles are drawn natively and return nil.
func shapePoints(kind mindmap.ShapeType, x, y, w, h float64) []geometry.Point {
	switch kind {
	case mindmap.ShapeTriangle:
		return []geometry.Point{{X: x + w/2, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}}
	case mindmap.ShapeStar:
		cx, cy := x+w/2, y+h/2
		pts := make([]geometry.Point, 0, 10)
		for i := range 10 {
			rx, ry := w/2, h/2
			if i%2 == 1 {
				rx, ry = rx*0.4, ry*0.4
			}
			a := -math.Pi/2 + float64(i)*math.Pi/5
			pts = append(pts, geometry.Point{X: cx + rx*math.Cos(a), Y: cy + ry*math.Sin(a)})
		}
		return pts
	case mindmap.ShapeArrow:
		head := w * 0.35
		return []geometry.Point{
			{X: x, Y: y + h*0.3}, {X: x + w - head, Y: y + h*0.3}, {X: x + w - head, Y: y},
			{X: x + w, Y: y + h/2},
			{X: x + w - head, Y: y + h}, {X: x + w - head, Y: y + h*0.7}, {X: x, Y: y + h*0.7},
		}
	}
	return nil
}

func attachmentRotation(a *mindmap.Attachment) float64 {
	if a.Rotation == nil {
		return 0
	}
	return *a.Rotation
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
