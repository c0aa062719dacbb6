package render

import (
	"fmt"
	"io"
	"math"
	"strings"

	svg "github.com/ajstarks/svgo"

	"github.com/starford/hippomind/internal/mindmap"
)

func ri(v float64) int { return int(math.Round(v)) }

func (r *Renderer) svg(w io.Writer, sc scene) error {
	canvas := svg.New(w)
	canvas.Start(sc.width, sc.height)
	canvas.Rect(0, 0, sc.width, sc.height, fmt.Sprintf("fill:%s", sc.background))

	for _, a := range sc.attachments {
		svgAttachment(canvas, a, sc.dx, sc.dy)
	}

	for _, e := range sc.edges {
		style := fmt.Sprintf("fill:none;stroke:%s;stroke-width:%g;stroke-linecap:round", e.Color, e.Width)
		p := e.Path
		if len(p) == 8 {
			canvas.Bezier(
				ri(p[0]+sc.dx), ri(p[1]+sc.dy),
				ri(p[2]+sc.dx), ri(p[3]+sc.dy),
				ri(p[4]+sc.dx), ri(p[5]+sc.dy),
				ri(p[6]+sc.dx), ri(p[7]+sc.dy),
				style)
			continue
		}
		canvas.Line(ri(p[0]+sc.dx), ri(p[1]+sc.dy), ri(p[2]+sc.dx), ri(p[3]+sc.dy), style)
	}

	for _, n := range sc.nodes {
		canvas.Roundrect(ri(n.x), ri(n.y), ri(n.w), ri(n.h), ri(n.radius), ri(n.radius),
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1.5", n.bg, n.border))
		svgLines(canvas, n)
		if n.badge != "" {
			canvas.Circle(ri(n.x+n.w), ri(n.y), 6, fmt.Sprintf("fill:%s", n.badge))
		}
	}
	canvas.End()
	return nil
}

func svgLines(canvas *svg.SVG, n nodeBox) {
	lh := n.font.Size * 1.5
	top := n.y + n.h/2 - lh*float64(len(n.lines))/2
	style := []string{
		"fill:" + n.fg,
		fmt.Sprintf("font-size:%gpx", n.font.Size),
		"text-anchor:middle",
		"dominant-baseline:central",
	}
	if n.font.Family != "" {
		style = append(style, "font-family:"+n.font.Family)
	}
	if n.font.Bold {
		style = append(style, "font-weight:bold")
	}
	if n.font.Italic {
		style = append(style, "font-style:italic")
	}
	css := strings.Join(style, ";")
	for i, line := range n.lines {
		canvas.Text(ri(n.x+n.w/2), ri(top+lh*float64(i)+lh/2), line, css)
	}
}

func svgAttachment(canvas *svg.SVG, a *mindmap.Attachment, dx, dy float64) {
	x, y := a.Pos.X+dx, a.Pos.Y+dy
	w, h := a.Size.W, a.Size.H
	if rot := attachmentRotation(a); rot != 0 {
		canvas.Gtransform(fmt.Sprintf("rotate(%g %d %d)", rot, ri(x+w/2), ri(y+h/2)))
		defer canvas.Gend()
	}

	switch a.Type {
	case mindmap.AttachmentImage:
		if a.Data != "" {
			canvas.Image(ri(x), ri(y), ri(w), ri(h), dataURI(a))
			return
		}
		canvas.Rect(ri(x), ri(y), ri(w), ri(h), "fill:#e5e7eb;stroke:#9ca3af")
	case mindmap.AttachmentText:
		canvas.Rect(ri(x), ri(y), ri(w), ri(h),
			fmt.Sprintf("fill:%s", orDefault(a.BackgroundColor, "none")))
		size := 14.0
		if a.FontSize != nil && *a.FontSize > 0 {
			size = *a.FontSize
		}
		style := fmt.Sprintf("fill:%s;font-size:%gpx", orDefault(a.TextColor, "#111827"), size)
		if a.FontWeight == "bold" {
			style += ";font-weight:bold"
		}
		if a.FontStyle == "italic" {
			style += ";font-style:italic"
		}
		if a.FontFamily != "" {
			style += ";font-family:" + a.FontFamily
		}
		text := a.Text
		if text == "" {
			text = a.Data
		}
		for i, line := range strings.Split(text, "\n") {
			canvas.Text(ri(x+4), ri(y+size*1.2*float64(i+1)), line, style)
		}
	case mindmap.AttachmentShape:
		style := fmt.Sprintf("fill:%s;stroke:%s;stroke-width:%g",
			orDefault(a.FillColor, "none"), orDefault(a.StrokeColor, "#111827"), strokeWidth(a))
		switch a.ShapeType {
		case mindmap.ShapeCircle:
			canvas.Ellipse(ri(x+w/2), ri(y+h/2), ri(w/2), ri(h/2), style)
		case mindmap.ShapeRectangle, "":
			canvas.Rect(ri(x), ri(y), ri(w), ri(h), style)
		default:
			pts := shapePoints(a.ShapeType, x, y, w, h)
			xs, ys := make([]int, len(pts)), make([]int, len(pts))
			for i, p := range pts {
				xs[i], ys[i] = ri(p.X), ri(p.Y)
			}
			canvas.Polygon(xs, ys, style)
		}
	default:
		canvas.Roundrect(ri(x), ri(y), ri(w), ri(h), 6, 6, "fill:#ffffff;stroke:#9ca3af")
		canvas.Text(ri(x+8), ri(y+h/2), a.Name, "fill:#374151;font-size:12px;dominant-baseline:central")
	}
}

func strokeWidth(a *mindmap.Attachment) float64 {
	if a.StrokeWidth == nil {
		return 2
	}
	return *a.StrokeWidth
}

func dataURI(a *mindmap.Attachment) string {
	if strings.HasPrefix(a.Data, "data:") {
		return a.Data
	}
	mime := a.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + a.Data
}
