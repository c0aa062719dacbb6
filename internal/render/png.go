package render

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	"git.sr.ht/~sbinet/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/starford/hippomind/internal/geometry"
	"github.com/starford/hippomind/internal/mindmap"
)

func (r *Renderer) png(w io.Writer, sc scene) error {
	if err := checkCanvas(sc.width, sc.height); err != nil {
		return err
	}
	faces := newFaceSet(r.fonts)
	defer faces.close()

	dc := gg.NewContext(sc.width, sc.height)
	dc.SetHexColor(sc.background)
	dc.Clear()

	for _, a := range sc.attachments {
		pngAttachment(dc, faces, a, sc.dx, sc.dy)
	}

	for _, e := range sc.edges {
		p := e.Path
		dc.SetHexColor(e.Color)
		dc.SetLineWidth(e.Width)
		dc.SetLineCapRound()
		dc.NewSubPath()
		dc.MoveTo(p[0]+sc.dx, p[1]+sc.dy)
		if len(p) == 8 {
			dc.CubicTo(p[2]+sc.dx, p[3]+sc.dy, p[4]+sc.dx, p[5]+sc.dy, p[6]+sc.dx, p[7]+sc.dy)
		} else {
			dc.LineTo(p[2]+sc.dx, p[3]+sc.dy)
		}
		dc.Stroke()
	}

	for _, n := range sc.nodes {
		dc.SetHexColor(n.bg)
		dc.DrawRoundedRectangle(n.x, n.y, n.w, n.h, n.radius)
		dc.Fill()
		dc.SetHexColor(n.border)
		dc.SetLineWidth(1.5)
		dc.DrawRoundedRectangle(n.x, n.y, n.w, n.h, n.radius)
		dc.Stroke()

		dc.SetFontFace(faces.get(n.font))
		dc.SetHexColor(n.fg)
		lh := n.font.Size * 1.5
		top := n.y + n.h/2 - lh*float64(len(n.lines))/2
		for i, line := range n.lines {
			dc.DrawStringAnchored(line, n.x+n.w/2, top+lh*float64(i)+lh/2, 0.5, 0.35)
		}
		if n.badge != "" {
			dc.SetHexColor(n.badge)
			dc.DrawCircle(n.x+n.w, n.y, 6)
			dc.Fill()
		}
	}
	return dc.EncodePNG(w)
}

// faceSet holds the faces of one PNG render. Faces are not safe for
// concurrent use, so each render builds its own from the parsed fonts.
type faceSet struct {
	fonts *geometry.GoFontMeasurer
	faces map[geometry.FontSpec]font.Face
}

func newFaceSet(fonts *geometry.GoFontMeasurer) *faceSet {
	return &faceSet{fonts: fonts, faces: make(map[geometry.FontSpec]font.Face)}
}

func (s *faceSet) get(f geometry.FontSpec) font.Face {
	if s.fonts == nil {
		return basicfont.Face7x13
	}
	if face, ok := s.faces[f]; ok {
		return face
	}
	face, err := s.fonts.NewFace(f)
	if err != nil {
		return basicfont.Face7x13
	}
	s.faces[f] = face
	return face
}

func (s *faceSet) close() {
	for _, face := range s.faces {
		_ = face.Close()
	}
}

func pngAttachment(dc *gg.Context, faces *faceSet, a *mindmap.Attachment, dx, dy float64) {
	x, y := a.Pos.X+dx, a.Pos.Y+dy
	w, h := a.Size.W, a.Size.H
	dc.Push()
	defer dc.Pop()
	if rot := attachmentRotation(a); rot != 0 {
		dc.RotateAbout(gg.Radians(rot), x+w/2, y+h/2)
	}

	switch a.Type {
	case mindmap.AttachmentImage:
		if img := decodeImage(a.Data); img != nil && w > 0 && h > 0 {
			b := img.Bounds()
			dc.Push()
			dc.Translate(x, y)
			dc.Scale(w/float64(b.Dx()), h/float64(b.Dy()))
			dc.DrawImage(img, 0, 0)
			dc.Pop()
			return
		}
		dc.SetHexColor("#e5e7eb")
		dc.DrawRectangle(x, y, w, h)
		dc.Fill()
	case mindmap.AttachmentText:
		if a.BackgroundColor != "" {
			dc.SetHexColor(a.BackgroundColor)
			dc.DrawRectangle(x, y, w, h)
			dc.Fill()
		}
		f := geometry.FontSpec{Size: 14, Bold: a.FontWeight == "bold", Italic: a.FontStyle == "italic"}
		if a.FontSize != nil && *a.FontSize > 0 {
			f.Size = *a.FontSize
		}
		dc.SetFontFace(faces.get(f))
		dc.SetHexColor(orDefault(a.TextColor, "#111827"))
		text := a.Text
		if text == "" {
			text = a.Data
		}
		for i, line := range strings.Split(text, "\n") {
			dc.DrawString(line, x+4, y+f.Size*1.2*float64(i+1))
		}
	case mindmap.AttachmentShape:
		switch a.ShapeType {
		case mindmap.ShapeCircle:
			dc.DrawEllipse(x+w/2, y+h/2, w/2, h/2)
		case mindmap.ShapeRectangle, "":
			dc.DrawRectangle(x, y, w, h)
		default:
			dc.NewSubPath()
			for i, p := range shapePoints(a.ShapeType, x, y, w, h) {
				if i == 0 {
					dc.MoveTo(p.X, p.Y)
				} else {
					dc.LineTo(p.X, p.Y)
				}
			}
			dc.ClosePath()
		}
		if a.FillColor != "" {
			dc.SetHexColor(a.FillColor)
			dc.FillPreserve()
		}
		dc.SetHexColor(orDefault(a.StrokeColor, "#111827"))
		dc.SetLineWidth(strokeWidth(a))
		dc.Stroke()
	default:
		dc.SetHexColor("#ffffff")
		dc.DrawRoundedRectangle(x, y, w, h, 6)
		dc.FillPreserve()
		dc.SetHexColor("#9ca3af")
		dc.SetLineWidth(1)
		dc.Stroke()
		dc.SetFontFace(basicfont.Face7x13)
		dc.SetHexColor("#374151")
		dc.DrawStringAnchored(a.Name, x+8, y+h/2, 0, 0.5)
	}
}

func decodeImage(data string) image.Image {
	if i := strings.Index(data, ","); strings.HasPrefix(data, "data:") && i >= 0 {
		data = data[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	return img
}
