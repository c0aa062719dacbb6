package geometry

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontSpec describes the font a piece of text is drawn with.
type FontSpec struct {
	Size   float64
	Bold   bool
	Italic bool
	Family string
}

// Measurer returns the advance width of text in pixels.
type Measurer interface {
	MeasureString(text string, f FontSpec) float64
}

// GoFontMeasurer measures text with the Go font family. Faces are parsed
// once and cached per size and variant. Family names are ignored; the Go
// fonts stand in for whatever family a document asks for.
type GoFontMeasurer struct {
	mu    sync.Mutex
	fonts map[string]*opentype.Font
	faces map[string]font.Face
}

// NewGoFontMeasurer parses the embedded Go fonts.
func NewGoFontMeasurer() (*GoFontMeasurer, error) {
	m := &GoFontMeasurer{
		fonts: make(map[string]*opentype.Font, 4),
		faces: make(map[string]font.Face),
	}
	for variant, ttf := range map[string][]byte{
		"regular":     goregular.TTF,
		"bold":        gobold.TTF,
		"italic":      goitalic.TTF,
		"bold-italic": gobolditalic.TTF,
	} {
		f, err := opentype.Parse(ttf)
		if err != nil {
			return nil, fmt.Errorf("geometry: parse %s font: %w", variant, err)
		}
		m.fonts[variant] = f
	}
	return m, nil
}

func variantOf(f FontSpec) string {
	switch {
	case f.Bold && f.Italic:
		return "bold-italic"
	case f.Bold:
		return "bold"
	case f.Italic:
		return "italic"
	}
	return "regular"
}

// Face returns the cached face for f. The face is shared with
// MeasureString; callers drawing with it must not use it concurrently.
func (m *GoFontMeasurer) Face(f FontSpec) (font.Face, error) {
	key := faceKey(f)
	m.mu.Lock()
	defer m.mu.Unlock()
	if face, ok := m.faces[key]; ok {
		return face, nil
	}
	face, err := m.NewFace(f)
	if err != nil {
		return nil, err
	}
	m.faces[key] = face
	return face, nil
}

// NewFace builds an uncached face for f that the caller owns. The parsed
// fonts are read-only, so NewFace is safe to call from any goroutine.
func (m *GoFontMeasurer) NewFace(f FontSpec) (font.Face, error) {
	face, err := opentype.NewFace(m.fonts[variantOf(f)], &opentype.FaceOptions{
		Size:    sizeOf(f),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("geometry: face %s: %w", faceKey(f), err)
	}
	return face, nil
}

func sizeOf(f FontSpec) float64 {
	if f.Size <= 0 {
		return DefaultFontSize
	}
	return f.Size
}

func faceKey(f FontSpec) string {
	return fmt.Sprintf("%s/%g", variantOf(f), sizeOf(f))
}

// MeasureString implements Measurer. A face that cannot be built measures as
// an average glyph width of half the font size.
func (m *GoFontMeasurer) MeasureString(text string, f FontSpec) float64 {
	face, err := m.Face(f)
	if err != nil {
		return float64(len([]rune(text))) * f.Size / 2
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	adv := font.MeasureString(face, text)
	return float64(adv) / 64
}

// FixedMeasurer measures every rune as Width pixels. Useful where real font
// metrics are not wanted, such as tests.
type FixedMeasurer struct {
	Width float64
}

func (m FixedMeasurer) MeasureString(text string, _ FontSpec) float64 {
	return float64(len([]rune(text))) * m.Width
}
