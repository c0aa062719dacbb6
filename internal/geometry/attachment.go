package geometry

import "github.com/starford/hippomind/internal/mindmap"

// Attachment sizing defaults.
const MaxImageWidth = 400.0

// DefaultAttachmentSize is used for files that are not decodable images.
var DefaultAttachmentSize = mindmap.Size{W: 200, H: 60}

// ImageSize scales a width×height image down to at most MaxImageWidth wide,
// keeping its aspect ratio. Non-positive dimensions give the default size.
func ImageSize(width, height int) mindmap.Size {
	if width <= 0 || height <= 0 {
		return DefaultAttachmentSize
	}
	scale := min(1, MaxImageWidth/float64(width))
	return mindmap.Size{W: float64(width) * scale, H: float64(height) * scale}
}
