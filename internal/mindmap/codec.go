package mindmap

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// ValidationError reports a structurally invalid document.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "ValidationError: " + e.Msg
}

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Validate checks the coarse shape of a raw document: version, meta, theme,
// layout, rootId and nodes must be present with the right JSON types, and
// rootId must key into nodes.
func Validate(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return invalid("malformed JSON: %v", err)
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return invalid("Document must be an object")
	}
	if _, ok := doc["version"].(string); !ok {
		return invalid("Missing or invalid version")
	}
	for _, key := range []string{"meta", "theme", "layout"} {
		if _, ok := doc[key].(map[string]any); !ok {
			return invalid("Missing or invalid %s", key)
		}
	}
	rootID, ok := doc["rootId"].(string)
	if !ok {
		return invalid("Missing or invalid rootId")
	}
	nodes, ok := doc["nodes"].(map[string]any)
	if !ok {
		return invalid("Missing or invalid nodes")
	}
	if _, ok := nodes[rootID].(map[string]any); !ok {
		return invalid("Root node %s not found in nodes", rootID)
	}
	return nil
}

// Migrate brings doc up to FormatVersion. Only one format version exists, so
// migration rewrites the version tag. The boolean reports whether anything changed.
func Migrate(doc *Document) (*Document, bool) {
	if doc.Version == FormatVersion {
		return doc, false
	}
	c := *doc
	c.Version = FormatVersion
	return &c, true
}

// Decode validates raw, decodes it and migrates it to the current format.
func Decode(raw []byte) (*Document, error) {
	doc, _, err := DecodeMigrating(raw)
	return doc, err
}

// DecodeMigrating is Decode that also reports whether the file was written
// by an older format version.
func DecodeMigrating(raw []byte) (*Document, bool, error) {
	if err := Validate(raw); err != nil {
		return nil, false, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, invalid("decode: %v", err)
	}
	normalize(&doc)
	out, migrated := Migrate(&doc)
	return out, migrated, nil
}

// normalize fills nil slices and ids so decoded documents behave like ones
// built in memory.
func normalize(doc *Document) {
	for id, n := range doc.Nodes {
		if n == nil {
			delete(doc.Nodes, id)
			continue
		}
		if n.ID == "" {
			n.ID = id
		}
		if n.Children == nil {
			n.Children = []string{}
		}
		if n.Data.Tags == nil {
			n.Data.Tags = []string{}
		}
	}
	for id, a := range doc.Attachments {
		if a == nil {
			delete(doc.Attachments, id)
			continue
		}
		if a.ID == "" {
			a.ID = id
		}
	}
	if len(doc.Edges) == 0 {
		doc.Edges = nil
	}
	if len(doc.Attachments) == 0 {
		doc.Attachments = nil
	}
}

// Encode serializes doc as indented JSON (two spaces).
func Encode(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mindmap: encode: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes an edge patch where an explicit null strips a field.
func (p *EdgePatch) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*p = EdgePatch{}
	for name, raw := range fields {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			p.Unset = append(p.Unset, name)
			continue
		}
		var err error
		switch name {
		case EdgeFieldStyle:
			p.Style = new(EdgeKind)
			err = json.Unmarshal(raw, p.Style)
		case EdgeFieldWidth:
			p.Width = new(float64)
			err = json.Unmarshal(raw, p.Width)
		case EdgeFieldColor:
			p.Color = new(string)
			err = json.Unmarshal(raw, p.Color)
		default:
			return invalid("unknown edge field %q", name)
		}
		if err != nil {
			return fmt.Errorf("edge field %s: %w", name, err)
		}
	}
	return nil
}
