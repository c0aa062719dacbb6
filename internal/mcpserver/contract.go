package mcpserver

// FileFormatContract describes the .mindmap document format for LLM
// consumers that read or edit files directly.
const FileFormatContract = `# HippoMind File Format

A mind map is one UTF-8 JSON file with the ` + "`.mindmap`" + ` extension, written
with 2-space indentation.

## Top level

| Field | Type | Notes |
|---|---|---|
| version | string | Format version, currently "1.0.0". Older files are migrated on open. |
| meta | object | title, createdAt, modifiedAt (ISO-8601 UTC), app, appVersion, locale ("fr" or "en") |
| theme | object | name (light, dark, sepia, slate), node {shape, bg, fg, border, fontFamily}, edge {style, width, color} |
| layout | object | type (balanced, radial), spacing {sibling, level} |
| rootId | string | Id of the root node. Must exist in nodes. |
| nodes | object | Node id to node. |
| edges | object | Optional per-connector overrides keyed "parentId->childId". |
| attachments | object | Optional free-floating objects keyed by id. |

## Nodes

` + "```" + `json
{
  "id": "uuid",
  "text": "Idea",
  "pos": {"x": 220, "y": 0},
  "size": {"w": 180, "h": 48},
  "style": {"bg": "#fff", "fg": "#111", "border": "#ddd", "badge": "#f00", "fontSize": 16},
  "data": {"notes": "", "tags": ["todo"]},
  "children": ["child-id"],
  "collapsed": false
}
` + "```" + `

Rules:

1. The tree is defined by ` + "`children`" + ` only; there is no parent field.
2. Every node is reachable from ` + "`rootId`" + ` and appears in exactly one children list.
3. The root cannot be deleted and has no siblings.
4. ` + "`collapsed: true`" + ` hides descendants on the canvas but keeps them in the file.
5. Style fields are optional overrides of the theme.

## Edge overrides

` + "```" + `json
"edges": {"rootId->childId": {"style": "straight", "width": 3, "color": "#3b82f6"}}
` + "```" + `

Only set fields are stored; an override with no fields is removed.

## Attachments

` + "```" + `json
{"id": "uuid", "type": "image", "name": "photo.png", "data": "<base64>",
 "mimeType": "image/png", "pos": {"x": 0, "y": 0}, "size": {"w": 400, "h": 300},
 "rotation": 0, "zIndex": 1}
` + "```" + `

- ` + "`type`" + ` is image, document, text or shape.
- Text attachments use text, fontSize, fontWeight, fontStyle, textColor, backgroundColor.
- Shape attachments use shapeType (rectangle, circle, triangle, star, arrow), fillColor, strokeColor, strokeWidth.
- Higher zIndex draws on top; attachments are drawn below connectors and nodes.
- Use the ` + "`upload_asset`" + ` tool to embed images rather than writing base64 by hand.

## Backups

Backups live next to the document in ` + "`Backups/<name>/<timestamp>.mindmap`" + `
and are full copies. Do not edit them.
`
