package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/hippomind/internal/fileops"
	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/testutil"
	"github.com/starford/hippomind/internal/workspace"
)

func testServer(t *testing.T) (*Server, *workspace.Workspace) {
	t.Helper()
	store := testutil.TestLibrary(t)
	db := testutil.TestDB(t)
	logger := testutil.Logger()
	files := fileops.New(logger, fileops.WithLibrary(store, db), fileops.WithPreferences(db))
	ws := workspace.New(files, logger)
	return New(ws, db), ws
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_documents":   srv.listDocuments,
		"search_documents": srv.searchDocuments,
		"list_tabs":        srv.listTabs,
		"open_document":    srv.openDocument,
		"new_document":     srv.newDocument,
		"get_outline":      srv.getOutline,
		"add_node":         srv.addNode,
		"update_node_text": srv.updateNodeText,
		"delete_node":      srv.deleteNode,
		"undo":             srv.undo,
		"redo":             srv.redo,
		"save_document":    srv.saveDocument,
		"upload_asset":     srv.uploadAsset,
		"get_file_format":  srv.getFileFormat,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func activeDoc(t *testing.T, ws *workspace.Workspace) *mindmap.Document {
	t.Helper()
	info, ok := ws.Active()
	if !ok {
		t.Fatal("no active tab")
	}
	doc, err := ws.Document(info.ID)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestNewDocumentAndEdit(t *testing.T) {
	srv, ws := testServer(t)

	r := callTool(t, srv, "new_document", map[string]any{"title": "Plan"})
	if text := resultText(r); !strings.Contains(text, "title: Plan") || !strings.Contains(text, "- Plan [") {
		t.Fatalf("outline = %q", text)
	}
	root := activeDoc(t, ws).RootID

	r = callTool(t, srv, "add_node", map[string]any{"parent_id": root, "text": "Étape 1"})
	if r.IsError || !strings.Contains(resultText(r), "  - Étape 1 [") || !strings.Contains(resultText(r), "added: ") {
		t.Fatalf("add_node = %q", resultText(r))
	}
	if !strings.Contains(resultText(r), "unsaved changes") {
		t.Error("dirty marker missing")
	}

	doc := activeDoc(t, ws)
	child := doc.Node(root).Children[0]
	r = callTool(t, srv, "update_node_text", map[string]any{"node_id": child, "text": "Step 1"})
	if r.IsError || !strings.Contains(resultText(r), "- Step 1 [") {
		t.Fatalf("update = %q", resultText(r))
	}

	r = callTool(t, srv, "undo", map[string]any{})
	if !strings.Contains(resultText(r), "Étape 1") {
		t.Errorf("undo = %q", resultText(r))
	}
	r = callTool(t, srv, "redo", map[string]any{})
	if !strings.Contains(resultText(r), "Step 1") {
		t.Errorf("redo = %q", resultText(r))
	}

	r = callTool(t, srv, "delete_node", map[string]any{"node_id": child})
	if strings.Contains(resultText(r), "Step 1") {
		t.Errorf("delete = %q", resultText(r))
	}
}

func TestEditErrors(t *testing.T) {
	srv, ws := testServer(t)

	if r := callTool(t, srv, "get_outline", map[string]any{}); !r.IsError {
		t.Error("expected error without an open document")
	}

	callTool(t, srv, "new_document", map[string]any{})
	root := activeDoc(t, ws).RootID

	cases := []struct {
		tool string
		args map[string]any
	}{
		{"add_node", map[string]any{"parent_id": root, "as_child": false}},
		{"add_node", map[string]any{}},
		{"delete_node", map[string]any{"node_id": root}},
		{"update_node_text", map[string]any{"node_id": "ghost", "text": "x"}},
		{"undo", map[string]any{}},
		{"redo", map[string]any{}},
		{"get_outline", map[string]any{"tab": "ghost"}},
		{"save_document", map[string]any{}},
	}
	for _, tc := range cases {
		if r := callTool(t, srv, tc.tool, tc.args); !r.IsError {
			t.Errorf("%s %v: expected error, got %q", tc.tool, tc.args, resultText(r))
		}
	}
	if info, _ := ws.Active(); info.CanUndo || info.Dirty {
		t.Errorf("failed edits changed the tab: %+v", info)
	}
}

func TestSaveListSearchOpen(t *testing.T) {
	srv, ws := testServer(t)
	callTool(t, srv, "new_document", map[string]any{"title": "Voyage"})

	r := callTool(t, srv, "save_document", map[string]any{"path": "voyage.mindmap"})
	if r.IsError || !strings.HasPrefix(resultText(r), "saved: ") {
		t.Fatalf("save = %q", resultText(r))
	}

	r = callTool(t, srv, "list_documents", map[string]any{})
	if !strings.Contains(resultText(r), `"voyage.mindmap"`) {
		t.Errorf("list = %q", resultText(r))
	}
	r = callTool(t, srv, "search_documents", map[string]any{"query": "Voyage"})
	if !strings.Contains(resultText(r), "voyage.mindmap") {
		t.Errorf("search = %q", resultText(r))
	}
	if r = callTool(t, srv, "search_documents", map[string]any{}); !r.IsError {
		t.Error("expected error for missing query")
	}

	r = callTool(t, srv, "open_document", map[string]any{"path": "voyage.mindmap"})
	if r.IsError {
		t.Fatalf("open = %q", resultText(r))
	}
	if n := len(ws.List()); n != 1 {
		t.Errorf("tabs = %d, want the existing tab reused", n)
	}
	if r = callTool(t, srv, "open_document", map[string]any{"path": "missing.mindmap"}); !r.IsError {
		t.Error("expected error for missing file")
	}
}

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestUploadAsset(t *testing.T) {
	srv, ws := testServer(t)
	callTool(t, srv, "new_document", map[string]any{})

	r := callTool(t, srv, "upload_asset", map[string]any{
		"url": pngDataURI(t, 800, 200), "filename": "schéma.png", "x": 50.0, "y": 10.0,
	})
	if r.IsError || !strings.Contains(resultText(r), "attached schéma.png") {
		t.Fatalf("upload = %q", resultText(r))
	}
	doc := activeDoc(t, ws)
	if len(doc.Attachments) != 1 {
		t.Fatalf("attachments = %d", len(doc.Attachments))
	}
	for _, a := range doc.Attachments {
		if a.Type != mindmap.AttachmentImage || a.MimeType != "image/png" {
			t.Errorf("attachment = %+v", a)
		}
		if a.Size != (mindmap.Size{W: 400, H: 100}) || a.Pos != (mindmap.Point{X: 50, Y: 10}) {
			t.Errorf("geometry = %+v %+v", a.Pos, a.Size)
		}
	}

	bad := []map[string]any{
		{"url": "data:text/plain;base64,aGVsbG8="},
		{"url": pngDataURI(t, 2, 2), "filename": "fake.gif"},
		{"url": "ftp://example.com/a.png"},
		{"url": "http://127.0.0.1/a.png"},
	}
	for _, args := range bad {
		if r := callTool(t, srv, "upload_asset", args); !r.IsError {
			t.Errorf("%v: expected error", args["url"])
		}
	}
}

func TestOutlineMarksCollapsedAndTags(t *testing.T) {
	doc := mindmap.New("Racine", testutil.FixedTime)
	doc, child, err := mindmap.AddNode(doc, doc.RootID, "Branche", true)
	if err != nil {
		t.Fatal(err)
	}
	collapsed := true
	doc, err = mindmap.UpdateNode(doc, child, mindmap.NodePatch{
		Collapsed: &collapsed,
		Data:      &mindmap.NodeData{Tags: []string{"todo"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	doc, leaf, _ := mindmap.AddNode(doc, child, "Feuille", true)
	empty := ""
	doc, _ = mindmap.UpdateNode(doc, leaf, mindmap.NodePatch{Text: &empty})

	want := "- Racine [" + doc.RootID + "]\n" +
		"  - Branche [" + child + "] (collapsed) #todo\n"
	got := Outline(doc)
	if !strings.HasPrefix(got, want) || !strings.Contains(got, "    - (empty) [") {
		t.Errorf("outline =\n%s", got)
	}
}

func TestFileFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readFileFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != FileFormatURI || !strings.Contains(tc.Text, "rootId") {
		t.Errorf("resource = %+v", contents[0])
	}
	if r := callTool(t, srv, "get_file_format", nil); resultText(r) != FileFormatContract {
		t.Error("get_file_format mismatch")
	}
}
