package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/hippomind/internal/fileops"
	"github.com/starford/hippomind/internal/geometry"
	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/render"
	"github.com/starford/hippomind/internal/testutil"
	"github.com/starford/hippomind/internal/workspace"
)

// testEnv wires a temp library, index, workspace and router. An empty
// token disables auth.
func testEnv(t *testing.T, token string) http.Handler {
	t.Helper()
	return testEnvWithEvents(t, token, nil)
}

func testEnvWithEvents(t *testing.T, token string, events http.Handler) http.Handler {
	t.Helper()
	store := testutil.TestLibrary(t)
	db := testutil.TestDB(t)
	logger := testutil.Logger()

	files := fileops.New(logger, fileops.WithLibrary(store, db), fileops.WithPreferences(db))
	fonts, err := geometry.NewGoFontMeasurer()
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(Deps{
		Workspace: workspace.New(files, logger),
		Library:   store,
		Index:     db,
		Prefs:     db,
		Renderer:  render.New(fonts),
		Measurer:  fonts,
		Locale:    "fr",
	})
	return NewRouter(h, token != "", token, events)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeTab(t *testing.T, w *httptest.ResponseRecorder) TabResponse {
	t.Helper()
	var resp TabResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return resp
}

func newTab(t *testing.T, router http.Handler, title string) TabResponse {
	t.Helper()
	w := do(t, router, http.MethodPost, "/tabs", NewTabRequest{Title: title})
	if w.Code != http.StatusCreated {
		t.Fatalf("new tab = %d, body = %s", w.Code, w.Body.String())
	}
	return decodeTab(t, w)
}

func TestNewTabAndEditWithUndoRedo(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "Projet")
	if tab.Document == nil || tab.Document.Meta.Title != "Projet" {
		t.Fatalf("document = %+v", tab.Document)
	}
	base := "/tabs/" + tab.Tab.ID
	root := tab.Document.RootID

	w := do(t, router, http.MethodPost, base+"/nodes", map[string]any{"parentId": root, "text": "Idée"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add node = %d, body = %s", w.Code, w.Body.String())
	}
	added := decodeTab(t, w)
	if added.Document.Node(added.ID) == nil || added.Document.Node(added.ID).Text != "Idée" {
		t.Fatalf("new node %q missing", added.ID)
	}
	if !added.Tab.Dirty || added.Tab.Selected.NodeID != added.ID {
		t.Errorf("tab = %+v", added.Tab)
	}

	w = do(t, router, http.MethodPatch, base+"/nodes/"+added.ID, map[string]any{"text": "Idée 2"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}

	for i := 0; i < 2; i++ {
		if w = do(t, router, http.MethodPost, base+"/undo", nil); w.Code != http.StatusOK {
			t.Fatalf("undo %d = %d", i, w.Code)
		}
	}
	if got := decodeTab(t, w); len(got.Document.Nodes) != 1 || got.Tab.CanUndo {
		t.Errorf("after undo: nodes=%d canUndo=%v", len(got.Document.Nodes), got.Tab.CanUndo)
	}
	if w = do(t, router, http.MethodPost, base+"/undo", nil); w.Code != http.StatusConflict {
		t.Errorf("empty undo = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPost, base+"/redo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("redo = %d", w.Code)
	}
	if got := decodeTab(t, w); got.Document.Node(added.ID) == nil || got.Document.Node(added.ID).Text != "Idée" {
		t.Error("redo did not restore the added node")
	}
}

func TestNoopsAreErrors(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "")
	base := "/tabs/" + tab.Tab.ID
	root := tab.Document.RootID

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"sibling of root", http.MethodPost, base + "/nodes", map[string]any{"parentId": root, "asChild": false}, http.StatusConflict},
		{"delete root", http.MethodDelete, base + "/nodes/" + root, nil, http.StatusConflict},
		{"patch missing node", http.MethodPatch, base + "/nodes/ghost", map[string]any{"text": "x"}, http.StatusNotFound},
		{"empty patch", http.MethodPatch, base + "/nodes/" + root, map[string]any{}, http.StatusBadRequest},
		{"missing parent id", http.MethodPost, base + "/nodes", map[string]any{"text": "x"}, http.StatusBadRequest},
		{"missing attachment", http.MethodDelete, base + "/attachments/ghost", nil, http.StatusNotFound},
		{"missing tab", http.MethodPost, "/tabs/ghost/undo", nil, http.StatusNotFound},
		{"bad theme", http.MethodPut, base + "/theme", map[string]any{"name": "neon"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, router, tc.method, tc.path, tc.body)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}

	w := do(t, router, http.MethodGet, base, nil)
	if got := decodeTab(t, w); got.Tab.Dirty || got.Tab.CanUndo {
		t.Errorf("no-ops changed the tab: %+v", got.Tab)
	}
}

func TestEdgeStyleNullUnsets(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "")
	base := "/tabs/" + tab.Tab.ID
	root := tab.Document.RootID
	child := decodeTab(t, do(t, router, http.MethodPost, base+"/nodes", map[string]any{"parentId": root})).ID

	edge := base + "/edges/" + root + "/" + child
	w := do(t, router, http.MethodPatch, edge, map[string]any{"style": "straight", "width": 4})
	if w.Code != http.StatusOK {
		t.Fatalf("patch edge = %d, body = %s", w.Code, w.Body.String())
	}
	got := decodeTab(t, w).Document.Edges[mindmap.EdgeKey(root, child)]
	if got.Style == nil || *got.Style != mindmap.EdgeStraight || got.Width == nil || *got.Width != 4 {
		t.Fatalf("edge = %+v", got)
	}

	w = do(t, router, http.MethodPatch, edge, map[string]any{"style": nil, "width": nil})
	if edges := decodeTab(t, w).Document.Edges; len(edges) != 0 {
		t.Errorf("edges = %+v, want empty", edges)
	}
}

func TestSaveIndexesIntoLibrary(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "Roadmap")
	base := "/tabs/" + tab.Tab.ID

	if w := do(t, router, http.MethodPost, base+"/save", nil); w.Code != http.StatusBadRequest {
		t.Errorf("save without path = %d, want 400", w.Code)
	}

	w := do(t, router, http.MethodPost, base+"/save", SaveRequest{Path: "plans/roadmap.mindmap"})
	if w.Code != http.StatusOK {
		t.Fatalf("save as = %d, body = %s", w.Code, w.Body.String())
	}
	var res fileops.SaveResult
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if !res.Success || !strings.HasSuffix(res.FilePath, "roadmap.mindmap") {
		t.Fatalf("save result = %+v", res)
	}

	w = do(t, router, http.MethodGet, "/library", nil)
	var list DocumentListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || list.Documents[0].Path != "plans/roadmap.mindmap" || list.Documents[0].Title != "Roadmap" {
		t.Errorf("library = %+v", list)
	}

	w = do(t, router, http.MethodGet, "/library/search?q=Roadmap", nil)
	var search SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &search)
	if len(search.Results) != 1 {
		t.Errorf("search = %+v", search)
	}

	w = do(t, router, http.MethodGet, "/library/dir", nil)
	var dir DirListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &dir)
	if len(dir.Entries) != 1 || dir.Entries[0].Path != "plans" || !dir.Entries[0].IsDir {
		t.Errorf("root dir = %+v", dir)
	}
	w = do(t, router, http.MethodGet, "/library/dir?path=plans", nil)
	dir = DirListResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &dir)
	if len(dir.Entries) != 1 || dir.Entries[0].Name != "roadmap.mindmap" {
		t.Errorf("plans dir = %+v", dir)
	}
	if w := do(t, router, http.MethodGet, "/library/dir?path=../..", nil); w.Code != http.StatusNotFound {
		t.Errorf("traversal = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodPost, base+"/backup", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("backup = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, base+"/backups", nil)
	var backups BackupListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &backups)
	if len(backups.Backups) != 1 {
		t.Fatalf("backups = %+v", backups)
	}

	w = do(t, router, http.MethodPost, "/tabs/restore", PathRequest{Path: backups.Backups[0].Path})
	if w.Code != http.StatusCreated || !decodeTab(t, w).Tab.Dirty {
		t.Errorf("restore = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/prefs/recentFiles", nil)
	if !strings.Contains(w.Body.String(), "roadmap.mindmap") {
		t.Errorf("recent files = %s", w.Body.String())
	}
}

func TestSaveAndOpenStayInsideLibrary(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "Escape")
	base := "/tabs/" + tab.Tab.ID
	outside := t.TempDir()

	for _, path := range []string{
		"/tmp/x.txt",
		"notes.txt",
		outside + "/x.mindmap",
		"../x.mindmap",
		"plans/../../x.mindmap",
	} {
		if w := do(t, router, http.MethodPost, base+"/save", SaveRequest{Path: path}); w.Code != http.StatusBadRequest {
			t.Errorf("save %q = %d, want 400", path, w.Code)
		}
	}
	if entries, _ := os.ReadDir(outside); len(entries) != 0 {
		t.Errorf("wrote outside the library: %v", entries)
	}

	for _, path := range []string{"/etc/passwd", "../secret.mindmap"} {
		if w := do(t, router, http.MethodPost, "/tabs/open", PathRequest{Path: path}); w.Code != http.StatusBadRequest {
			t.Errorf("open %q = %d, want 400", path, w.Code)
		}
		if w := do(t, router, http.MethodPost, "/tabs/restore", PathRequest{Path: path}); w.Code != http.StatusBadRequest {
			t.Errorf("restore %q = %d, want 400", path, w.Code)
		}
	}

	if w := do(t, router, http.MethodPost, base+"/save", SaveRequest{Path: "inside/ok.mindmap"}); w.Code != http.StatusOK {
		t.Errorf("save inside = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestOpenMissingAndInvalid(t *testing.T) {
	router := testEnv(t, "")
	if w := do(t, router, http.MethodPost, "/tabs/open", PathRequest{Path: "nope.mindmap"}); w.Code != http.StatusNotFound {
		t.Errorf("open missing = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/tabs/open", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("open without path = %d, want 400", w.Code)
	}
}

func TestCloseDirtyTab(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "")
	base := "/tabs/" + tab.Tab.ID
	do(t, router, http.MethodPut, base+"/title", TitleRequest{Title: "Renamed"})

	if w := do(t, router, http.MethodDelete, base, nil); w.Code != http.StatusConflict {
		t.Errorf("close dirty = %d, want 409", w.Code)
	}
	if w := do(t, router, http.MethodDelete, base+"?force=true", nil); w.Code != http.StatusNoContent {
		t.Errorf("force close = %d, want 204", w.Code)
	}
	w := do(t, router, http.MethodGet, "/tabs", nil)
	var list TabListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Tabs) != 0 {
		t.Errorf("tabs = %+v", list.Tabs)
	}
}

func TestAutoSizeNode(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "")
	base := "/tabs/" + tab.Tab.ID
	root := tab.Document.RootID
	long := strings.Repeat("mot ", 40)
	do(t, router, http.MethodPatch, base+"/nodes/"+root, map[string]any{"text": long})

	w := do(t, router, http.MethodPost, base+"/nodes/"+root+"/autosize", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("autosize = %d, body = %s", w.Code, w.Body.String())
	}
	n := decodeTab(t, w).Document.Root()
	if n.Size.W != geometry.MaxNodeWidth || n.Size.H <= geometry.MinNodeHeight {
		t.Errorf("size = %+v", n.Size)
	}
}

func TestRender(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "Export")
	base := "/tabs/" + tab.Tab.ID

	w := do(t, router, http.MethodGet, base+"/render", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/svg+xml" || !strings.Contains(w.Body.String(), "<svg") {
		t.Errorf("svg = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	w = do(t, router, http.MethodGet, base+"/render?format=png", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("png = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if _, err := png.Decode(w.Body); err != nil {
		t.Errorf("png decode: %v", err)
	}
	if w = do(t, router, http.MethodGet, base+"/render?format=gif", nil); w.Code != http.StatusBadRequest {
		t.Errorf("gif = %d, want 400", w.Code)
	}
}

func TestRenderFarFlungDocument(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "Far")
	base := "/tabs/" + tab.Tab.ID

	w := do(t, router, http.MethodPost, base+"/nodes", AddNodeRequest{ParentID: tab.Document.RootID, Text: "outpost"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add node = %d, body = %s", w.Code, w.Body.String())
	}
	id := decodeTab(t, w).ID
	w = do(t, router, http.MethodPatch, base+"/nodes/"+id, map[string]any{"pos": map[string]float64{"x": 100000, "y": 100000}})
	if w.Code != http.StatusOK {
		t.Fatalf("move node = %d, body = %s", w.Code, w.Body.String())
	}

	if w = do(t, router, http.MethodGet, base+"/render?format=png", nil); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("png = %d, want 413", w.Code)
	}
	if w = do(t, router, http.MethodGet, base+"/render?format=svg", nil); w.Code != http.StatusOK {
		t.Errorf("svg = %d, want 200", w.Code)
	}
}

func TestPreferencesAndLocale(t *testing.T) {
	router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/app/locale", nil)
	if !strings.Contains(w.Body.String(), `"fr"`) {
		t.Errorf("default locale = %s", w.Body.String())
	}
	if w = do(t, router, http.MethodPut, "/prefs/locale", PreferenceRequest{Value: "en"}); w.Code != http.StatusOK {
		t.Fatalf("set locale = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/app/locale", nil)
	if !strings.Contains(w.Body.String(), `"en"`) {
		t.Errorf("locale = %s", w.Body.String())
	}

	if w = do(t, router, http.MethodPut, "/prefs/locale", PreferenceRequest{Value: "de"}); w.Code != http.StatusBadRequest {
		t.Errorf("unsupported locale = %d, want 400", w.Code)
	}
	if w = do(t, router, http.MethodGet, "/prefs/colour", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown key = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodGet, "/app/version", nil)
	var v VersionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if v.Name != "HippoMind" || v.FormatVersion != "1.0.0" {
		t.Errorf("version = %+v", v)
	}
}

func TestUploadImageAttachment(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "")

	var img bytes.Buffer
	if err := png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 800, 200))); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, &img)
	_ = mw.WriteField("x", "12")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/tabs/"+tab.Tab.ID+"/attachments/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decodeTab(t, w)
	a := resp.Document.Attachments[resp.ID]
	if a == nil || a.Type != mindmap.AttachmentImage || a.MimeType != "image/png" {
		t.Fatalf("attachment = %+v", a)
	}
	if a.Size.W != 400 || a.Size.H != 100 || a.Pos.X != 12 {
		t.Errorf("geometry = %+v %+v", a.Pos, a.Size)
	}
}

func TestUploadAttachment_MissingFileField(t *testing.T) {
	router := testEnv(t, "")
	tab := newTab(t, router, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/tabs/"+tab.Tab.ID+"/attachments/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file field = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/tabs", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/tabs", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/tabs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/tabs", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/library/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

// blockingEvents writes SSE headers and blocks until the client leaves.
var blockingEvents = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithEvents(t, "secret", blockingEvents)
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithEvents(t, "tok", blockingEvents)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
