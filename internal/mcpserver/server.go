// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes HippoMind documents to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/hippomind/internal/editor"
	"github.com/starford/hippomind/internal/index"
	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/workspace"
)

// FileFormatURI is the resource describing the .mindmap format.
const FileFormatURI = "hippomind://file-format"

// Server wraps the MCP server with HippoMind tools.
type Server struct {
	mcp *server.MCPServer
	ws  *workspace.Workspace
	db  index.DocumentIndex
}

// New creates a new MCP server with all tools registered. db may be nil
// when no library is configured.
func New(ws *workspace.Workspace, db index.DocumentIndex) *Server {
	s := &Server{ws: ws, db: db}

	s.mcp = server.NewMCPServer(
		mindmap.AppName,
		mindmap.AppVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	tabArg := mcp.WithString("tab", mcp.Description("Tab id (defaults to the active tab)"))

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List mind maps in the library."),
		mcp.WithString("tag", mcp.Description("Only documents carrying this node tag")),
		mcp.WithString("sort", mcp.Description("updated (default), title or path")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of documents")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through node text, notes and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("list_tabs",
		mcp.WithDescription("List open documents."),
	), s.listTabs)

	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Open a .mindmap file in a new tab, or activate the tab already showing it. Returns the outline."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Library-relative or absolute path ending in .mindmap")),
	), s.openDocument)

	s.mcp.AddTool(mcp.NewTool("new_document",
		mcp.WithDescription("Open a blank mind map in a new tab."),
		mcp.WithString("title", mcp.Description("Document title, also the root node text")),
	), s.newDocument)

	s.mcp.AddTool(mcp.NewTool("get_outline",
		mcp.WithDescription("Return the node tree of a document as an indented outline with node ids."),
		tabArg,
	), s.getOutline)

	s.mcp.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a node as a child of parent_id, or as its next sibling when as_child is false."),
		tabArg,
		mcp.WithString("parent_id", mcp.Required(), mcp.Description("Reference node id")),
		mcp.WithString("text", mcp.Description("Node text")),
		mcp.WithBoolean("as_child", mcp.Description("Insert as child (default true)")),
	), s.addNode)

	s.mcp.AddTool(mcp.NewTool("update_node_text",
		mcp.WithDescription("Replace the text of a node."),
		tabArg,
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New text")),
	), s.updateNodeText)

	s.mcp.AddTool(mcp.NewTool("delete_node",
		mcp.WithDescription("Delete a node and its whole subtree. The root cannot be deleted."),
		tabArg,
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Node id")),
	), s.deleteNode)

	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last change."),
		tabArg,
	), s.undo)

	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone change."),
		tabArg,
	), s.redo)

	s.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Save a document to its file, or to path when given."),
		tabArg,
		mcp.WithString("path", mcp.Description("Target path for save-as")),
	), s.saveDocument)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Embed an image or PDF from an http(s) URL or data URI as an attachment on the canvas."),
		tabArg,
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or base64 data URI")),
		mcp.WithString("filename", mcp.Description("Display name (defaults to the URL file name)")),
		mcp.WithNumber("x", mcp.Description("Canvas x position")),
		mcp.WithNumber("y", mcp.Description("Canvas y position")),
	), s.uploadAsset)

	s.mcp.AddTool(mcp.NewTool("get_file_format",
		mcp.WithDescription("Returns the .mindmap file format description."),
	), s.getFileFormat)

	s.mcp.AddResource(
		mcp.NewResource(FileFormatURI, "Mind map file format",
			mcp.WithResourceDescription("Structure of .mindmap documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFileFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// tabID returns the requested tab or the active one.
func (s *Server) tabID(req mcp.CallToolRequest) (string, error) {
	if id := req.GetString("tab", ""); id != "" {
		return id, nil
	}
	info, ok := s.ws.Active()
	if !ok {
		return "", errors.New("no open document: call open_document or new_document first")
	}
	return info.ID, nil
}

func (s *Server) listDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.db == nil {
		return mcp.NewToolResultError("no library configured"), nil
	}
	docs, total, err := s.db.ListDocuments(req.GetInt("limit", 0), 0, req.GetString("tag", ""), req.GetString("sort", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"documents": docs, "total": total})
}

func (s *Server) searchDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.db == nil {
		return mcp.NewToolResultError("no library configured"), nil
	}
	results, err := s.db.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) listTabs(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.ws.List())
}

func (s *Server) openDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.ws.Open(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.outlineResult(info)
}

func (s *Server) newDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.outlineResult(s.ws.New(req.GetString("title", "")))
}

func (s *Server) getOutline(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.tabID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.ws.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.outlineResult(info)
}

func (s *Server) outlineResult(info workspace.TabInfo) (*mcp.CallToolResult, error) {
	doc, err := s.ws.Document(info.ID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "tab: %s\ntitle: %s\n", info.ID, info.Title)
	if info.FilePath != "" {
		fmt.Fprintf(&b, "file: %s\n", info.FilePath)
	}
	if info.Dirty {
		b.WriteString("unsaved changes\n")
	}
	b.WriteString("\n")
	b.WriteString(Outline(doc))
	return mcp.NewToolResultText(b.String()), nil
}

// Outline renders the node tree as a Markdown list, one node per line with
// its id. Collapsed nodes still list their children.
func Outline(doc *mindmap.Document) string {
	var b strings.Builder
	doc.Walk(func(n *mindmap.Node, depth int) bool {
		b.WriteString(strings.Repeat("  ", depth))
		text := strings.ReplaceAll(n.Text, "\n", " ")
		if text == "" {
			text = "(empty)"
		}
		fmt.Fprintf(&b, "- %s [%s]", text, n.ID)
		if n.IsCollapsed() {
			b.WriteString(" (collapsed)")
		}
		if len(n.Data.Tags) > 0 {
			fmt.Fprintf(&b, " #%s", strings.Join(n.Data.Tags, " #"))
		}
		b.WriteString("\n")
		return true
	})
	return b.String()
}

// edit applies fn to a tab and reports the resulting outline.
func (s *Server) edit(req mcp.CallToolRequest, fn func(*editor.Editor) (string, error)) (*mcp.CallToolResult, error) {
	id, err := s.tabID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var msg string
	info, err := s.ws.With(id, func(ed *editor.Editor) error {
		var err error
		msg, err = fn(ed)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, _ := s.outlineResult(info)
	if msg != "" && len(res.Content) > 0 {
		if tc, ok := res.Content[0].(mcp.TextContent); ok {
			res.Content[0] = mcp.NewTextContent(msg + "\n" + tc.Text)
		}
	}
	return res, nil
}

func (s *Server) addNode(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parentID, err := req.RequireString("parent_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text := req.GetString("text", "")
	asChild := req.GetBool("as_child", true)
	return s.edit(req, func(ed *editor.Editor) (string, error) {
		id, err := ed.AddNode(parentID, text, asChild)
		if err != nil {
			return "", err
		}
		return "added: " + id, nil
	})
}

func (s *Server) updateNodeText(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.edit(req, func(ed *editor.Editor) (string, error) {
		return "", ed.UpdateNode(nodeID, mindmap.NodePatch{Text: &text})
	})
}

func (s *Server) deleteNode(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.edit(req, func(ed *editor.Editor) (string, error) {
		return "", ed.DeleteNode(nodeID)
	})
}

func (s *Server) undo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.edit(req, func(ed *editor.Editor) (string, error) {
		if !ed.Undo() {
			return "", errors.New("nothing to undo")
		}
		return "", nil
	})
}

func (s *Server) redo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.edit(req, func(ed *editor.Editor) (string, error) {
		if !ed.Redo() {
			return "", errors.New("nothing to redo")
		}
		return "", nil
	})
}

func (s *Server) saveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.tabID(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.ws.SaveAs(ctx, id, req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !res.Success {
		return mcp.NewToolResultError(res.Error), nil
	}
	return mcp.NewToolResultText("saved: " + res.FilePath), nil
}

func (s *Server) getFileFormat(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FileFormatContract), nil
}

func (s *Server) readFileFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FileFormatURI,
			MIMEType: "text/markdown",
			Text:     FileFormatContract,
		},
	}, nil
}
