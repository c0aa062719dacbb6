package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/hippomind/internal/editor"
	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/render"
	"github.com/starford/hippomind/internal/storage"
	"github.com/starford/hippomind/internal/workspace"
)

type command struct {
	usage   string
	help    string
	minArgs int
	run     func(s *Shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"show": {
			usage: "show [node]",
			help:  "Print the tree with logical indexes, starting at node.",
			run:   (*Shell).show,
		},
		"add": {
			usage:   "add <parent> <text>",
			help:    "Add a child under parent.",
			minArgs: 2,
			run:     func(s *Shell, _ context.Context, a []string) error { return s.add(a, true) },
		},
		"sib": {
			usage:   "sib <node> <text>",
			help:    "Add a sibling right after node.",
			minArgs: 2,
			run:     func(s *Shell, _ context.Context, a []string) error { return s.add(a, false) },
		},
		"edit": {
			usage:   "edit <node> <text>",
			help:    "Replace the text of node.",
			minArgs: 2,
			run:     (*Shell).edit,
		},
		"del": {
			usage:   "del <node>",
			help:    "Delete node and its subtree.",
			minArgs: 1,
			run:     (*Shell).del,
		},
		"collapse": {
			usage:   "collapse <node>",
			help:    "Toggle whether node hides its children.",
			minArgs: 1,
			run:     (*Shell).collapse,
		},
		"title": {
			usage:   "title <text>",
			help:    "Rename the document.",
			minArgs: 1,
			run:     (*Shell).title,
		},
		"undo": {
			usage: "undo",
			help:  "Revert the last change.",
			run:   func(s *Shell, _ context.Context, a []string) error { return s.step(true) },
		},
		"redo": {
			usage: "redo",
			help:  "Reapply the last undone change.",
			run:   func(s *Shell, _ context.Context, a []string) error { return s.step(false) },
		},
		"save": {
			usage: "save [path]",
			help:  "Write the document, optionally to a new path.",
			run:   (*Shell).save,
		},
		"backup": {
			usage: "backup",
			help:  "Write a timestamped backup next to the file.",
			run:   (*Shell).backup,
		},
		"backups": {
			usage: "backups",
			help:  "List backups of the file, newest first.",
			run:   (*Shell).backups,
		},
		"render": {
			usage:   "render <out.svg|out.png>",
			help:    "Export the document as an image.",
			minArgs: 1,
			run:     (*Shell).render,
		},
		"help": {
			usage: "help [command]",
			help:  "Show commands.",
			run:   (*Shell).help,
		},
		"quit": {
			usage: "quit [--force]",
			help:  "Leave the shell. Unsaved changes need --force.",
			run:   (*Shell).quit,
		},
	}
	commands["exit"] = commands["quit"]
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve turns a node reference into a node id. A reference is either a
// logical index ("0" is the root, "1.2" is the second child of the first
// child of the root) or a node id.
func resolve(doc *mindmap.Document, ref string) (string, error) {
	if doc.Node(ref) != nil {
		return ref, nil
	}
	if ref == "0" || ref == "" {
		return doc.RootID, nil
	}
	id := doc.RootID
	for _, part := range strings.Split(ref, ".") {
		i, err := strconv.Atoi(part)
		if err != nil {
			return "", fmt.Errorf("%w: %s", mindmap.ErrNodeNotFound, ref)
		}
		n := doc.Node(id)
		if n == nil || i < 1 || i > len(n.Children) {
			return "", fmt.Errorf("%w: %s", mindmap.ErrNodeNotFound, ref)
		}
		id = n.Children[i-1]
	}
	return id, nil
}

// index returns the logical index of every node reachable from the root.
func index(doc *mindmap.Document) map[string]string {
	out := map[string]string{doc.RootID: "0"}
	var visit func(id, prefix string)
	visit = func(id, prefix string) {
		n := doc.Node(id)
		if n == nil {
			return
		}
		for i, c := range n.Children {
			if _, seen := out[c]; seen {
				continue
			}
			idx := strconv.Itoa(i + 1)
			if prefix != "" {
				idx = prefix + "." + idx
			}
			out[c] = idx
			visit(c, idx)
		}
	}
	visit(doc.RootID, "")
	return out
}

func (s *Shell) doc() (*mindmap.Document, error) {
	return s.ws.Document(s.tab)
}

func (s *Shell) show(_ context.Context, args []string) error {
	doc, err := s.doc()
	if err != nil {
		return err
	}
	start := doc.RootID
	if len(args) > 0 {
		if start, err = resolve(doc, args[0]); err != nil {
			return err
		}
	}
	idx := index(doc)
	fmt.Fprintf(s.out, "%s\n", doc.Meta.Title)
	seen := map[string]bool{}
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		n := doc.Node(id)
		if n == nil || seen[id] {
			return
		}
		seen[id] = true
		line := strings.Repeat("  ", depth) + idx[id] + " " + strings.ReplaceAll(n.Text, "\n", " ")
		if n.IsCollapsed() && len(n.Children) > 0 {
			fmt.Fprintf(s.out, "%s [+%d]\n", line, len(n.Children))
			return
		}
		fmt.Fprintln(s.out, line)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	visit(start, 0)
	return nil
}

// apply runs fn on the tab's editor and prints the affected node.
func (s *Shell) apply(fn func(ed *editor.Editor) (string, error)) error {
	var id string
	_, err := s.ws.With(s.tab, func(ed *editor.Editor) error {
		var err error
		id, err = fn(ed)
		return err
	})
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	doc, err := s.doc()
	if err != nil {
		return err
	}
	if n := doc.Node(id); n != nil {
		fmt.Fprintf(s.out, "%s %s\n", index(doc)[id], n.Text)
	}
	return nil
}

func (s *Shell) add(args []string, asChild bool) error {
	return s.apply(func(ed *editor.Editor) (string, error) {
		ref, err := resolve(ed.Document(), args[0])
		if err != nil {
			return "", err
		}
		return ed.AddNode(ref, strings.Join(args[1:], " "), asChild)
	})
}

func (s *Shell) edit(_ context.Context, args []string) error {
	return s.apply(func(ed *editor.Editor) (string, error) {
		id, err := resolve(ed.Document(), args[0])
		if err != nil {
			return "", err
		}
		text := strings.Join(args[1:], " ")
		return id, ed.UpdateNode(id, mindmap.NodePatch{Text: &text})
	})
}

func (s *Shell) del(_ context.Context, args []string) error {
	return s.apply(func(ed *editor.Editor) (string, error) {
		id, err := resolve(ed.Document(), args[0])
		if err != nil {
			return "", err
		}
		return "", ed.DeleteNode(id)
	})
}

func (s *Shell) collapse(_ context.Context, args []string) error {
	return s.apply(func(ed *editor.Editor) (string, error) {
		doc := ed.Document()
		id, err := resolve(doc, args[0])
		if err != nil {
			return "", err
		}
		v := !doc.Node(id).IsCollapsed()
		return id, ed.UpdateNode(id, mindmap.NodePatch{Collapsed: &v})
	})
}

func (s *Shell) title(_ context.Context, args []string) error {
	return s.apply(func(ed *editor.Editor) (string, error) {
		ed.SetTitle(strings.Join(args, " "))
		return "", nil
	})
}

func (s *Shell) step(undo bool) error {
	var ok bool
	_, err := s.ws.With(s.tab, func(ed *editor.Editor) error {
		if undo {
			ok = ed.Undo()
		} else {
			ok = ed.Redo()
		}
		return nil
	})
	if err != nil {
		return err
	}
	switch {
	case !ok && undo:
		return errors.New("nothing to undo")
	case !ok:
		return errors.New("nothing to redo")
	}
	return nil
}

func (s *Shell) save(ctx context.Context, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	res, err := s.ws.SaveAs(ctx, s.tab, path)
	if err != nil {
		return err
	}
	if !res.Success {
		return res.Err
	}
	fmt.Fprintf(s.out, "saved %s\n", res.FilePath)
	return nil
}

func (s *Shell) backup(ctx context.Context, _ []string) error {
	res, err := s.ws.CreateBackup(ctx, s.tab)
	if err != nil {
		return err
	}
	if !res.Success {
		return res.Err
	}
	fmt.Fprintf(s.out, "backup %s\n", res.FilePath)
	return nil
}

func (s *Shell) backups(_ context.Context, _ []string) error {
	list, err := s.ws.Backups(s.tab)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(s.out, "no backups")
		return nil
	}
	for _, b := range list {
		fmt.Fprintf(s.out, "%s  %s  %d bytes\n", b.CreatedAt.Format("2006-01-02 15:04:05"), b.Path, b.Size)
	}
	return nil
}

func (s *Shell) render(_ context.Context, args []string) error {
	if s.renderer == nil {
		return errors.New("rendering is not available")
	}
	f, err := render.FormatFromPath(args[0])
	if err != nil {
		return err
	}
	doc, err := s.doc()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, doc, f); err != nil {
		return err
	}
	if err := storage.WriteFile(args[0], buf.Bytes()); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "wrote %s\n", args[0])
	return nil
}

func (s *Shell) help(_ context.Context, args []string) error {
	if len(args) > 0 {
		cmd, ok := commands[args[0]]
		if !ok {
			return fmt.Errorf("unknown command: %s", args[0])
		}
		fmt.Fprintf(s.out, "%s\n  %s\n", cmd.usage, cmd.help)
		return nil
	}
	for _, name := range commandNames() {
		if name == "exit" {
			continue
		}
		cmd := commands[name]
		fmt.Fprintf(s.out, "  %-28s %s\n", cmd.usage, cmd.help)
	}
	fmt.Fprintln(s.out, "Nodes are addressed by logical index (0, 1, 1.2) or id.")
	return nil
}

func (s *Shell) quit(_ context.Context, args []string) error {
	force := len(args) > 0 && (args[0] == "--force" || args[0] == "-f")
	info, err := s.ws.Get(s.tab)
	if err != nil {
		return err
	}
	if info.Dirty && !force {
		return fmt.Errorf("%w: use quit --force to discard", workspace.ErrUnsavedChanges)
	}
	return ErrQuit
}
