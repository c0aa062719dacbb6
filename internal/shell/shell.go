// Package shell is a line-oriented editor for one mind map, usable
// interactively through readline or fed a script.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/starford/hippomind/internal/render"
	"github.com/starford/hippomind/internal/workspace"
)

// ErrQuit is returned by Execute when the session should end.
var ErrQuit = errors.New("shell: quit")

// Shell edits a single workspace tab.
type Shell struct {
	ws       *workspace.Workspace
	tab      string
	renderer *render.Renderer
	out      io.Writer
}

// Option configures a Shell.
type Option func(*Shell)

// WithOutput redirects command output (default os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(s *Shell) { s.out = w }
}

// WithRenderer enables the render command.
func WithRenderer(r *render.Renderer) Option {
	return func(s *Shell) { s.renderer = r }
}

// New opens path in ws, or a blank document when path is empty, and returns
// a shell bound to that tab.
func New(ctx context.Context, ws *workspace.Workspace, path string, opts ...Option) (*Shell, error) {
	s := &Shell{ws: ws, out: os.Stdout}
	for _, o := range opts {
		o(s)
	}
	var info workspace.TabInfo
	if path == "" {
		info = ws.New("")
	} else {
		var err error
		if info, err = ws.Open(ctx, path); err != nil {
			return nil, err
		}
	}
	s.tab = info.ID
	return s, nil
}

// TabID returns the tab the shell edits.
func (s *Shell) TabID() string { return s.tab }

// Run reads commands from rl until quit, EOF or an interrupt on an empty
// line. Command errors are printed and do not end the session.
func (s *Shell) Run(ctx context.Context, rl *readline.Instance) error {
	info, _ := s.ws.Get(s.tab)
	fmt.Fprintf(s.out, "Editing %q. Type 'help' for commands.\n", info.Title)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		err = s.Execute(ctx, line)
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

// RunScript executes r line by line. Blank lines and lines starting with
// '#' are skipped. The first failing command stops the script.
func (s *Shell) RunScript(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		err := s.Execute(ctx, line)
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

// Execute runs one command line.
func (s *Shell) Execute(ctx context.Context, line string) error {
	args := ParseArgs(line)
	if len(args) == 0 {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	if len(args)-1 < cmd.minArgs {
		return fmt.Errorf("usage: %s", cmd.usage)
	}
	return cmd.run(s, ctx, args[1:])
}

// ParseArgs splits input on spaces. Double quotes group words and may
// produce an empty argument; a backslash escapes the next rune.
func ParseArgs(input string) []string {
	var args []string
	var cur strings.Builder
	inQuotes, started, escaped := false, false, false

	for _, r := range input {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped, started = true, true
		case r == '"':
			inQuotes = !inQuotes
			started = true
		case (r == ' ' || r == '\t') && !inQuotes:
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		args = append(args, cur.String())
	}
	return args
}

// NewReadline returns a readline instance with the shell prompt.
func NewReadline(historyFile string) (*readline.Instance, error) {
	names := make([]readline.PrefixCompleterInterface, 0, len(commands))
	for _, name := range commandNames() {
		names = append(names, readline.PcItem(name))
	}
	return readline.NewEx(&readline.Config{
		Prompt:          "hippomind> ",
		HistoryFile:     historyFile,
		AutoComplete:    readline.NewPrefixCompleter(names...),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
}
