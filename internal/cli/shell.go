package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// lineReader is the input side of the shell: liner on a terminal, a plain
// scanner for anything else.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".godfs_history")
}

type linerReader struct {
	state *liner.State
}

func newLinerReader() *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(completeCommand)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = state.ReadHistory(f)
		_ = f.Close()
	}
	return &linerReader{state: state}
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	return line, err
}

func (r *linerReader) AppendHistory(line string) { r.state.AppendHistory(line) }

// Close persists history and restores the terminal.
func (r *linerReader) Close() error {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = r.state.WriteHistory(f)
			_ = f.Close()
		}
	}
	return r.state.Close()
}

type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) AppendHistory(string) {}
func (r *scanReader) Close() error         { return nil }

// completeCommand provides tab completion for command names.
func completeCommand(line string) []string {
	var out []string
	for _, name := range shellWords() {
		if strings.HasPrefix(name, strings.ToLower(line)) {
			out = append(out, name)
		}
	}
	return out
}

func shellWords() []string {
	words := []string{"cd", "help", "exit", "quit"}
	for _, c := range commands() {
		if c.Name() != "shell" {
			words = append(words, c.Name())
		}
	}
	return words
}

// runShell reads commands from in until exit or end of input. Every line
// runs against env.Conn; failures are reported and the loop continues.
// The exit code is that of the last command.
func runShell(ctx context.Context, env *Env, in io.Reader) int {
	var r lineReader
	if in == os.Stdin {
		r = newLinerReader()
	} else {
		r = &scanReader{sc: bufio.NewScanner(in)}
	}
	defer func() { _ = r.Close() }()

	code := 0
	for ctx.Err() == nil {
		line, err := r.Prompt(prompt(ctx, env))
		if err != nil {
			if !errors.Is(err, io.EOF) {
				env.IO.ErrPrintln("error: reading input:", err)
				return 1
			}
			return code
		}

		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		r.AppendHistory(line)

		name, args := fields[0], fields[1:]
		switch name {
		case "exit", "quit":
			return code
		case "help", "?":
			for _, c := range commands() {
				if c.Name() != "shell" {
					env.IO.Println(c.HelpLine())
				}
			}
			env.IO.Printf("  %-28s %s\n", "cd <path>", "Change the working directory")
			env.IO.Printf("  %-28s %s\n", "exit", "Leave the shell")
			code = 0
		case "cd":
			code = changeDir(ctx, env, args)
		case "shell":
			env.IO.ErrPrintln("error: already in a shell")
			code = 1
		default:
			cmd := findCommand(commands(), name)
			if cmd == nil {
				env.IO.ErrPrintln("error: unknown command:", name, "(type 'help' for commands)")
				code = 1
				continue
			}
			code = cmd.Run(ctx, env, args)
		}
	}
	return 130
}

func changeDir(ctx context.Context, env *Env, args []string) int {
	if len(args) != 1 {
		env.IO.ErrPrintln("error: usage: cd <path>")
		return 1
	}
	if _, err := env.Conn.SetWorkingDirectory(ctx, args[0]); err != nil {
		env.IO.ErrPrintln("error:", err)
		return 1
	}
	return 0
}

func prompt(ctx context.Context, env *Env) string {
	dir, ok := env.Conn.GetWorkingDirectory(ctx)
	if !ok {
		dir = "?"
	}
	return "godfs:" + dir + "> "
}
