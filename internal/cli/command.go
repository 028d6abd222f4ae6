package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/godfs/pkg/dfs"
	"github.com/marmos91/godfs/pkg/registry"
	flag "github.com/spf13/pflag"
)

// Env is what a command runs against.
type Env struct {
	IO *IO

	// Conn is the session opened for this invocation. nil for commands
	// marked Offline.
	Conn *dfs.Conn

	// Registry holds the configured backends. nil for Offline commands.
	Registry *registry.Registry
}

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "godfs" in help.
	// Examples: "ls [path]", "rm [-r] <path>..."
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Offline commands run without connecting to a filesystem.
	Offline bool

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, env *Env, args []string) error
}

// errFalse makes a command exit with status 1 without printing anything.
// "test" uses it to report a negative answer.
var errFalse = errors.New("false")

// usageError reports wrong arguments. The command's help follows it.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, a ...any) error {
	return &usageError{msg: fmt.Sprintf(format, a...)}
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-28s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "godfs <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: godfs", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}
	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns exit code.
func (c *Command) Run(ctx context.Context, env *Env, args []string) int {
	if c.Flags == nil {
		c.Flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	}
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(env.IO)
			return 0
		}
		env.IO.ErrPrintln("error:", err)
		env.IO.ErrPrintln()
		c.PrintHelp(env.IO)
		return 1
	}

	err := c.Exec(ctx, env, c.Flags.Args())
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFalse):
		return 1
	}

	env.IO.ErrPrintln("error:", err)
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		env.IO.ErrPrintln()
		c.PrintHelp(env.IO)
	}
	return 1
}
