package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/godfs/pkg/backend/cluster"
	"github.com/marmos91/godfs/pkg/config"
	"github.com/marmos91/godfs/pkg/dfs"
	flag "github.com/spf13/pflag"
)

// commands returns a fresh command table. FlagSets hold parse state, so
// the shell builds a new table for every line.
func commands() []*Command {
	return []*Command{
		lsCmd(), statCmd(), catCmd(), putCmd(), getCmd(), mkdirCmd(), rmCmd(),
		mvCmd(), touchCmd(), testCmd(), chmodCmd(), chownCmd(), setrepCmd(),
		dfCmd(), pwdCmd(), gcCmd(), shellCmd(), initCmd(),
	}
}

func findCommand(cmds []*Command, name string) *Command {
	for _, c := range cmds {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func wantArgs(args []string, n int, what string) error {
	if len(args) != n {
		return usagef("expected %s", what)
	}
	return nil
}

func lsCmd() *Command {
	flags := newFlags("ls")
	human := flags.BoolP("human-readable", "h", false, "Print sizes like 1.2 MiB")

	return &Command{
		Flags: flags,
		Usage: "ls [-h] [path]",
		Short: "List a directory",
		Long:  "List the entries of a directory. Without a path the working directory is listed.",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if len(args) > 1 {
				return usagef("expected at most one path")
			}
			path := "."
			if len(args) == 1 {
				path = args[0]
			}

			entries, err := env.Conn.ListDirectory(ctx, path)
			if err != nil {
				return err
			}
			for _, e := range entries {
				env.IO.Println(formatEntry(e, *human))
			}
			return nil
		},
	}
}

// formatEntry renders one ls line: mode, replication, owner, group, size,
// modification time and name.
func formatEntry(e dfs.DirEntry, human bool) string {
	mode := e.Permissions
	repl := "-"
	if e.Kind == dfs.KindDirectory {
		mode |= fs.ModeDir
	} else {
		repl = strconv.Itoa(int(e.Replication))
	}

	size := strconv.FormatInt(e.Size, 10)
	if human {
		size = humanize.IBytes(uint64(e.Size))
	}

	return fmt.Sprintf("%s %3s %-10s %-10s %10s %s %s",
		mode, repl, e.Owner, e.Group, size, e.ModTime.Format("2006-01-02 15:04"), e.Name)
}

func statCmd() *Command {
	return &Command{
		Flags: newFlags("stat"),
		Usage: "stat <path>",
		Short: "Show file or directory attributes",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 1, "one path"); err != nil {
				return err
			}
			st, err := env.Conn.Stat(ctx, args[0])
			if err != nil {
				return err
			}
			if st == nil {
				return fmt.Errorf("%s: %w", args[0], fs.ErrNotExist)
			}

			kind := "file"
			if st.IsDir() {
				kind = "directory"
			}
			env.IO.Printf("Path:        %s\n", args[0])
			env.IO.Printf("Type:        %s\n", kind)
			env.IO.Printf("Size:        %d\n", st.Size)
			env.IO.Printf("Replication: %d\n", st.Replication)
			env.IO.Printf("Block size:  %d\n", st.BlockSize)
			env.IO.Printf("Modified:    %s\n", st.ModTime.Format(time.RFC3339))
			env.IO.Printf("Accessed:    %s\n", st.AccessTime.Format(time.RFC3339))
			return nil
		},
	}
}

func catCmd() *Command {
	return &Command{
		Flags: newFlags("cat"),
		Usage: "cat <path>...",
		Short: "Print file contents",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if len(args) == 0 {
				return usagef("expected at least one path")
			}
			for _, path := range args {
				if err := catFile(ctx, env, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func catFile(ctx context.Context, env *Env, path string) (err error) {
	f, err := env.Conn.Open(ctx, path, "r")
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close(ctx)) }()

	for {
		data, err := f.Read(ctx, dfs.MaxReadSize)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		if _, err := env.IO.Out().Write(data); err != nil {
			return err
		}
	}
}

func putCmd() *Command {
	return &Command{
		Flags: newFlags("put"),
		Usage: "put <local> <remote>",
		Short: "Copy a local file to the filesystem",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 2, "a local and a remote path"); err != nil {
				return err
			}
			return env.Conn.Put(ctx, args[0], args[1])
		},
	}
}

func getCmd() *Command {
	return &Command{
		Flags: newFlags("get"),
		Usage: "get <remote> <local>",
		Short: "Copy a file from the filesystem to local disk",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 2, "a remote and a local path"); err != nil {
				return err
			}
			return env.Conn.Get(ctx, args[0], args[1])
		},
	}
}

func mkdirCmd() *Command {
	return &Command{
		Flags: newFlags("mkdir"),
		Usage: "mkdir <path>...",
		Short: "Create directories and their parents",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if len(args) == 0 {
				return usagef("expected at least one path")
			}
			for _, path := range args {
				if _, err := env.Conn.Mkdir(ctx, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func rmCmd() *Command {
	flags := newFlags("rm")
	recursive := flags.BoolP("recursive", "r", false, "Remove directories and their contents")
	force := flags.BoolP("force", "f", false, "Ignore missing paths")

	return &Command{
		Flags: flags,
		Usage: "rm [-r] [-f] <path>...",
		Short: "Remove files or directories",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if len(args) == 0 {
				return usagef("expected at least one path")
			}
			for _, path := range args {
				_, err := env.Conn.Delete(ctx, path, *recursive)
				if err != nil && !(*force && errors.Is(err, fs.ErrNotExist)) {
					return err
				}
			}
			return nil
		},
	}
}

func mvCmd() *Command {
	return &Command{
		Flags: newFlags("mv"),
		Usage: "mv <src> <dst>",
		Short: "Rename a file or directory",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 2, "a source and a destination"); err != nil {
				return err
			}
			_, err := env.Conn.Rename(ctx, args[0], args[1])
			return err
		},
	}
}

func touchCmd() *Command {
	return &Command{
		Flags: newFlags("touch"),
		Usage: "touch <path>...",
		Short: "Create empty files or update their times",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if len(args) == 0 {
				return usagef("expected at least one path")
			}
			for _, path := range args {
				if err := touch(ctx, env.Conn, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func touch(ctx context.Context, conn *dfs.Conn, path string) error {
	state, err := conn.Lookup(ctx, path)
	switch state {
	case dfs.Exists:
		now := time.Now()
		_, err = conn.Utime(ctx, path, now, now)
		return err
	case dfs.Absent:
		f, err := conn.Open(ctx, path, "w")
		if err != nil {
			return err
		}
		return f.Close(ctx)
	}
	return err
}

func testCmd() *Command {
	flags := newFlags("test")
	dir := flags.BoolP("directory", "d", false, "True if path is a directory")
	file := flags.BoolP("file", "f", false, "True if path is a file")
	empty := flags.BoolP("zero", "z", false, "True if path is a zero-length file")

	return &Command{
		Flags: flags,
		Usage: "test [-d|-f|-z] <path>",
		Short: "Exit 0 if path exists (or matches the flag), 1 otherwise",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 1, "one path"); err != nil {
				return err
			}

			st, err := env.Conn.Stat(ctx, args[0])
			if err != nil {
				return err
			}

			ok := st != nil
			switch {
			case !ok:
			case *dir:
				ok = st.IsDir()
			case *file:
				ok = !st.IsDir()
			case *empty:
				ok = !st.IsDir() && st.Size == 0
			}
			if !ok {
				return errFalse
			}
			return nil
		},
	}
}

func chmodCmd() *Command {
	return &Command{
		Flags: newFlags("chmod"),
		Usage: "chmod <octal-mode> <path>",
		Short: "Change permission bits",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 2, "a mode and a path"); err != nil {
				return err
			}
			mode, err := strconv.ParseUint(args[0], 8, 32)
			if err != nil || mode > 0o777 {
				return usagef("invalid mode %q", args[0])
			}
			_, err = env.Conn.Chmod(ctx, args[1], fs.FileMode(mode))
			return err
		},
	}
}

func chownCmd() *Command {
	return &Command{
		Flags: newFlags("chown"),
		Usage: "chown <owner>[:<group>] <path>",
		Short: "Change owner and group",
		Long:  "Change the owner and group of a path. An empty owner or group is left unchanged.",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 2, "an owner and a path"); err != nil {
				return err
			}
			owner, group, _ := strings.Cut(args[0], ":")
			_, err := env.Conn.Chown(ctx, args[1], owner, group)
			return err
		},
	}
}

func setrepCmd() *Command {
	return &Command{
		Flags: newFlags("setrep"),
		Usage: "setrep <replication> <path>",
		Short: "Change the replication factor of a file",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 2, "a replication factor and a path"); err != nil {
				return err
			}
			n, err := strconv.ParseInt(args[0], 10, 16)
			if err != nil || n <= 0 {
				return usagef("invalid replication %q", args[0])
			}
			_, err = env.Conn.SetReplication(ctx, args[1], int16(n))
			return err
		},
	}
}

func dfCmd() *Command {
	flags := newFlags("df")
	human := flags.BoolP("human-readable", "h", false, "Print sizes like 1.2 GiB")

	return &Command{
		Flags: flags,
		Usage: "df [-h]",
		Short: "Show filesystem capacity and usage",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 0, "no arguments"); err != nil {
				return err
			}
			capacity, err := env.Conn.Capacity(ctx)
			if err != nil {
				return err
			}
			used, err := env.Conn.Used(ctx)
			if err != nil {
				return err
			}

			format := func(n int64) string {
				if *human {
					return humanize.IBytes(uint64(n))
				}
				return strconv.FormatInt(n, 10)
			}
			pct := 0.0
			if capacity > 0 {
				pct = float64(used) * 100 / float64(capacity)
			}
			env.IO.Printf("%-12s %14s %14s %14s %5s\n", "Filesystem", "Size", "Used", "Available", "Use%")
			env.IO.Printf("%-12s %14s %14s %14s %4.0f%%\n",
				env.Conn.Backend(), format(capacity), format(used), format(capacity-used), pct)
			return nil
		},
	}
}

func pwdCmd() *Command {
	return &Command{
		Flags: newFlags("pwd"),
		Usage: "pwd",
		Short: "Print the working directory",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			dir, ok := env.Conn.GetWorkingDirectory(ctx)
			if !ok {
				return errors.New("working directory unavailable")
			}
			env.IO.Println(dir)
			return nil
		},
	}
}

func gcCmd() *Command {
	flags := newFlags("gc")
	dryRun := flags.Bool("dry-run", false, "Report orphaned content without deleting it")

	return &Command{
		Flags: flags,
		Usage: "gc [--dry-run]",
		Short: "Delete cluster content no file refers to",
		Long: "Scan the cluster backend's content store for content no file refers to and delete it.\n" +
			"Other backends manage their own storage.",
		Exec: func(ctx context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 0, "no arguments"); err != nil {
				return err
			}
			b, err := env.Registry.Get("cluster")
			if err != nil {
				return err
			}
			cb, ok := b.(*cluster.Backend)
			if !ok {
				return fmt.Errorf("backend %q does not support garbage collection", b.Name())
			}

			stats, err := cb.CollectGarbage(ctx, *dryRun)
			if err != nil {
				return err
			}
			env.IO.Println(stats.Summary())
			return nil
		},
	}
}

// shellCmd only carries help text; Run starts the shell itself because it
// needs the input stream.
func shellCmd() *Command {
	return &Command{
		Flags: newFlags("shell"),
		Usage: "shell",
		Short: "Interactive shell over one connection",
		Long:  "Start an interactive shell. Every command above is available, plus cd, help and exit.",
	}
}

func initCmd() *Command {
	flags := newFlags("init")
	force := flags.Bool("force", false, "Overwrite an existing file")
	path := flags.String("path", "", "Write to this path instead of the default location")

	return &Command{
		Flags:   flags,
		Usage:   "init [--force] [--path <file>]",
		Short:   "Write a default configuration file",
		Offline: true,
		Exec: func(_ context.Context, env *Env, args []string) error {
			if err := wantArgs(args, 0, "no arguments"); err != nil {
				return err
			}
			target := *path
			if target == "" {
				target = config.GetDefaultConfigPath()
			}
			if err := config.InitConfigToPath(target, *force); err != nil {
				return err
			}
			env.IO.Println("Configuration written to", target)
			return nil
		},
	}
}
