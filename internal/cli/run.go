package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/config"
	"github.com/marmos91/godfs/pkg/dfs"
	"github.com/marmos91/godfs/pkg/registry"
	flag "github.com/spf13/pflag"
)

// globalOptions are the flags accepted before the command name.
type globalOptions struct {
	configPath string
	host       string
	port       uint16
	user       string
	logLevel   string
}

// Run is the main entry point. Returns exit code.
func Run(ctx context.Context, in io.Reader, out, errOut io.Writer, args []string) int {
	o := NewIO(out, errOut)

	var opts globalOptions
	globals := flag.NewFlagSet("godfs", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})
	globals.StringVarP(&opts.configPath, "config", "c", "", "Path to config file")
	globals.StringVarP(&opts.host, "host", "H", "", `Host to connect to ("default", "hdfs://nn:8020", "file://")`)
	globals.Uint16VarP(&opts.port, "port", "p", 0, "Port to connect to")
	globals.StringVarP(&opts.user, "user", "u", "", "User name sent to the backend")
	globals.StringVar(&opts.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	help := globals.BoolP("help", "h", false, "Show help")

	if err := globals.Parse(args); err != nil {
		o.ErrPrintln("error:", err)
		printUsage(o, globals)
		return 1
	}

	cmds := commands()
	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(o, globals)
		if *help {
			return 0
		}
		return 1
	}

	name, cmdArgs := rest[0], rest[1:]
	cmd := findCommand(cmds, name)
	if cmd == nil {
		o.ErrPrintln("error: unknown command:", name)
		printUsage(o, globals)
		return 1
	}

	if cmd.Offline {
		return cmd.Run(ctx, &Env{IO: o}, cmdArgs)
	}

	sess, err := openSession(ctx, globals, &opts)
	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}
	defer func() {
		if err := sess.close(); err != nil {
			o.ErrPrintln("error:", err)
		}
	}()

	env := &Env{IO: o, Conn: sess.conn, Registry: sess.reg}
	if name == "shell" {
		return runShell(ctx, env, in)
	}
	return cmd.Run(ctx, env, cmdArgs)
}

// session owns everything opened for one invocation.
type session struct {
	conn    *dfs.Conn
	reg     *registry.Registry
	cleanup []func() error
}

func (s *session) close() error {
	var errs []error
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		errs = append(errs, s.cleanup[i]())
	}
	return errors.Join(errs...)
}

// openSession loads configuration, configures logging and metrics, builds
// the backend registry and connects to the selected host.
func openSession(ctx context.Context, globals *flag.FlagSet, opts *globalOptions) (_ *session, err error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if globals.Changed("host") {
		cfg.Client.Host = opts.host
	}
	if globals.Changed("port") {
		cfg.Client.Port = opts.port
	}
	if globals.Changed("user") {
		cfg.Client.User = opts.user
	}
	if globals.Changed("log-level") {
		cfg.Logging.Level = strings.ToUpper(opts.logLevel)
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	s := &session{}
	defer func() {
		if err != nil {
			err = errors.Join(err, s.close())
		}
	}()

	m := config.InitializeMetrics(cfg)
	if m.Server != nil {
		if err := m.Server.Listen(); err != nil {
			return nil, err
		}
		metricsCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- m.Server.Start(metricsCtx) }()
		s.cleanup = append(s.cleanup, func() error {
			cancel()
			select {
			case err := <-done:
				return err
			case <-time.After(10 * time.Second):
				return errors.New("metrics server did not stop")
			}
		})
	}

	reg, err := config.InitializeRegistry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backends: %w", err)
	}
	s.reg = reg
	s.cleanup = append(s.cleanup, reg.Close)

	client := config.NewClient(cfg, reg, m.ClientMetrics)

	var connectOpts []dfs.ConnectOption
	if cfg.Client.User != "" {
		connectOpts = append(connectOpts, dfs.WithUser(cfg.Client.User))
	}
	conn, err := client.Connect(ctx, cfg.Client.Host, cfg.Client.Port, connectOpts...)
	if err != nil {
		return nil, err
	}
	logger.DebugCtx(ctx, "Connected to %s (backend %s, connection %s)", conn.Host(), conn.Backend(), conn.ID())

	s.conn = conn
	s.cleanup = append(s.cleanup, func() error { return conn.Disconnect(context.WithoutCancel(ctx)) })
	return s, nil
}

func printUsage(o *IO, globals *flag.FlagSet) {
	o.Println("Usage: godfs [flags] <command> [args]")
	o.Println()
	o.Println("Flags:")

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})
	o.Printf("%s", buf.String())

	o.Println()
	o.Println("Commands:")
	for _, c := range commands() {
		o.Println(c.HelpLine())
	}
	o.Println()
	o.Println(`Run "godfs <command> --help" for command details.`)
}
