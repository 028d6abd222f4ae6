// Command godfs is a command-line client for HDFS, the cluster backend and
// the local filesystem.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/godfs/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	os.Exit(code)
}
