// Command uthread runs user-space thread workloads.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vnykmshr/uthread/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		cli.PrintError(os.Stderr, err)
	}
	os.Exit(cli.ExitCode(err))
}
