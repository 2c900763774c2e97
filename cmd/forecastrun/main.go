// Command forecastrun drives mini-batches of series rows through batch
// forecast workers and packages the resulting artifacts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rshade/forecastrun/internal/cli"
	"github.com/rshade/forecastrun/pkg/version"
)

func main() {
	os.Exit(run())
}

// run executes the root command and returns the process exit code.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(version.GetVersion())
	return exitCode(root.ExecuteContext(ctx))
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
