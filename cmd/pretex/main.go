package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/pretex/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		code := cli.GetExitCode(err)
		// Cobra prints its own usage errors; exit errors carry a
		// message that has not been shown yet.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(code)
	}
}
