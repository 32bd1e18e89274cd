package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phozos/phozos-client/cmd/phozos/commands"
	"github.com/phozos/phozos-client/internal/query"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, os.Args, version); err != nil {
		if !commands.Reported(err) {
			fmt.Fprintf(os.Stderr, "error: %s\n", query.UserMessage(err))
		}

		os.Exit(1)
	}
}
