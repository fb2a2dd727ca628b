package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/llxisdsh/slim/cmd/slimbench/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := commands.NewRootCmd("slimbench")
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimLeft(err.Error(), "\n"))
		stop()
		os.Exit(1)
	}
}
