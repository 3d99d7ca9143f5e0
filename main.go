package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/makibytes/dlqm/cmd"
	"github.com/makibytes/dlqm/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.NewRootCommand(cmd.BrokerFactory)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error("%s", err)
		stop()
		os.Exit(1)
	}
}
