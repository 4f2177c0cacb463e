package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"storagecompat/internal/ui"
)

func newCommandTree() *cobra.Command {
	rootCmd := buildRootCommand()
	rootCmd.AddCommand(buildResolveCommand())
	rootCmd.AddCommand(buildCreateCommand())
	rootCmd.AddCommand(buildCopyCommand())
	rootCmd.AddCommand(buildMoveCommand())
	rootCmd.AddCommand(buildHistoryCommand())
	rootCmd.AddCommand(buildURICommand())
	rootCmd.AddCommand(buildStorageCommand())

	return rootCmd
}

func main() {
	rootCmd := newCommandTree()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.Error("Error:"), err)
		stop()
		os.Exit(1)
	}
}
