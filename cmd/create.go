package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storagecompat/internal/ui"
	"storagecompat/pkg/resolver"
	"storagecompat/pkg/usecase"
)

var createMime string

func buildCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [scope] [name]",
		Short: "Create an empty entry under a collision-free name",
		Long: `Resolves the name like "resolve" and creates an empty entry under it.

Creators in the same scope are serialized through a lock file in the state
directory, so two concurrent runs never get the same name. Every creation
is recorded in a journal.

Use --dry-run to only show the resolved name.`,
		Args: cobra.ExactArgs(2),
		RunE: runCreate,
	}

	cmd.Flags().StringVar(&createMime, "mime", "", "MIME type of the new entry")

	return cmd
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	env, err := newRuntime(ctx, cmd, !dryRun)
	if err != nil {
		return err
	}
	defer env.Close()

	printDryRunBanner()
	printCommandHeader("create", env.cfg)
	fmt.Printf("Scope: %s\n", args[0])
	fmt.Println()

	exec, err := env.service.RunCreate(ctx, usecase.CreateRequest{
		Scope:    resolver.Scope(args[0]),
		Name:     args[1],
		MimeType: createMime,
		DryRun:   dryRun,
	})
	if err != nil {
		return err
	}

	if exec.DryRun {
		printResolution(exec.ResolveExecution)
		printDryRunHint()
		return nil
	}

	label := ui.Success("CREATE")
	if !exec.Created {
		label = ui.Warning("REUSE")
	}
	fmt.Printf("%s %s\n", label, exec.Resolved.Name)
	fmt.Println()

	printSummary(
		fmt.Sprintf("Requested: %s", exec.Candidate),
		fmt.Sprintf("Name: %s", exec.Resolved.Name),
		fmt.Sprintf("Location: %s", exec.Location),
	)
	printJournal(exec.JournalPath)

	return nil
}
