package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storagecompat/internal/ui"
	"storagecompat/pkg/resolver"
	"storagecompat/pkg/usecase"
)

var resolveMime string

func buildResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [scope] [name]",
		Short: "Show the name a new entry would get in a scope",
		Long: `Shows the name a new entry would get without creating anything.

If the name is free it is returned unchanged. Otherwise the next
"name (N).ext" after the highest existing number is returned. With
--reuse-empty an existing empty entry of the same name is handed back.

Scope is a directory relative to the root (fs), a tree URI or document ID
(doctree), or a relative path such as "Pictures/Trips" (mediastore).`,
		Args: cobra.ExactArgs(2),
		RunE: runResolve,
	}

	cmd.Flags().StringVar(&resolveMime, "mime", "", "MIME type, supplies the extension when the name has none")

	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	env, err := newRuntime(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer env.Close()

	exec, err := env.service.RunResolve(ctx, usecase.ResolveRequest{
		Scope:    resolver.Scope(args[0]),
		Name:     args[1],
		MimeType: resolveMime,
	})
	if err != nil {
		return err
	}

	printCommandHeader("resolve", env.cfg)
	fmt.Printf("Scope: %s\n", exec.Scope)
	fmt.Println()

	printResolution(exec)

	return nil
}

func printResolution(exec usecase.ResolveExecution) {
	requested := exec.Candidate.String()
	res := exec.Resolved

	switch {
	case res.ReusedExisting:
		fmt.Printf("%s %s (existing entry)\n", ui.Warning("REUSE"), res.Name)
	case res.Name == requested:
		fmt.Printf("%s %s\n", ui.Success("FREE"), res.Name)
	default:
		fmt.Printf("%s %s -> %s\n", ui.Info("RENAME"), requested, res.Name)
	}
}
