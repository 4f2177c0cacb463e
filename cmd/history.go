package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"storagecompat/internal/ui"
	"storagecompat/pkg/metadata"
	"storagecompat/pkg/usecase"
)

var historyLimit int

func buildHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled create, copy and move operations",
		Long: `Lists confirmed operations from the journals in the state directory,
newest first. Journals holding an operation that started but never
finished, for example after a crash or Ctrl-C, are listed as incomplete.`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}

	cmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries (0 for all)")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	state, err := metadata.Init(afero.NewOsFs(), cfg.StateDir)
	if err != nil {
		return err
	}

	service := usecase.New(usecase.Options{State: state, Logger: newLogger()})
	exec, err := service.RunHistory(usecase.HistoryRequest{Limit: historyLimit})
	if err != nil {
		return err
	}

	fmt.Println(ui.Title("Command: history"))
	fmt.Printf("State directory: %s\n", state.Root())
	fmt.Println()

	if len(exec.Entries) == 0 {
		fmt.Println("No operations recorded.")
	} else {
		rows := make([][]string, 0, len(exec.Entries))
		for _, e := range exec.Entries {
			rows = append(rows, []string{
				e.Timestamp.Local().Format(time.DateTime),
				e.Type,
				e.Backend,
				e.Scope,
				e.Name,
				e.Location,
			})
		}
		if err := ui.Table(os.Stdout, []string{"Time", "Type", "Backend", "Scope", "Name", "Location"}, rows); err != nil {
			return err
		}
	}

	for _, path := range exec.Incomplete {
		fmt.Printf("%s %s\n", ui.Warning("INCOMPLETE"), path)
	}
	for path, readErr := range exec.Unreadable {
		fmt.Printf("%s %s: %v\n", ui.Error("UNREADABLE"), path, readErr)
	}

	fmt.Println()
	printSummary(
		fmt.Sprintf("Entries: %d", len(exec.Entries)),
		fmt.Sprintf("Incomplete journals: %d", len(exec.Incomplete)),
	)

	return nil
}
