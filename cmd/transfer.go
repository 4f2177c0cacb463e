package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"storagecompat/internal/ui"
	"storagecompat/pkg/mover"
	"storagecompat/pkg/progress"
	"storagecompat/pkg/resolver"
	"storagecompat/pkg/usecase"
	"storagecompat/pkg/view"
)

var (
	transferMime      string
	transferRecursive bool
	assumeYes         bool
)

const progressInterval = 200 * time.Millisecond

func buildCopyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy [source...] [scope]",
		Short: "Copy files into a scope under collision-free names",
		Long: `Copies each source file into the scope. A source whose name is taken
gets the next free "name (N).ext". Free space is checked before each file.

A directory source contributes the files directly inside it; with
--recursive every file below it is copied into the scope, flattened.

Failures are reported per file and do not stop the batch.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runCopy,
	}

	cmd.Flags().StringVar(&transferMime, "mime", "", "MIME type of the copied entries")
	cmd.Flags().BoolVarP(&transferRecursive, "recursive", "r", false, "Descend into directory sources")

	return cmd
}

func buildMoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move [source...] [scope]",
		Short: "Move files into a scope under collision-free names",
		Long: `Like copy, but removes each source once its copy is complete.

Asks for confirmation when run on a terminal; --yes skips the prompt.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runMove,
	}

	cmd.Flags().StringVar(&transferMime, "mime", "", "MIME type of the moved entries")
	cmd.Flags().BoolVarP(&transferRecursive, "recursive", "r", false, "Descend into directory sources")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func runCopy(cmd *cobra.Command, args []string) error {
	return runTransfer(cmd, args, false)
}

func runMove(cmd *cobra.Command, args []string) error {
	if !dryRun && !assumeYes {
		ok, err := ui.Confirm(fmt.Sprintf("Move %d source(s) into %s?", len(args)-1, args[len(args)-1]), true)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	return runTransfer(cmd, args, true)
}

func runTransfer(cmd *cobra.Command, args []string, move bool) error {
	ctx := commandContext(cmd)
	sources, scope := args[:len(args)-1], args[len(args)-1]

	command := "copy"
	if move {
		command = "move"
	}

	env, err := newRuntime(ctx, cmd, !dryRun)
	if err != nil {
		return err
	}
	defer env.Close()

	printDryRunBanner()
	printCommandHeader(command, env.cfg)
	fmt.Printf("Scope: %s\n", scope)
	fmt.Println()

	callback := newTransferCallback()
	exec, runErr := env.service.RunTransfer(ctx, usecase.TransferRequest{
		Sources:    sources,
		Scope:      resolver.Scope(scope),
		MimeType:   transferMime,
		Move:       move,
		DryRun:     dryRun,
		Recursive:  transferRecursive,
		Callback:   callback,
		OnProgress: stageReporter(os.Stderr),
	})
	// A failed file leaves its bar behind.
	callback.Completed("")
	if runErr != nil && !errors.Is(runErr, mover.ErrCanceled) {
		return runErr
	}

	printTransferOperations(exec, command)
	fmt.Println()

	verb := "Copied"
	if move {
		verb = "Moved"
	}
	if exec.DryRun {
		verb = "Would " + command
	}

	printSummary(
		fmt.Sprintf("Total files: %d", exec.Result.TotalFiles),
		fmt.Sprintf("%s: %d", verb, exec.Result.TransferredCount),
		fmt.Sprintf("Renamed: %d", renamedCount(exec.Result)),
		fmt.Sprintf("Errors: %d", exec.Result.ErrorCount),
		fmt.Sprintf("Bytes: %s", formatBytes(exec.Result.Bytes)),
		fmt.Sprintf("Duration: %v", exec.Duration.Round(time.Millisecond)),
	)
	printJournal(exec.JournalPath)
	printDryRunHint()

	return runErr
}

func printTransferOperations(exec usecase.TransferExecution, command string) {
	label := ui.Success(map[string]string{"copy": "COPY", "move": "MOVE"}[command])

	for _, op := range exec.Result.Operations {
		switch {
		case op.Error != nil:
			fmt.Printf("%s %s: %v\n", ui.Error("ERROR"), op.Source, op.Error)
		case op.ReusedExisting:
			fmt.Printf("%s %s -> %s (existing empty entry)\n", ui.Warning("REUSE"), op.Source, op.Name)
		case verbose && op.Location != "":
			fmt.Printf("%s %s -> %s [%s]\n", label, op.Source, op.Name, op.Location)
		default:
			fmt.Printf("%s %s -> %s\n", label, op.Source, op.Name)
		}
	}
}

func renamedCount(result usecase.TransferResult) int {
	n := 0
	for _, op := range result.Operations {
		if op.Error == nil && op.Name != "" && op.Name != filepath.Base(op.Source) {
			n++
		}
	}
	return n
}

// transferCallback draws a progress bar per file when stderr is a terminal.
type transferCallback struct {
	interactive bool
	bar         *ui.ProgressBar
}

func newTransferCallback() *transferCallback {
	return &transferCallback{interactive: ui.IsTerminal(os.Stderr)}
}

func (c *transferCallback) CheckFreeSpace(free, size int64) bool {
	if free == view.UnknownFreeSpace || free >= size {
		return true
	}

	fmt.Fprintf(os.Stderr, "%s need %s, only %s free\n", ui.Warning("SPACE"), formatBytes(size), formatBytes(free))
	return false
}

func (c *transferCallback) StartMoving(target string) time.Duration {
	c.Completed("")
	if !c.interactive {
		return 0
	}

	bar, err := ui.StartProgressBar(os.Stderr, target)
	if err != nil {
		return 0
	}
	c.bar = bar

	return progressInterval
}

func (c *transferCallback) Report(s progress.Snapshot) {
	c.bar.Set(s.Percent)
}

func (c *transferCallback) Completed(string) {
	c.bar.Stop()
	c.bar = nil
}
