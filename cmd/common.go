package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"storagecompat/internal/ui"
	"storagecompat/pkg/config"
	"storagecompat/pkg/docuri"
	"storagecompat/pkg/metadata"
	"storagecompat/pkg/usecase"
	"storagecompat/pkg/view"
	"storagecompat/pkg/view/doctree"
	"storagecompat/pkg/view/fsview"
	"storagecompat/pkg/view/mediastore"
)

// runtimeEnv is everything a command needs once configuration is loaded.
type runtimeEnv struct {
	cfg     *config.Config
	backend view.Backend
	service *usecase.Service
	close   func() error
}

func (r *runtimeEnv) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := config.Options{
		ConfigFile: configFile,
		DotEnv:     ".env",
	}
	if cmd != nil {
		opts.Flags = cmd.Flags()
	}

	return config.Load(opts)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newRuntime loads configuration and opens the configured backend. When
// needState is set the state directory is created as well.
func newRuntime(ctx context.Context, cmd *cobra.Command, needState bool) (*runtimeEnv, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := newLogger()
	if cfg.ConfigFile != "" {
		logger.Debug("loaded config", "file", cfg.ConfigFile)
	}

	var state *metadata.Dir
	if needState || cfg.Backend == config.BackendMediaStore {
		state, err = metadata.Init(afero.NewOsFs(), cfg.StateDir)
		if err != nil {
			return nil, err
		}
	}

	backend, closeFn, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &runtimeEnv{
		cfg:     cfg,
		backend: backend,
		close:   closeFn,
		service: usecase.New(usecase.Options{
			Backend:     backend,
			BackendName: cfg.Backend,
			State:       state,
			ReuseEmpty:  cfg.ReuseEmpty,
			LockTimeout: cfg.LockTimeout,
			Logger:      logger,
		}),
	}, nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (view.Backend, func() error, error) {
	nop := func() error { return nil }
	osFs := afero.NewOsFs()

	switch cfg.Backend {
	case config.BackendDocTree:
		return doctree.New(osFs, storageRoots(cfg)), nop, nil
	case config.BackendMediaStore:
		store, err := mediastore.Open(ctx, cfg.MediaDriver, cfg.MediaDSN, mediastore.Options{Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("open media index: %w", err)
		}
		return store.View(cfg.MediaType, cfg.MediaOwner), store.Close, nil
	default:
		v, err := fsview.New(osFs, cfg.Root)
		if err != nil {
			return nil, nil, err
		}
		return v, nop, nil
	}
}

func storageRoots(cfg *config.Config) docuri.StorageRoots {
	return docuri.StorageRoots{
		External: absOrSelf(cfg.Root),
		Volumes:  absOrSelf(cfg.VolumesDir),
	}
}

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func printDryRunBanner() {
	if !dryRun {
		return
	}

	fmt.Println("=== DRY RUN - no changes will be made ===")
	fmt.Println()
}

func printCommandHeader(command string, cfg *config.Config) {
	fmt.Println(ui.Title("Command: " + command))
	fmt.Printf("Backend: %s\n", cfg.Backend)
	switch cfg.Backend {
	case config.BackendMediaStore:
		fmt.Printf("Media collection: %s (%s)\n", cfg.MediaType, cfg.MediaDriver)
	default:
		fmt.Printf("Root directory: %s\n", absOrSelf(cfg.Root))
	}
}

func printSummary(lines ...string) {
	fmt.Println(ui.Title("=== Summary ==="))
	for _, line := range lines {
		fmt.Println(line)
	}
}

func printDryRunHint() {
	if !dryRun {
		return
	}

	fmt.Println()
	fmt.Println("Run without --dry-run to apply changes.")
}

func printJournal(path string) {
	if path == "" {
		return
	}
	fmt.Printf("Journal: %s\n", path)
}

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// stageReporter prints batch stage progress to w when verbose.
func stageReporter(w io.Writer) usecase.ProgressCallback {
	if !verbose {
		return nil
	}

	return func(stage string, processed, total int) {
		fmt.Fprintf(w, "%s... %d/%d\n", stage, processed, total)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
