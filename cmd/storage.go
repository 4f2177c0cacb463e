package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"storagecompat/internal/ui"
	"storagecompat/pkg/config"
	"storagecompat/pkg/docuri"
	"storagecompat/pkg/usecase"
)

func buildStorageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "Show capacity and free space of the storage roots",
		Long: `Shows capacity, used and free space for each storage root of the
configured backend: the root directory for fs, primary storage and every
mounted volume for doctree, the state directory for mediastore.`,
		Args: cobra.NoArgs,
		RunE: runStorage,
	}
}

func runStorage(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	roots, err := storageInfoRoots(cfg)
	if err != nil {
		return err
	}

	service := usecase.New(usecase.Options{Logger: newLogger()})
	infos := service.RunStorageInfo(roots)

	printCommandHeader("storage", cfg)
	fmt.Println()

	rows := make([][]string, 0, len(infos))
	var failed int
	for _, info := range infos {
		if info.Error != nil {
			failed++
			rows = append(rows, []string{info.Name, info.Path, "-", "-", "-"})
			continue
		}
		rows = append(rows, []string{
			info.Name,
			info.Path,
			formatBytes(info.Usage.Capacity),
			formatBytes(info.Usage.Used()),
			formatBytes(info.Usage.Free),
		})
	}
	if err := ui.Table(os.Stdout, []string{"Storage", "Path", "Capacity", "Used", "Free"}, rows); err != nil {
		return err
	}

	for _, info := range infos {
		if info.Error != nil {
			fmt.Printf("%s %s: %v\n", ui.Error("ERROR"), info.Name, info.Error)
		}
	}

	fmt.Println()
	printSummary(
		fmt.Sprintf("Storage roots: %d", len(infos)),
		fmt.Sprintf("Errors: %d", failed),
	)

	return nil
}

func storageInfoRoots(cfg *config.Config) ([]usecase.StorageRoot, error) {
	switch cfg.Backend {
	case config.BackendMediaStore:
		return []usecase.StorageRoot{{Name: "media", Path: absOrSelf(cfg.StateDir)}}, nil
	case config.BackendDocTree:
		roots := storageRoots(cfg)
		list := []usecase.StorageRoot{{Name: docuri.PrimaryStorageID, Path: roots.External}}

		entries, err := afero.ReadDir(afero.NewOsFs(), roots.Volumes)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("list volumes: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				list = append(list, usecase.StorageRoot{Name: entry.Name(), Path: filepath.Join(roots.Volumes, entry.Name())})
			}
		}
		return list, nil
	default:
		return []usecase.StorageRoot{{Name: "root", Path: absOrSelf(cfg.Root)}}, nil
	}
}
