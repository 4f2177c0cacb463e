package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"storagecompat/pkg/docuri"
)

func buildURICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uri [path|uri]",
		Short: "Translate between paths, document IDs and tree URIs",
		Long: `Translates a filesystem path into its document ID and tree URI, or a
tree URI, document URI or document ID back into a filesystem path.

Paths are mapped with --root as primary storage and --volumes as the
directory holding one folder per removable volume.`,
		Args: cobra.ExactArgs(1),
		RunE: runURI,
	}
}

func runURI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	roots := storageRoots(cfg)

	if doc, parseErr := docuri.Parse(args[0]); parseErr == nil {
		fmt.Printf("Path: %s\n", roots.Resolve(doc))
		if doc.RawPath == "" {
			fmt.Printf("Storage: %s\n", doc.StorageID)
			fmt.Printf("Document ID: %s\n", doc.ID())
			fmt.Printf("Tree URI: %s\n", docuri.TreeURI(doc.StorageID, doc.BasePath))
		}
		return nil
	}

	abs, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	storageID, basePath, err := roots.FromPath(abs)
	if err != nil {
		return err
	}

	fmt.Printf("Path: %s\n", abs)
	fmt.Printf("Storage: %s\n", storageID)
	fmt.Printf("Document ID: %s\n", docuri.DocumentID(storageID, basePath))
	fmt.Printf("Tree URI: %s\n", docuri.TreeURI(storageID, basePath))

	return nil
}
