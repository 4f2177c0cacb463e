package main

import (
	"github.com/spf13/cobra"
)

var (
	dryRun     bool
	verbose    bool
	configFile string
)

func buildRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storagecompat",
		Short: "Pick collision-free names when writing into shared storage",
		Long: `storagecompat writes files into a storage backend without clobbering what
is already there. When a name is taken it picks the next free "name (N).ext",
the way file managers and document providers do.

Backends:
  fs          A directory tree on the local filesystem
  doctree     Storage volumes addressed by document IDs and tree URIs
  mediastore  A media index (images, audio, video, downloads) in SQL

Commands:
  resolve   Shows the name a new entry would get
  create    Creates an empty entry under the resolved name
  copy      Copies files into a scope
  move      Moves files into a scope
  history   Lists journaled operations
  uri       Translates between paths, document IDs and tree URIs
  storage   Shows capacity and free space of the storage roots

Examples:
  # Which name would "photo.jpg" get in Pictures?
  storagecompat resolve Pictures photo.jpg

  # Create it
  storagecompat create Pictures photo.jpg

  # Copy files into a granted tree on the SD card
  storagecompat --backend doctree copy ~/export/*.pdf "content://com.android.externalstorage.documents/tree/1A2B-3C4D%3ADocuments"

  # Preview a move into the media index
  storagecompat --backend mediastore --media-type audio move --dry-run song.mp3 Music

Configuration:
  Settings come from .storagecompat.yaml (current directory, home directory
  or ~/.config/storagecompat), a .env file, STORAGECOMPAT_* environment
  variables and flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&dryRun, "dry-run", false, "Show what would be done without making changes")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	flags.StringVar(&configFile, "config", "", "Config file (default .storagecompat.yaml)")
	flags.String("backend", "", "Storage backend: fs, doctree or mediastore")
	flags.String("root", "", "Filesystem root, also primary storage for doctree")
	flags.String("volumes", "", "Directory holding removable volumes for doctree")
	flags.String("media-driver", "", "Media index driver: sqlite, postgres or mysql")
	flags.String("media-db", "", "Media index data source name")
	flags.String("media-type", "", "Media collection: image, audio, video or downloads")
	flags.String("state-dir", "", "Directory for journals and lock files")
	flags.Bool("reuse-empty", false, "Reuse an existing empty entry instead of numbering a new one")

	return cmd
}
