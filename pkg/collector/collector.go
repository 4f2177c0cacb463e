// Package collector provides directory listing utilities over an afero.Fs.
package collector

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FileInfo holds metadata about a file.
type FileInfo struct {
	Path    string    // Full path to the file
	Dir     string    // Directory containing the file
	Name    string    // Filename
	Size    int64     // File size in bytes
	ModTime time.Time // Modification time
}

// Options configures the collector behavior.
type Options struct {
	// SkipFiles is a list of filenames to skip (e.g., lock or state files)
	SkipFiles []string
	// SkipDirs is a list of directory names to skip
	SkipDirs []string
}

// Collector collects file metadata from directories on a filesystem.
type Collector struct {
	fs        afero.Fs
	skipFiles map[string]bool
	skipDirs  map[string]bool
}

// New creates a new Collector reading from fsys.
func New(fsys afero.Fs, opts Options) *Collector {
	c := &Collector{
		fs:        fsys,
		skipFiles: make(map[string]bool),
		skipDirs:  make(map[string]bool),
	}

	for _, f := range opts.SkipFiles {
		c.skipFiles[f] = true
	}
	for _, d := range opts.SkipDirs {
		c.skipDirs[d] = true
	}

	return c
}

// Collect walks the directory tree and collects metadata for all files.
func (c *Collector) Collect(rootDir string) ([]FileInfo, error) {
	var files []FileInfo

	err := afero.Walk(c.fs, rootDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != rootDir && c.skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if c.skipFiles[info.Name()] {
			return nil
		}

		files = append(files, fileInfo(filepath.Dir(path), info))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// CollectFromDir collects files only from a specific directory (non-recursive).
// A directory that does not exist yields no files.
func (c *Collector) CollectFromDir(dir string) ([]FileInfo, error) {
	infos, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	files := make([]FileInfo, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || c.skipFiles[info.Name()] {
			continue
		}

		files = append(files, fileInfo(dir, info))
	}

	return files, nil
}

// NamesWithPrefix returns the names of entries directly inside dir, files
// and directories alike, that begin with prefix.
func (c *Collector) NamesWithPrefix(dir, prefix string) ([]string, error) {
	infos, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, info := range infos {
		name := info.Name()
		if c.skipFiles[name] || (info.IsDir() && c.skipDirs[name]) {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}

	return names, nil
}

func fileInfo(dir string, info fs.FileInfo) FileInfo {
	return FileInfo{
		Path:    filepath.Join(dir, info.Name()),
		Dir:     dir,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}
