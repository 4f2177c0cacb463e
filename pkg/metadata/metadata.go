// Package metadata manages the state directory holding per-run journals and
// per-scope lock files.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DirName is the default state directory name under the user's home.
const DirName = ".storagecompat"

const (
	journalDir = "journal"
	locksDir   = "locks"
)

// Dir provides access to the state directory structure.
type Dir struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// Init creates the state directory and its subdirectories under root.
func Init(fsys afero.Fs, root string) (*Dir, error) {
	if root == "" {
		return nil, errors.New("empty state directory")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve state directory: %w", err)
	}

	for _, sub := range []string{journalDir, locksDir} {
		if err := fsys.MkdirAll(filepath.Join(abs, sub), 0o700); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	return &Dir{fs: fsys, root: abs, now: time.Now}, nil
}

// Root returns the absolute path to the state directory.
func (d *Dir) Root() string {
	return d.root
}

// Fs returns the filesystem the state directory lives on.
func (d *Dir) Fs() afero.Fs {
	return d.fs
}

// JournalPath returns the journal file path for a given run ID.
func (d *Dir) JournalPath(runID string) string {
	return filepath.Join(d.root, journalDir, runID+".jsonl")
}

// Journals returns every journal path, oldest run first.
func (d *Dir) Journals() ([]string, error) {
	infos, err := afero.ReadDir(d.fs, filepath.Join(d.root, journalDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".jsonl") {
			continue
		}
		paths = append(paths, filepath.Join(d.root, journalDir, info.Name()))
	}

	sort.Slice(paths, func(i, j int) bool {
		return runTime(paths[i]) < runTime(paths[j])
	})

	return paths, nil
}

// LockPath returns the lock file guarding scope on backend. Distinct scopes
// get distinct files, so unrelated scopes never wait on each other.
func (d *Dir) LockPath(backend, scope string) string {
	sum := sha256.Sum256([]byte(backend + "\x00" + scope))
	return filepath.Join(d.root, locksDir, backend+"-"+hex.EncodeToString(sum[:8])+".lock")
}

// RunID generates a timestamped run ID for the given command.
// Format: <command>-<YYYYMMDDTHHmmss>.
func (d *Dir) RunID(command string) string {
	return command + "-" + d.now().UTC().Format(runTimeLayout)
}

const runTimeLayout = "20060102T150405"

// runTime returns the timestamp part of a journal file name, which sorts
// chronologically as a string.
func runTime(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	if i := strings.LastIndexByte(name, '-'); i >= 0 {
		return name[i+1:] + name[:i]
	}

	return name
}
