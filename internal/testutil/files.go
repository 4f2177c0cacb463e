package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func CreateFile(t *testing.T, path, content string) {
	t.Helper()
	createFileBytes(t, afero.NewOsFs(), path, []byte(content), 0o644, false, time.Time{})
}

func CreateFileWithModTime(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	createFileBytes(t, afero.NewOsFs(), path, []byte(content), 0o600, true, modTime)
}

// WriteFile creates path on fsys, including parent directories.
func WriteFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	createFileBytes(t, fsys, path, []byte(content), 0o644, false, time.Time{})
}

// WriteFiles creates every name inside dir on fsys with the given content.
func WriteFiles(t *testing.T, fsys afero.Fs, dir, content string, names ...string) {
	t.Helper()
	for _, name := range names {
		WriteFile(t, fsys, filepath.Join(dir, name), content)
	}
}

// ReadFile returns the content of path on fsys.
func ReadFile(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()

	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)

	return string(data)
}

func createFileBytes(t *testing.T, fsys afero.Fs, path string, content []byte, mode os.FileMode, setModTime bool, modTime time.Time) {
	t.Helper()

	err := fsys.MkdirAll(filepath.Dir(path), 0o755)
	require.NoError(t, err)

	err = afero.WriteFile(fsys, path, content, mode)
	require.NoError(t, err)

	if !setModTime {
		return
	}

	err = fsys.Chtimes(path, modTime, modTime)
	require.NoError(t, err)
}
