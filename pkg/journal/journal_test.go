package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const journalPath = "/state/journal/run-1.jsonl"

func newWriter(t *testing.T) (*Writer, afero.Fs) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(journalPath), 0o755))

	w, err := NewWriter(fsys, journalPath)
	require.NoError(t, err)

	return w, fsys
}

func TestWriter_Log_WritesEntries(t *testing.T) {
	t.Parallel()

	w, fsys := newWriter(t)
	defer w.Close()

	ts := time.Date(2026, 2, 8, 14, 30, 0, 0, time.UTC)

	require.NoError(t, w.Log(Entry{
		Timestamp: ts,
		Type:      TypeCreate,
		Backend:   "fs",
		Scope:     "Pictures",
		Candidate: "photo.png",
		Name:      "photo (1).png",
	}))
	require.NoError(t, w.Log(Entry{
		Timestamp: ts,
		Type:      TypeCreate,
		Backend:   "fs",
		Scope:     "Pictures",
		Candidate: "photo.png",
		Name:      "photo (1).png",
		Location:  "/sdcard/Pictures/photo (1).png",
		Success:   true,
	}))

	entries, err := NewReader(fsys, journalPath).Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, TypeCreate, entries[0].Type)
	assert.Equal(t, "photo (1).png", entries[0].Name)
	assert.False(t, entries[0].Success)
	assert.True(t, entries[1].Success)
	assert.Equal(t, "/sdcard/Pictures/photo (1).png", entries[1].Location)
	assert.True(t, entries[1].Timestamp.Equal(ts))
}

func TestWriter_Log_SetsTimestampWhenZero(t *testing.T) {
	t.Parallel()

	w, fsys := newWriter(t)
	defer w.Close()

	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	require.NoError(t, w.Log(Entry{Type: TypeReuse, Candidate: "a.txt"}))

	entries, err := NewReader(fsys, journalPath).Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Timestamp.Equal(fixed))
}

func TestWriter_Run(t *testing.T) {
	t.Parallel()

	w, fsys := newWriter(t)
	defer w.Close()

	loc, err := w.Run(Entry{Type: TypeCopy, Candidate: "a.txt", Source: "/tmp/a.txt"}, func() (string, error) {
		return "/sdcard/Download/a.txt", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/sdcard/Download/a.txt", loc)

	r := NewReader(fsys, journalPath)
	entries, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].Location)
	assert.Equal(t, "/sdcard/Download/a.txt", entries[1].Location)
	require.NoError(t, r.Validate())
}

func TestWriter_Run_FailureLeavesIntent(t *testing.T) {
	t.Parallel()

	w, fsys := newWriter(t)
	defer w.Close()

	boom := errors.New("disk full")
	_, err := w.Run(Entry{Type: TypeMove, Candidate: "a.txt"}, func() (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)

	require.ErrorIs(t, NewReader(fsys, journalPath).Validate(), ErrPartialWrite)
}

func TestReader_Entries_EmptyFile(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/empty.jsonl", nil, 0o600))

	entries, err := NewReader(fsys, "/empty.jsonl").Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReader_Entries_NonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := NewReader(afero.NewMemMapFs(), "/missing.jsonl").Entries()
	require.Error(t, err)
}

func TestReader_Confirmed(t *testing.T) {
	t.Parallel()

	w, fsys := newWriter(t)

	require.NoError(t, w.Log(Entry{Type: TypeCreate, Candidate: "first.txt"}))
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Candidate: "first.txt", Success: true}))
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Candidate: "second.txt"}))
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Candidate: "second.txt", Success: true}))
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Candidate: "third.txt"}))
	require.NoError(t, w.Close())

	entries, err := NewReader(fsys, journalPath).Confirmed()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "second.txt", entries[0].Candidate)
	assert.Equal(t, "first.txt", entries[1].Candidate)
}

func TestReader_Validate_RepeatedCandidate(t *testing.T) {
	t.Parallel()

	w, fsys := newWriter(t)

	// The same candidate created twice, only the first confirmed.
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Scope: "Pictures", Candidate: "a.png"}))
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Scope: "Pictures", Candidate: "a.png", Success: true}))
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Scope: "Pictures", Candidate: "a.png"}))
	require.NoError(t, w.Close())

	require.ErrorIs(t, NewReader(fsys, journalPath).Validate(), ErrPartialWrite)
}

func TestReader_Validate_Complete(t *testing.T) {
	t.Parallel()

	w, fsys := newWriter(t)
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Scope: "Pictures", Candidate: "a.png"}))
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Scope: "Music", Candidate: "a.png"}))
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Scope: "Music", Candidate: "a.png", Success: true}))
	require.NoError(t, w.Log(Entry{Type: TypeCreate, Scope: "Pictures", Candidate: "a.png", Success: true}))
	require.NoError(t, w.Close())

	require.NoError(t, NewReader(fsys, journalPath).Validate())
}

func TestReader_Entries_CorruptedLine(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	content := "{\"type\":\"create\",\"candidate\":\"ok.txt\",\"ok\":true}\nnot-json\n"
	require.NoError(t, afero.WriteFile(fsys, "/corrupt.jsonl", []byte(content), 0o600))

	entries, err := NewReader(fsys, "/corrupt.jsonl").Entries()
	require.Error(t, err, "should fail on corrupted line")
	assert.Contains(t, err.Error(), "line 2")
	require.Len(t, entries, 1)
	assert.Equal(t, "ok.txt", entries[0].Candidate)
}

func TestWriter_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	w, fsys := newWriter(t)
	defer w.Close()

	const numWriters = 10
	const entriesPerWriter = 20

	done := make(chan struct{})
	for range numWriters {
		go func() {
			defer func() { done <- struct{}{} }()
			for range entriesPerWriter {
				_ = w.Log(Entry{Type: TypeCreate, Candidate: "file.txt"})
			}
		}()
	}

	for range numWriters {
		<-done
	}

	entries, err := NewReader(fsys, journalPath).Entries()
	require.NoError(t, err)
	assert.Len(t, entries, numWriters*entriesPerWriter)
}
