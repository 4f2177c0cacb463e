// Package journal keeps an append-only JSONL log of entries created, reused,
// copied or moved into a storage backend. Each mutation is logged as an
// intent entry before it runs and a confirmation entry after it succeeds, so
// an interrupted run leaves an unconfirmed intent behind.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Entry types.
const (
	TypeCreate = "create"
	TypeReuse  = "reuse"
	TypeCopy   = "copy"
	TypeMove   = "move"
)

// Entry is one journal line.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	RunID     string    `json:"run,omitempty"`
	Type      string    `json:"type"`
	Backend   string    `json:"backend"`
	Scope     string    `json:"scope"`
	Candidate string    `json:"candidate"`      // name asked for
	Name      string    `json:"name,omitempty"` // name the resolver picked
	Source    string    `json:"src,omitempty"`  // copy and move source path
	Location  string    `json:"loc,omitempty"`  // path or URI of the entry
	Success   bool      `json:"ok"`
}

// Writer appends journal entries to a JSONL file. Each Log call writes one
// JSON line and syncs the file.
//
// Writer is safe for concurrent use.
type Writer struct {
	file    afero.File
	encoder *json.Encoder
	mu      sync.Mutex
	now     func() time.Time
}

// NewWriter opens path on fsys for appending, creating it if needed. The
// parent directory must already exist.
func NewWriter(fsys afero.Fs, path string) (*Writer, error) {
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	return &Writer{
		file:    f,
		encoder: json.NewEncoder(f),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Log writes an entry and syncs it to disk. A zero timestamp is set to now.
func (w *Writer) Log(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = w.now()
	}

	if err := w.encoder.Encode(entry); err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}

	return nil
}

// Run logs the intent entry, runs op, and logs the confirmation with the
// location op returns. Nothing is confirmed when op fails.
func (w *Writer) Run(entry Entry, op func() (string, error)) (string, error) {
	entry.Success = false
	if err := w.Log(entry); err != nil {
		return "", err
	}

	location, err := op()
	if err != nil {
		return "", err
	}

	entry.Timestamp = time.Time{}
	entry.Location = location
	entry.Success = true
	if err := w.Log(entry); err != nil {
		return location, err
	}

	return location, nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.file.Close()
}

// Reader reads journal entries from a JSONL file.
type Reader struct {
	fs   afero.Fs
	path string
}

// NewReader creates a journal reader for path on fsys.
func NewReader(fsys afero.Fs, path string) *Reader {
	return &Reader{fs: fsys, path: path}
}

// Entries reads all entries in order. On a corrupt line the entries read so
// far are returned with the error.
func (r *Reader) Entries() ([]Entry, error) {
	f, err := r.fs.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return entries, fmt.Errorf("decode journal line %d: %w", lineNum, err)
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read journal: %w", err)
	}

	return entries, nil
}

// Confirmed returns the successful entries, newest first.
func (r *Reader) Confirmed() ([]Entry, error) {
	entries, err := r.Entries()
	if err != nil {
		return nil, err
	}

	confirmed := make([]Entry, 0, len(entries)/2)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Success {
			confirmed = append(confirmed, entries[i])
		}
	}

	return confirmed, nil
}

// ErrPartialWrite is returned when the journal holds an intent without a
// matching confirmation, meaning a run stopped mid-operation.
var ErrPartialWrite = errors.New("journal contains unconfirmed entries")

// Validate returns ErrPartialWrite if any intent was never confirmed.
func (r *Reader) Validate() error {
	entries, err := r.Entries()
	if err != nil {
		return err
	}

	type opKey struct {
		run, typ, backend, scope, candidate, source string
	}

	pending := make(map[opKey]int)
	for i := range entries {
		e := &entries[i]
		key := opKey{e.RunID, e.Type, e.Backend, e.Scope, e.Candidate, e.Source}
		if e.Success {
			if pending[key]--; pending[key] <= 0 {
				delete(pending, key)
			}
		} else {
			pending[key]++
		}
	}

	if len(pending) > 0 {
		return ErrPartialWrite
	}

	return nil
}
