package e2e

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

var builtBinaryPath string

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

func (r cmdResult) combinedOutput() string {
	return r.stdout + r.stderr
}

func resolveRepoRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve repo root")
	}

	root := filepath.Dir(filepath.Dir(filename))
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repo root: %w", err)
	}

	return absRoot, nil
}

func TestMain(m *testing.M) {
	repoRoot, err := resolveRepoRoot()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize e2e tests: %v\n", err)
		os.Exit(1)
	}

	binDir, err := os.MkdirTemp("", "storagecompat-e2e-bin-*")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to create temp directory for binary: %v\n", err)
		os.Exit(1)
	}

	binPath := filepath.Join(binDir, "storagecompat")
	if runtime.GOOS == "windows" {
		binPath += ".exe"
	}

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd")
	cmd.Dir = repoRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to build storagecompat: %v\n%s\n", err, string(output))
		_ = os.RemoveAll(binDir)
		os.Exit(1)
	}

	builtBinaryPath = binPath

	exitCode := m.Run()
	_ = os.RemoveAll(binDir)
	os.Exit(exitCode)
}

func binaryPath(t *testing.T) string {
	t.Helper()

	if builtBinaryPath == "" {
		t.Fatal("binary path not initialized")
	}

	return builtBinaryPath
}

func runBinary(t *testing.T, binPath string, args ...string) cmdResult {
	t.Helper()

	timeout := 30 * time.Second
	if deadline, ok := t.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Env = append(os.Environ(), "HOME="+t.TempDir())
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		if stderr.Len() > 0 && !strings.HasSuffix(stderr.String(), "\n") {
			stderr.WriteString("\n")
		}
		stderr.WriteString("command timed out after " + timeout.String())
	}

	return cmdResult{
		stdout: stdout.String(),
		stderr: stderr.String(),
		err:    err,
	}
}

func writeFile(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("failed to set file times: %v", err)
	}
}

func assertExists(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected path to exist: %s (error: %v)", path, err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); err == nil {
		t.Fatalf("expected file to be missing: %s", path)
	} else if !os.IsNotExist(err) {
		t.Fatalf("expected path to be missing: %s (unexpected error: %v)", path, err)
	}
}

func assertCommandFailed(t *testing.T, result cmdResult, keywords ...string) {
	t.Helper()

	if result.err == nil {
		t.Fatalf("expected command to fail\nstdout:\n%s\nstderr:\n%s", result.stdout, result.stderr)
	}

	combined := strings.ToLower(result.combinedOutput())
	for _, keyword := range keywords {
		if !strings.Contains(combined, strings.ToLower(keyword)) {
			t.Fatalf("expected output to contain %q\n%s", keyword, result.combinedOutput())
		}
	}
}

func fileCount(t *testing.T, root string) int {
	t.Helper()

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("failed to read directory %s: %v", root, err)
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			count++
		}
	}

	return count
}

type workspace struct {
	root  string
	state string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()

	base := t.TempDir()
	ws := workspace{root: filepath.Join(base, "storage"), state: filepath.Join(base, "state")}
	if err := os.MkdirAll(ws.root, 0o755); err != nil {
		t.Fatalf("failed to create root: %v", err)
	}

	return ws
}

func (ws workspace) run(t *testing.T, args ...string) cmdResult {
	t.Helper()

	full := append([]string{"--root", ws.root, "--state-dir", ws.state}, args...)
	return runBinary(t, binaryPath(t), full...)
}

func requireSuccess(t *testing.T, result cmdResult) {
	t.Helper()

	if result.err != nil {
		t.Fatalf("command failed: %v\nstdout:\n%s\nstderr:\n%s", result.err, result.stdout, result.stderr)
	}
}

func TestEndToEndResolve_DoesNotWrite(t *testing.T) {
	ws := newWorkspace(t)
	modTime := time.Date(2020, 2, 3, 4, 5, 6, 0, time.UTC)
	writeFile(t, filepath.Join(ws.root, "Pictures", "photo.jpg"), "a", modTime)
	writeFile(t, filepath.Join(ws.root, "Pictures", "photo (9).jpg"), "b", modTime)
	writeFile(t, filepath.Join(ws.root, "Pictures", "photo (10).jpg"), "c", modTime)

	result := ws.run(t, "resolve", "Pictures", "photo.jpg")
	requireSuccess(t, result)

	// "(9)" sorts after "(10)", so the next name lands on the existing (10).
	if !strings.Contains(result.stdout, "REUSE photo (10).jpg") {
		t.Fatalf("expected photo (10).jpg to be handed back\n%s", result.stdout)
	}
	if got := fileCount(t, filepath.Join(ws.root, "Pictures")); got != 3 {
		t.Fatalf("resolve wrote files: %d entries", got)
	}
	assertMissing(t, ws.state)
}

func TestEndToEndCreate_ConcurrentProcessesGetDistinctNames(t *testing.T) {
	ws := newWorkspace(t)
	const processes = 6

	results := make([]cmdResult, processes)
	var wg sync.WaitGroup
	for i := range processes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = ws.run(t, "create", "Docs", "note.txt")
		}()
	}
	wg.Wait()

	for _, result := range results {
		requireSuccess(t, result)
	}

	dir := filepath.Join(ws.root, "Docs")
	if got := fileCount(t, dir); got != processes {
		t.Fatalf("expected %d files, got %d", processes, got)
	}
	assertExists(t, filepath.Join(dir, "note.txt"))
	for i := 1; i < processes; i++ {
		assertExists(t, filepath.Join(dir, fmt.Sprintf("note (%d).txt", i)))
	}

	history := ws.run(t, "history", "--limit", "0")
	requireSuccess(t, history)
	if !strings.Contains(history.stdout, fmt.Sprintf("Entries: %d", processes)) {
		t.Fatalf("expected %d history entries\n%s", processes, history.stdout)
	}
}

func TestEndToEndCopyAndMove(t *testing.T) {
	ws := newWorkspace(t)
	src := t.TempDir()
	modTime := time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)
	writeFile(t, filepath.Join(ws.root, "Inbox", "scan.pdf"), "existing", modTime)
	writeFile(t, filepath.Join(src, "scan.pdf"), "first", modTime)
	writeFile(t, filepath.Join(src, "other.pdf"), "second", modTime)

	dry := ws.run(t, "--dry-run", "copy", filepath.Join(src, "scan.pdf"), "Inbox")
	requireSuccess(t, dry)
	if !strings.Contains(dry.stdout, "DRY RUN") {
		t.Fatalf("expected dry-run banner\n%s", dry.stdout)
	}
	assertMissing(t, filepath.Join(ws.root, "Inbox", "scan (1).pdf"))

	copied := ws.run(t, "copy", filepath.Join(src, "scan.pdf"), "Inbox")
	requireSuccess(t, copied)
	assertExists(t, filepath.Join(ws.root, "Inbox", "scan (1).pdf"))
	assertExists(t, filepath.Join(src, "scan.pdf"))

	moved := ws.run(t, "move", "--yes", filepath.Join(src, "scan.pdf"), filepath.Join(src, "other.pdf"), "Inbox")
	requireSuccess(t, moved)
	assertExists(t, filepath.Join(ws.root, "Inbox", "scan (2).pdf"))
	assertExists(t, filepath.Join(ws.root, "Inbox", "other.pdf"))
	assertMissing(t, filepath.Join(src, "scan.pdf"))
	assertMissing(t, filepath.Join(src, "other.pdf"))

	data, err := os.ReadFile(filepath.Join(ws.root, "Inbox", "scan.pdf"))
	if err != nil {
		t.Fatalf("read original: %v", err)
	}
	if string(data) != "existing" {
		t.Fatalf("original entry was overwritten: %q", data)
	}
}

func TestEndToEndMediaStore(t *testing.T) {
	ws := newWorkspace(t)
	dsn := filepath.Join(t.TempDir(), "media.db")
	args := []string{"--backend", "mediastore", "--media-db", dsn, "--media-type", "audio"}

	for _, want := range []string{"song.mp3", "song (1).mp3", "song (2).mp3"} {
		result := ws.run(t, append(args, "create", "Music/Live", "song.mp3")...)
		requireSuccess(t, result)
		if !strings.Contains(result.stdout, "CREATE "+want) {
			t.Fatalf("expected %s\n%s", want, result.stdout)
		}
	}

	assertExists(t, dsn)
}

func TestEndToEndURI_RoundTrip(t *testing.T) {
	ws := newWorkspace(t)

	toURI := ws.run(t, "uri", filepath.Join(ws.root, "Download", "Papers"))
	requireSuccess(t, toURI)

	const tree = "content://com.android.externalstorage.documents/tree/primary%3ADownload%2FPapers"
	if !strings.Contains(toURI.stdout, tree) {
		t.Fatalf("expected %s\n%s", tree, toURI.stdout)
	}

	toPath := ws.run(t, "uri", tree)
	requireSuccess(t, toPath)
	if !strings.Contains(toPath.stdout, filepath.Join(ws.root, "Download", "Papers")) {
		t.Fatalf("expected path in output\n%s", toPath.stdout)
	}
}

func TestEndToEnd_InvalidInputsFail(t *testing.T) {
	ws := newWorkspace(t)

	assertCommandFailed(t, ws.run(t, "--backend", "ftp", "resolve", "Docs", "a.txt"), "unknown backend")
	assertCommandFailed(t, ws.run(t, "resolve", "../outside", "a.txt"), "escapes root")
	assertCommandFailed(t, ws.run(t, "resolve", "Docs"), "accepts 2 arg")
}
