// Package usecase provides application-level orchestration for CLI workflows.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"

	"storagecompat/pkg/collector"
	"storagecompat/pkg/diskspace"
	"storagecompat/pkg/filelock"
	"storagecompat/pkg/journal"
	"storagecompat/pkg/metadata"
	"storagecompat/pkg/mover"
	"storagecompat/pkg/progress"
	"storagecompat/pkg/resolver"
	"storagecompat/pkg/view"
	"storagecompat/pkg/view/mediastore"
)

// Options configures a Service.
type Options struct {
	Backend     view.Backend
	BackendName string
	// State holds journals and lock files. Mutating workflows need it.
	State *metadata.Dir
	// SourceFs is where copy and move read from. Defaults to the OS.
	SourceFs    afero.Fs
	ReuseEmpty  bool
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// ProgressCallback receives workflow stage progress updates.
// Stage names are command-specific and intended for user-facing progress output.
type ProgressCallback func(stage string, processed, total int)

// Service orchestrates command workflows without Cobra dependencies.
type Service struct {
	backend     view.Backend
	backendName string
	state       *metadata.Dir
	sourceFs    afero.Fs
	reuseEmpty  bool
	lockTimeout time.Duration
	logger      *slog.Logger
}

// New creates a use-case service.
func New(opts Options) *Service {
	s := &Service{
		backend:     opts.Backend,
		backendName: opts.BackendName,
		state:       opts.State,
		sourceFs:    opts.SourceFs,
		reuseEmpty:  opts.ReuseEmpty,
		lockTimeout: opts.LockTimeout,
		logger:      opts.Logger,
	}
	if s.sourceFs == nil {
		s.sourceFs = afero.NewOsFs()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	return s
}

// skipFiles are desktop metadata files never worth transferring.
var skipFiles = []string{".DS_Store", "Thumbs.db", "desktop.ini"}

// ErrNoState is returned by mutating workflows when no state directory was
// configured.
var ErrNoState = errors.New("state directory not configured")

// ResolveRequest contains inputs for the resolve workflow.
type ResolveRequest struct {
	Scope    resolver.Scope
	Name     string
	MimeType string // fills in a missing extension
}

// ResolveExecution contains resolve workflow outputs.
type ResolveExecution struct {
	Scope     resolver.Scope
	Candidate resolver.Candidate
	Resolved  resolver.Resolved
}

// CreateRequest contains inputs for the create workflow.
type CreateRequest struct {
	Scope    resolver.Scope
	Name     string
	MimeType string
	DryRun   bool
}

// CreateExecution contains create workflow outputs.
type CreateExecution struct {
	ResolveExecution
	Location    string // empty on dry runs
	Created     bool
	DryRun      bool
	RunID       string
	JournalPath string
}

// TransferRequest contains inputs for the copy and move workflows.
type TransferRequest struct {
	Sources    []string
	Scope      resolver.Scope
	MimeType   string
	Move       bool
	DryRun     bool
	// Recursive descends into directory sources. Otherwise a directory
	// contributes only the files directly inside it.
	Recursive  bool
	Callback   mover.Callback
	OnProgress ProgressCallback
}

// TransferOperation is the outcome for one source.
type TransferOperation struct {
	Source         string
	Name           string
	Location       string
	Bytes          int64
	ReusedExisting bool
	Error          error
}

// TransferResult aggregates a transfer batch.
type TransferResult struct {
	Operations       []TransferOperation
	TotalFiles       int
	TransferredCount int
	ErrorCount       int
	Bytes            int64
}

// TransferExecution contains copy and move workflow outputs.
type TransferExecution struct {
	Scope       resolver.Scope
	Move        bool
	DryRun      bool
	Duration    time.Duration
	Result      TransferResult
	RunID       string
	JournalPath string
}

// HistoryRequest contains inputs for the history workflow.
type HistoryRequest struct {
	Limit int // 0 means all
}

// HistoryExecution contains history workflow outputs.
type HistoryExecution struct {
	// Entries are confirmed journal entries, newest first.
	Entries []journal.Entry
	// Incomplete lists journals holding an unconfirmed intent.
	Incomplete []string
	// Unreadable maps journal paths to read errors.
	Unreadable map[string]error
}

// StorageRoot names a directory whose volume is reported by RunStorageInfo.
type StorageRoot struct {
	Name string
	Path string
}

// StorageInfo is the usage of one storage root.
type StorageInfo struct {
	StorageRoot
	Usage diskspace.Usage
	Error error
}

// RunResolve resolves a name without writing anything.
func (s *Service) RunResolve(ctx context.Context, req ResolveRequest) (ResolveExecution, error) {
	if s.backend == nil {
		return ResolveExecution{}, errors.New("no backend configured")
	}

	c, err := candidate(req.Name, req.MimeType)
	if err != nil {
		return ResolveExecution{}, err
	}

	res, err := s.resolver().Resolve(ctx, req.Scope, c)
	if err != nil {
		return ResolveExecution{}, err
	}

	return ResolveExecution{Scope: req.Scope, Candidate: c, Resolved: res}, nil
}

// RunCreate resolves and creates an entry while holding the scope lock, so
// two creators in the same scope never pick the same name.
func (s *Service) RunCreate(ctx context.Context, req CreateRequest) (CreateExecution, error) {
	if req.DryRun {
		resolved, err := s.RunResolve(ctx, ResolveRequest{Scope: req.Scope, Name: req.Name, MimeType: req.MimeType})
		return CreateExecution{ResolveExecution: resolved, DryRun: true}, err
	}

	if s.state == nil {
		return CreateExecution{}, ErrNoState
	}

	lock, err := s.lockScope(ctx, req.Scope)
	if err != nil {
		return CreateExecution{}, err
	}
	defer s.unlock(lock)

	resolved, err := s.RunResolve(ctx, ResolveRequest{Scope: req.Scope, Name: req.Name, MimeType: req.MimeType})
	if err != nil {
		return CreateExecution{}, err
	}

	exec := CreateExecution{ResolveExecution: resolved, RunID: s.state.RunID("create")}
	exec.JournalPath = s.state.JournalPath(exec.RunID)

	writer, err := journal.NewWriter(s.state.Fs(), exec.JournalPath)
	if err != nil {
		return exec, err
	}
	defer writer.Close()

	entry := journal.Entry{
		RunID:     exec.RunID,
		Type:      journal.TypeCreate,
		Backend:   s.backendName,
		Scope:     string(req.Scope),
		Candidate: resolved.Candidate.String(),
		Name:      resolved.Resolved.Name,
	}

	if resolved.Resolved.ReusedExisting {
		exec.Location, err = s.backend.Locate(ctx, req.Scope, resolved.Resolved.Name)
		if err != nil {
			return exec, err
		}
		entry.Type = journal.TypeReuse
		entry.Location = exec.Location
		entry.Success = true
		return exec, writer.Log(entry)
	}

	exec.Location, err = writer.Run(entry, func() (string, error) {
		return s.backend.Create(ctx, req.Scope, resolved.Resolved.Name, req.MimeType)
	})
	if err != nil {
		return exec, err
	}
	exec.Created = true

	s.logger.Info("created", "scope", req.Scope, "name", resolved.Resolved.Name, "location", exec.Location)

	return exec, nil
}

// RunTransfer copies or moves every source into the scope. Failures are
// recorded per operation; cancellation stops the batch.
func (s *Service) RunTransfer(ctx context.Context, req TransferRequest) (TransferExecution, error) {
	exec := TransferExecution{Scope: req.Scope, Move: req.Move, DryRun: req.DryRun}
	started := time.Now()

	m := mover.New(s.sourceFs, s.backend, mover.Options{ReuseEmpty: s.reuseEmpty, Logger: s.logger})

	var writer *journal.Writer
	if !req.DryRun {
		if s.state == nil {
			return exec, ErrNoState
		}

		lock, err := s.lockScope(ctx, req.Scope)
		if err != nil {
			return exec, err
		}
		defer s.unlock(lock)

		command := "copy"
		if req.Move {
			command = "move"
		}
		exec.RunID = s.state.RunID(command)
		exec.JournalPath = s.state.JournalPath(exec.RunID)

		writer, err = journal.NewWriter(s.state.Fs(), exec.JournalPath)
		if err != nil {
			return exec, err
		}
		defer writer.Close()
	}

	sources, err := s.expandSources(req.Sources, req.Recursive)
	if err != nil {
		return exec, err
	}

	result := TransferResult{
		TotalFiles: len(sources),
		Operations: make([]TransferOperation, 0, len(sources)),
	}

	for i, source := range sources {
		progress.EmitStage(req.OnProgress, "transferring", i, len(sources))

		op := s.transferOne(ctx, m, writer, exec.RunID, req, source)
		result.Operations = append(result.Operations, op)
		if op.Error != nil {
			result.ErrorCount++
			if errors.Is(op.Error, mover.ErrCanceled) || ctx.Err() != nil {
				break
			}
			continue
		}
		result.TransferredCount++
		result.Bytes += op.Bytes
	}
	progress.EmitStage(req.OnProgress, "transferring", len(result.Operations), len(sources))

	exec.Result = result
	exec.Duration = time.Since(started)

	if ctx.Err() != nil {
		return exec, fmt.Errorf("%w: %w", mover.ErrCanceled, ctx.Err())
	}

	return exec, nil
}

// expandSources replaces directory sources with the files inside them,
// ordered by path. Anything else, missing paths included, is passed through
// for the mover to judge.
func (s *Service) expandSources(sources []string, recursive bool) ([]string, error) {
	c := collector.New(s.sourceFs, collector.Options{
		SkipFiles: skipFiles,
		SkipDirs:  []string{metadata.DirName},
	})

	expanded := make([]string, 0, len(sources))
	for _, source := range sources {
		info, err := s.sourceFs.Stat(source)
		if err != nil || !info.IsDir() {
			expanded = append(expanded, source)
			continue
		}

		var files []collector.FileInfo
		if recursive {
			files, err = c.Collect(source)
		} else {
			files, err = c.CollectFromDir(source)
		}
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", source, err)
		}

		paths := make([]string, 0, len(files))
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		slices.Sort(paths)
		expanded = append(expanded, paths...)
	}

	return expanded, nil
}

func (s *Service) transferOne(ctx context.Context, m *mover.Mover, writer *journal.Writer, runID string, req TransferRequest, source string) TransferOperation {
	op := TransferOperation{Source: source}

	plan, err := m.Prepare(ctx, mover.Request{
		Source:   source,
		Scope:    req.Scope,
		MimeType: req.MimeType,
		Move:     req.Move,
		Callback: req.Callback,
	})
	if err != nil {
		op.Error = err
		return op
	}
	op.Name = plan.Resolved.Name
	op.ReusedExisting = plan.Resolved.ReusedExisting
	op.Bytes = plan.Size

	if req.DryRun {
		return op
	}

	entryType := journal.TypeCopy
	if req.Move {
		entryType = journal.TypeMove
	}

	op.Location, op.Error = writer.Run(journal.Entry{
		RunID:     runID,
		Type:      entryType,
		Backend:   s.backendName,
		Scope:     string(req.Scope),
		Candidate: plan.Candidate.String(),
		Name:      plan.Resolved.Name,
		Source:    source,
	}, func() (string, error) {
		res, err := m.Execute(ctx, plan)
		op.Bytes = res.Bytes
		return res.Location, err
	})

	return op
}

// RunHistory reads every journal back.
func (s *Service) RunHistory(req HistoryRequest) (HistoryExecution, error) {
	if s.state == nil {
		return HistoryExecution{}, ErrNoState
	}

	paths, err := s.state.Journals()
	if err != nil {
		return HistoryExecution{}, fmt.Errorf("list journals: %w", err)
	}

	exec := HistoryExecution{Unreadable: make(map[string]error)}
	for i := len(paths) - 1; i >= 0; i-- {
		reader := journal.NewReader(s.state.Fs(), paths[i])

		entries, err := reader.Confirmed()
		if err != nil {
			exec.Unreadable[paths[i]] = err
			continue
		}
		if errors.Is(reader.Validate(), journal.ErrPartialWrite) {
			exec.Incomplete = append(exec.Incomplete, paths[i])
		}

		exec.Entries = append(exec.Entries, entries...)
		if req.Limit > 0 && len(exec.Entries) >= req.Limit {
			exec.Entries = exec.Entries[:req.Limit]
			break
		}
	}

	return exec, nil
}

// RunStorageInfo reports capacity and free space for each root.
func (s *Service) RunStorageInfo(roots []StorageRoot) []StorageInfo {
	infos := make([]StorageInfo, 0, len(roots))
	for _, root := range roots {
		usage, err := diskspace.Of(root.Path)
		infos = append(infos, StorageInfo{StorageRoot: root, Usage: usage, Error: err})
	}

	return infos
}

func (s *Service) resolver() *resolver.Resolver {
	return resolver.New(s.backend, resolver.Options{ReuseEmpty: s.reuseEmpty, Logger: s.logger})
}

// lockScope takes the advisory lock for scope, waiting up to the lock
// timeout. Platforms without advisory locks proceed unlocked.
func (s *Service) lockScope(ctx context.Context, scope resolver.Scope) (*filelock.Lock, error) {
	key, err := s.backend.CanonicalScope(scope)
	if err != nil {
		return nil, err
	}

	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	lock, err := filelock.AcquireContext(ctx, s.state.LockPath(s.backendName, key), 0)
	if errors.Is(err, filelock.ErrUnsupported) {
		s.logger.Warn("advisory locking unavailable, proceeding without scope lock", "scope", scope)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock scope %q: %w", scope, err)
	}

	return lock, nil
}

func (s *Service) unlock(lock *filelock.Lock) {
	path := lock.Path()
	if err := lock.Close(); err != nil {
		s.logger.Warn("failed to release scope lock", "path", path, "error", err)
	}
}

// candidate parses name, taking the extension from mimeType when name has
// none.
func candidate(name, mimeType string) (resolver.Candidate, error) {
	c, err := resolver.ParseCandidate(name)
	if err != nil {
		return resolver.Candidate{}, err
	}

	if c.Extension == "" && mimeType != "" {
		if ext := mediastore.ExtensionFromMime(mimeType); ext != "" {
			return resolver.NewCandidate(strings.TrimSuffix(c.BaseName, "."), ext)
		}
	}

	return c, nil
}
