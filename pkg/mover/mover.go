// Package mover copies or moves a local file into a storage backend under a
// collision-free name, with free-space checks, cancellation and progress
// reports.
package mover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"storagecompat/pkg/progress"
	"storagecompat/pkg/resolver"
	"storagecompat/pkg/view"
)

var (
	// ErrSourceNotFound indicates the source file does not exist.
	ErrSourceNotFound = errors.New("source file not found")
	// ErrSourceIsDir indicates the source is a directory.
	ErrSourceIsDir = errors.New("source is a directory")
	// ErrNotEnoughSpace indicates the callback rejected the free space.
	ErrNotEnoughSpace = errors.New("not enough space in target storage")
	// ErrCanceled indicates the callback or the context stopped the transfer.
	ErrCanceled = errors.New("transfer canceled")
	// ErrTargetExists indicates the resolver handed back an existing entry
	// that already has content.
	ErrTargetExists = errors.New("target entry exists and is not empty")
)

// Callback observes and steers a transfer.
type Callback interface {
	// CheckFreeSpace decides whether size bytes fit into free bytes. free is
	// view.UnknownFreeSpace when the backend cannot tell.
	CheckFreeSpace(free, size int64) bool
	// StartMoving is called right before bytes flow. A negative interval
	// cancels, zero disables Report calls.
	StartMoving(target string) time.Duration
	Report(progress.Snapshot)
	Completed(target string)
}

// NopCallback accepts unknown or sufficient space and reports nothing.
type NopCallback struct{}

func (NopCallback) CheckFreeSpace(free, size int64) bool {
	return free == view.UnknownFreeSpace || free >= size
}

func (NopCallback) StartMoving(string) time.Duration { return 0 }
func (NopCallback) Report(progress.Snapshot)         {}
func (NopCallback) Completed(string)                 {}

// Options configures a Mover.
type Options struct {
	// ReuseEmpty lets a transfer fill an existing empty entry of the same
	// name instead of creating a numbered one.
	ReuseEmpty bool
	Logger     *slog.Logger
}

// Mover transfers files from a source filesystem into a backend.
type Mover struct {
	src      afero.Fs
	dst      view.Backend
	resolver *resolver.Resolver
	logger   *slog.Logger
}

// New creates a Mover reading from src and writing to dst.
func New(src afero.Fs, dst view.Backend, opts Options) *Mover {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Mover{
		src:      src,
		dst:      dst,
		resolver: resolver.New(dst, resolver.Options{ReuseEmpty: opts.ReuseEmpty, Logger: logger}),
		logger:   logger,
	}
}

// Request describes one transfer.
type Request struct {
	Source   string
	Scope    resolver.Scope
	Name     string // defaults to the source's base name
	MimeType string
	Move     bool
	Callback Callback // defaults to NopCallback
}

// Plan is a resolved transfer that has passed the space check.
type Plan struct {
	Request   Request
	Candidate resolver.Candidate
	Resolved  resolver.Resolved
	Size      int64
}

// Result describes a finished transfer.
type Result struct {
	Plan
	Location string
	Bytes    int64
	Duration time.Duration
}

// Prepare checks the source, resolves the target name and checks free
// space. Nothing is written.
func (m *Mover) Prepare(ctx context.Context, req Request) (Plan, error) {
	if req.Callback == nil {
		req.Callback = NopCallback{}
	}

	info, err := m.src.Stat(req.Source)
	if errors.Is(err, fs.ErrNotExist) {
		return Plan{}, fmt.Errorf("%w: %s", ErrSourceNotFound, req.Source)
	}
	if err != nil {
		return Plan{}, fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		return Plan{}, fmt.Errorf("%w: %s", ErrSourceIsDir, req.Source)
	}

	name := req.Name
	if name == "" {
		name = filepath.Base(req.Source)
	}
	c, err := resolver.ParseCandidate(name)
	if err != nil {
		return Plan{}, err
	}

	res, err := m.resolver.Resolve(ctx, req.Scope, c)
	if err != nil {
		return Plan{}, err
	}
	if res.ReusedExisting {
		empty, err := m.dst.IsEmpty(ctx, req.Scope, res.Name)
		if err != nil {
			return Plan{}, err
		}
		if !empty {
			return Plan{}, fmt.Errorf("%w: %s", ErrTargetExists, res.Name)
		}
	}

	free, err := m.dst.FreeSpace(ctx, req.Scope)
	if err != nil {
		return Plan{}, fmt.Errorf("query free space: %w", err)
	}
	if !req.Callback.CheckFreeSpace(free, info.Size()) {
		return Plan{}, fmt.Errorf("%w: need %d bytes, %d free", ErrNotEnoughSpace, info.Size(), free)
	}

	return Plan{Request: req, Candidate: c, Resolved: res, Size: info.Size()}, nil
}

// Execute performs a prepared transfer. A newly created target is removed
// again when copying fails.
func (m *Mover) Execute(ctx context.Context, plan Plan) (Result, error) {
	req := plan.Request
	cb := req.Callback
	if cb == nil {
		cb = NopCallback{}
	}

	interval := cb.StartMoving(plan.Resolved.Name)
	if interval < 0 {
		return Result{}, ErrCanceled
	}

	started := time.Now()

	var (
		location string
		err      error
	)
	if plan.Resolved.ReusedExisting {
		location, err = m.dst.Locate(ctx, req.Scope, plan.Resolved.Name)
	} else {
		location, err = m.dst.Create(ctx, req.Scope, plan.Resolved.Name, req.MimeType)
	}
	if err != nil {
		return Result{}, err
	}

	written, err := m.copy(ctx, plan, interval, cb)
	if err != nil {
		if !plan.Resolved.ReusedExisting {
			if rmErr := m.dst.Remove(context.WithoutCancel(ctx), req.Scope, plan.Resolved.Name); rmErr != nil {
				m.logger.Warn("failed to remove partial target", "name", plan.Resolved.Name, "error", rmErr)
			}
		}
		return Result{}, err
	}

	result := Result{Plan: plan, Location: location, Bytes: written, Duration: time.Since(started)}

	if req.Move {
		if err := m.src.Remove(req.Source); err != nil {
			return result, fmt.Errorf("remove moved source: %w", err)
		}
	}

	m.logger.Info("transferred",
		"source", req.Source, "target", location, "bytes", written, "move", req.Move)
	cb.Completed(location)

	return result, nil
}

// Transfer runs Prepare and Execute.
func (m *Mover) Transfer(ctx context.Context, req Request) (Result, error) {
	plan, err := m.Prepare(ctx, req)
	if err != nil {
		return Result{}, err
	}

	return m.Execute(ctx, plan)
}

func (m *Mover) copy(ctx context.Context, plan Plan, interval time.Duration, cb Callback) (int64, error) {
	in, err := m.src.Open(plan.Request.Source)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := m.dst.OpenWriter(ctx, plan.Request.Scope, plan.Resolved.Name)
	if err != nil {
		return 0, fmt.Errorf("open target: %w", err)
	}

	tracker := progress.NewTracker(plan.Size)
	stop := tracker.Report(ctx, interval, cb.Report)

	written, copyErr := io.Copy(progress.Writer{W: out, Tracker: tracker}, contextReader{ctx: ctx, r: in})
	stop()
	closeErr := out.Close()

	switch {
	case ctx.Err() != nil:
		return written, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	case copyErr != nil:
		return written, fmt.Errorf("copy: %w", copyErr)
	case closeErr != nil:
		return written, fmt.Errorf("close target: %w", closeErr)
	}

	if interval > 0 {
		cb.Report(tracker.Snapshot())
	}

	return written, nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	return r.r.Read(p)
}
