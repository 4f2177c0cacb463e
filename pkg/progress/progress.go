// Package progress tracks byte transfers and reports them periodically.
package progress

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// Snapshot is the state of a transfer at one instant.
type Snapshot struct {
	Percent        float64 // 0..100
	Bytes          int64
	Total          int64
	BytesPerSecond float64
}

// Percent returns done/total as a clamped percentage. It returns 0 when total
// is non-positive.
func Percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}

	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}

	return float64(done) * 100 / float64(total)
}

// Tracker counts bytes of one transfer. It is safe for concurrent use: the
// copying goroutine calls Add while a reporter calls Snapshot.
type Tracker struct {
	total int64
	done  atomic.Int64
	start time.Time
	now   func() time.Time
}

// NewTracker starts tracking a transfer of total bytes.
func NewTracker(total int64) *Tracker {
	return newTracker(total, time.Now)
}

func newTracker(total int64, now func() time.Time) *Tracker {
	return &Tracker{total: total, start: now(), now: now}
}

// Add records n more bytes.
func (t *Tracker) Add(n int) {
	t.done.Add(int64(n))
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	done := t.done.Load()

	var speed float64
	if elapsed := t.now().Sub(t.start).Seconds(); elapsed > 0 {
		speed = float64(done) / elapsed
	}

	return Snapshot{
		Percent:        Percent(done, t.total),
		Bytes:          done,
		Total:          t.total,
		BytesPerSecond: speed,
	}
}

// Report calls fn with a snapshot every interval until ctx is done. It is a
// no-op when fn is nil or interval is non-positive. The returned function
// stops reporting and waits for the reporter to exit.
func (t *Tracker) Report(ctx context.Context, interval time.Duration, fn func(Snapshot)) (stop func()) {
	if fn == nil || interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(t.Snapshot())
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// Writer counts the bytes written through it.
type Writer struct {
	W       io.Writer
	Tracker *Tracker
}

func (w Writer) Write(p []byte) (int, error) {
	n, err := w.W.Write(p)
	w.Tracker.Add(n)

	return n, err
}

// EmitStage calls cb with a stage label and clamped processed/total values.
// It is a no-op when cb is nil or total is non-positive.
func EmitStage(cb func(stage string, processed, total int), stage string, processed, total int) {
	if cb == nil || total <= 0 {
		return
	}

	processed = max(0, min(processed, total))
	cb(stage, processed, total)
}
