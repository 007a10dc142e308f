// Package analysis implements the analysis orchestration core: a
// single-flight job queue over recorded captures, the worker loop
// draining it, and the durable result writer.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/cellsentry/cellsentry/internal/config"
	"github.com/cellsentry/cellsentry/internal/observability"
	"github.com/cellsentry/cellsentry/internal/report"
	"github.com/cellsentry/cellsentry/internal/store"
)

// ErrSignalFailed reports that the worker mailbox is full or closed.
// The enqueue itself succeeded; the caller may retry the signal.
var ErrSignalFailed = errors.New("could not signal the analysis worker")

type ctrlOp int

const (
	opNewFilesQueued ctrlOp = iota
	opRecordingFinished
	opExit
)

type ctrlMessage struct {
	op   ctrlOp
	name string
}

const mailboxSize = 8

// Engine owns the analysis queue. Any number of goroutines may read
// status and enqueue captures; exactly one Run loop drains the queue,
// one capture at a time.
type Engine struct {
	store     *store.Store
	analyzers config.Analyzers
	status    *status
	ctrl      chan ctrlMessage

	uploaders []report.Uploader
	metrics   *observability.Metrics
}

// New creates an engine whose finished list is seeded with the
// captures already present in the store manifest.
func New(st *store.Store, analyzers config.Analyzers) *Engine {
	return &Engine{
		store:     st,
		analyzers: analyzers,
		status:    newStatus(st.EntryNames()),
		ctrl:      make(chan ctrlMessage, mailboxSize),
	}
}

// WithUploaders makes the engine push analysis files that detected
// warnings to every given uploader.
func (e *Engine) WithUploaders(ups ...report.Uploader) *Engine {
	e.uploaders = append(e.uploaders, ups...)
	return e
}

// WithMetrics attaches prometheus instruments.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// Snapshot returns an immutable copy of the queue state.
func (e *Engine) Snapshot() Snapshot {
	return e.status.snapshot()
}

// Queue enqueues one capture unless it is already queued or running,
// signalling the worker when something new was queued. The returned
// snapshot reflects the post-enqueue state either way.
func (e *Engine) Queue(name string) (bool, Snapshot, error) {
	return e.queueNames([]string{name})
}

// QueueAll enqueues every manifest entry except the capture currently
// being recorded, whose log is still growing.
func (e *Engine) QueueAll() (bool, Snapshot, error) {
	names := e.store.EntryNames()
	if current, ok := e.store.CurrentEntryName(); ok {
		eligible := names[:0]
		for _, name := range names {
			if name != current {
				eligible = append(eligible, name)
			}
		}
		names = eligible
	}
	return e.queueNames(names)
}

func (e *Engine) queueNames(names []string) (bool, Snapshot, error) {
	queued := false
	for _, name := range names {
		if e.status.enqueue(name) {
			queued = true
		}
	}
	e.observeQueueLen()

	if !queued {
		return false, e.status.snapshot(), nil
	}
	if err := e.signal(ctrlMessage{op: opNewFilesQueued}); err != nil {
		return true, e.status.snapshot(), err
	}
	return true, e.status.snapshot(), nil
}

// RecordingFinished reports a capture that completed recording
// without being queued for analysis; it goes straight to finished.
func (e *Engine) RecordingFinished(name string) error {
	return e.signal(ctrlMessage{op: opRecordingFinished, name: name})
}

// Exit asks the worker loop to terminate once it has drained the
// messages ahead of the exit.
func (e *Engine) Exit() error {
	return e.signal(ctrlMessage{op: opExit})
}

func (e *Engine) signal(msg ctrlMessage) error {
	select {
	case e.ctrl <- msg:
		return nil
	default:
		return ErrSignalFailed
	}
}

// Run is the worker loop, the only caller of the queue mutators.
// Messages are processed strictly in arrival order. Run returns when
// ctx is cancelled or an exit message arrives; an in-flight analysis
// is never interrupted, so shutdown waits for the current capture.
func (e *Engine) Run(ctx context.Context) error {
	slog.DebugContext(ctx, "analysis worker started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-e.ctrl:
			if !ok || msg.op == opExit {
				return nil
			}
			switch msg.op {
			case opNewFilesQueued:
				e.drain(ctx)
			case opRecordingFinished:
				e.status.finishDirect(msg.name)
			}
		}
	}
}

// drain processes as many captures as were queued when the signal was
// received. Captures enqueued while draining trigger their own signal
// from the enqueuing side, so they are picked up by a later pass.
func (e *Engine) drain(ctx context.Context) {
	count := e.status.queuedLen()
	for range count {
		name := e.status.dequeueToRunning()
		e.observeQueueLen()

		// The analysis itself is not cancellable; a shutdown request
		// waits for the current capture to finish.
		warning, err := Perform(context.WithoutCancel(ctx), e.store, e.analyzers, name)
		outcome := OutcomeOK
		if err != nil {
			outcome = OutcomeFailed
			slog.ErrorContext(ctx, "analysis failed", "capture", name, "error", err)
		}
		e.status.finishRunning(outcome, warning)
		e.observeOutcome(outcome, warning)

		if err == nil && warning && len(e.uploaders) > 0 {
			e.upload(ctx, name)
		}
	}
}

// upload pushes the finished analysis file to every configured
// destination. Failures are logged and never affect queue state.
func (e *Engine) upload(ctx context.Context, name string) {
	raw, err := os.ReadFile(e.store.AnalysisPath(name))
	if err != nil {
		slog.ErrorContext(ctx, "reading analysis file for upload failed", "capture", name, "error", err)
		return
	}
	var errs []error
	for _, u := range e.uploaders {
		errs = append(errs, u.Upload(ctx, raw))
	}
	if err := errors.Join(errs...); err != nil {
		slog.ErrorContext(ctx, "uploading analysis report failed", "capture", name, "error", err)
		return
	}
	slog.InfoContext(ctx, "analysis report uploaded", "capture", name)
}

func (e *Engine) observeQueueLen() {
	if e.metrics != nil {
		e.metrics.QueueLength.Set(float64(e.status.queuedLen()))
	}
}

func (e *Engine) observeOutcome(outcome Outcome, warning bool) {
	if e.metrics == nil {
		return
	}
	e.metrics.AnalysesTotal.WithLabelValues(string(outcome)).Inc()
	if warning {
		e.metrics.WarningsTotal.Inc()
	}
}
