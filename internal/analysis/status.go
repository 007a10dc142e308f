package analysis

import "sync"

// Outcome of one finished capture analysis.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// Reason distinguishes the two paths into the finished list: a
// completed analysis, or a recording that finished without ever being
// queued. A name may legitimately appear once per reason.
type Reason string

const (
	ReasonAnalysis  Reason = "analysis"
	ReasonRecording Reason = "recording"
)

// FinishedEntry is one completed item, in completion order.
type FinishedEntry struct {
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	Warning bool    `json:"warning"`
	Reason  Reason  `json:"reason"`
}

// Snapshot is an immutable copy of the queue state.
type Snapshot struct {
	Queued   []string        `json:"queued"`
	Running  *string         `json:"running"`
	Finished []FinishedEntry `json:"finished"`
}

// status holds the shared queue state. Every critical section is a
// list append or remove; no I/O happens under the lock. The queue
// mutators dequeueToRunning and finishRunning are called only from
// the worker loop.
type status struct {
	mx sync.RWMutex

	queued   []string
	running  string // empty when idle
	finished []FinishedEntry
}

// newStatus seeds the finished list with captures that existed before
// this process started. Nothing queued them, so they are reported as
// finished retroactively.
func newStatus(existing []string) *status {
	finished := make([]FinishedEntry, 0, len(existing))
	for _, name := range existing {
		finished = append(finished, FinishedEntry{
			Name:    name,
			Outcome: OutcomeOK,
			Reason:  ReasonAnalysis,
		})
	}
	return &status{finished: finished}
}

func (s *status) snapshot() Snapshot {
	s.mx.RLock()
	defer s.mx.RUnlock()

	snap := Snapshot{
		Queued:   make([]string, len(s.queued)),
		Finished: make([]FinishedEntry, len(s.finished)),
	}
	copy(snap.Queued, s.queued)
	copy(snap.Finished, s.finished)
	if s.running != "" {
		running := s.running
		snap.Running = &running
	}
	return snap
}

// enqueue appends name unless it is already queued or running.
// Reports whether the name was newly queued.
func (s *status) enqueue(name string) bool {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.running == name {
		return false
	}
	for _, queued := range s.queued {
		if queued == name {
			return false
		}
	}
	s.queued = append(s.queued, name)
	return true
}

func (s *status) queuedLen() int {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return len(s.queued)
}

// dequeueToRunning promotes the queue head to running. A non-empty
// running slot here means two workers are draining the queue, which
// breaks the single-flight guarantee; that is a programming error.
func (s *status) dequeueToRunning() string {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.running != "" {
		panic("analysis: dequeue while a job is running")
	}
	name := s.queued[0]
	s.queued = s.queued[1:]
	s.running = name
	return name
}

// finishRunning clears the running slot and records the completion.
func (s *status) finishRunning(outcome Outcome, warning bool) {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.running == "" {
		panic("analysis: finish with no job running")
	}
	s.finished = append(s.finished, FinishedEntry{
		Name:    s.running,
		Outcome: outcome,
		Warning: warning,
		Reason:  ReasonAnalysis,
	})
	s.running = ""
}

// finishDirect records a capture that completed recording without
// going through the queue.
func (s *status) finishDirect(name string) {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.finished = append(s.finished, FinishedEntry{
		Name:    name,
		Outcome: OutcomeOK,
		Reason:  ReasonRecording,
	})
}
