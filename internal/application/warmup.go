// Package application hosts the request orchestrator: the warm-up gate,
// the fan-out of analysis modules per request, and the advisor flow that
// runs the rule population over a fresh report.
package application

import (
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

// WarmupEvent is the one-shot signal that gates serving. Set is idempotent;
// failures recorded before the event fires stay readable for health output
// and are replaced wholesale on the next preload attempt.
type WarmupEvent struct {
	mu       sync.Mutex
	ch       chan struct{}
	set      bool
	failures []string
}

// NewWarmupEvent returns an unset event.
func NewWarmupEvent() *WarmupEvent {
	return &WarmupEvent{ch: make(chan struct{})}
}

// Set fires the event. Later calls are no-ops.
func (e *WarmupEvent) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		return
	}
	e.set = true
	e.failures = nil
	close(e.ch)
}

// IsSet reports whether warm-up completed.
func (e *WarmupEvent) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Done returns a channel closed once the event fires.
func (e *WarmupEvent) Done() <-chan struct{} {
	return e.ch
}

// RecordFailures replaces the failure list from the latest preload attempt.
func (e *WarmupEvent) RecordFailures(msgs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		return
	}
	e.failures = append([]string(nil), msgs...)
}

// Failures returns the failure list of the latest unsuccessful preload.
func (e *WarmupEvent) Failures() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.failures...)
}

// NewCPUGate sizes the shared CPU-offload semaphore. Heavy compute acquires
// it so request fan-out cannot saturate the scheduler.
func NewCPUGate() *semaphore.Weighted {
	n := runtime.GOMAXPROCS(0)
	if n < 2 {
		n = 2
	}
	return semaphore.NewWeighted(int64(n))
}
