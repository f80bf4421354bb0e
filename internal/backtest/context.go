package backtest

import (
	"sync"
	"time"

	"github.com/stockrun/stockrun/internal/domain/report"
)

// State is the per-ticker preparation lifecycle.
//
//	IDLE -> PREPARING -> POLLING -> READY
//	                        \----> FAILED
type State string

const (
	StateIdle      State = "IDLE"
	StatePreparing State = "PREPARING"
	StatePolling   State = "POLLING"
	StateReady     State = "READY"
	StateFailed    State = "FAILED"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool { return s == StateReady || s == StateFailed }

// Context tracks one ticker's backtest preparation. Waiters block on
// DataReady, which is closed in both the READY and FAILED arms so nobody
// hangs on a dead job; Err disambiguates afterwards.
type Context struct {
	Ticker string

	mu      sync.Mutex
	state   State
	jobID   string
	points  []int64
	reports map[int64]*report.AnalysisReport
	err     error

	dataReady chan struct{}
	once      sync.Once
}

func newContext(ticker string) *Context {
	return &Context{
		Ticker:    ticker,
		state:     StateIdle,
		dataReady: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// JobID returns the provider job identifier, empty before submission.
func (c *Context) JobID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobID
}

// Points returns the selected evaluation timestamps.
func (c *Context) Points() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.points))
	copy(out, c.points)
	return out
}

// DataReady is closed once the context reaches READY or FAILED.
func (c *Context) DataReady() <-chan struct{} { return c.dataReady }

// Err returns the failure cause, nil unless the context FAILED.
func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// ReportAt returns the loaded historical report for a timestamp.
func (c *Context) ReportAt(ts int64) (*report.AnalysisReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rep, ok := c.reports[ts]
	return rep, ok
}

// ReportCount returns how many historical reports were loaded.
func (c *Context) ReportCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func (c *Context) setJob(id string) {
	c.mu.Lock()
	c.jobID = id
	c.mu.Unlock()
}

func (c *Context) setPoints(points []int64) {
	c.mu.Lock()
	c.points = points
	c.mu.Unlock()
}

// transition moves the context to next and reports the resulting event.
// Terminal states close dataReady exactly once.
func (c *Context) transition(next State) Event {
	c.mu.Lock()
	c.state = next
	ev := Event{Ticker: c.Ticker, State: next, JobID: c.jobID, At: time.Now().UTC()}
	if c.err != nil {
		ev.Error = c.err.Error()
	}
	c.mu.Unlock()

	if next.Terminal() {
		c.once.Do(func() { close(c.dataReady) })
	}
	return ev
}

func (c *Context) complete(reports map[int64]*report.AnalysisReport) Event {
	c.mu.Lock()
	c.reports = reports
	c.mu.Unlock()
	return c.transition(StateReady)
}

func (c *Context) fail(err error) Event {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	return c.transition(StateFailed)
}

// Event is one observable state transition, as pushed to stream subscribers.
type Event struct {
	Ticker string    `json:"ticker"`
	State  State     `json:"state"`
	JobID  string    `json:"job_id,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}
