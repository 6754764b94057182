// Package linkmetrics provides timing measurement for link dials and job
// execution, in the style of go-rawhttp's pkg/timing: a Timer accumulates
// start/stop marks, GetMetrics() snapshots them into a plain struct that is
// cheap to log.
package linkmetrics

import (
	"fmt"
	"time"
)

// Metrics captures how long a job spent waiting and executing.
type Metrics struct {
	QueueWait time.Duration
	DialTime  time.Duration
	Exec      time.Duration
	Total     time.Duration
}

// String renders a one-line human-readable summary for logging.
func (m Metrics) String() string {
	return fmt.Sprintf("queue_wait=%v dial=%v exec=%v total=%v", m.QueueWait, m.DialTime, m.Exec, m.Total)
}

// Timer marks phase boundaries for a single job's lifecycle.
type Timer struct {
	enqueued  time.Time
	dequeued  time.Time
	dialStart time.Time
	dialEnd   time.Time
	execStart time.Time
	execEnd   time.Time
}

// NewTimer starts a timer at the moment a job is enqueued.
func NewTimer() *Timer {
	return &Timer{enqueued: time.Now()}
}

// MarkDequeued records when the worker picked the job off the queue.
func (t *Timer) MarkDequeued() { t.dequeued = time.Now() }

// StartDial / EndDial bracket a link.ensure() call.
func (t *Timer) StartDial() { t.dialStart = time.Now() }
func (t *Timer) EndDial()   { t.dialEnd = time.Now() }

// StartExec / EndExec bracket the actual frame exchange for the job.
func (t *Timer) StartExec() { t.execStart = time.Now() }
func (t *Timer) EndExec()   { t.execEnd = time.Now() }

// GetMetrics snapshots the recorded marks into a Metrics value.
func (t *Timer) GetMetrics() Metrics {
	m := Metrics{}
	if !t.dequeued.IsZero() {
		m.QueueWait = t.dequeued.Sub(t.enqueued)
	}
	if !t.dialStart.IsZero() && !t.dialEnd.IsZero() {
		m.DialTime = t.dialEnd.Sub(t.dialStart)
	}
	if !t.execStart.IsZero() && !t.execEnd.IsZero() {
		m.Exec = t.execEnd.Sub(t.execStart)
	}
	m.Total = time.Since(t.enqueued)
	return m
}
