package linkmetrics

import (
	"strings"
	"testing"
	"time"
)

func TestTimerCapturesPhaseDurations(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	timer.MarkDequeued()

	timer.StartDial()
	time.Sleep(time.Millisecond)
	timer.EndDial()

	timer.StartExec()
	time.Sleep(time.Millisecond)
	timer.EndExec()

	m := timer.GetMetrics()
	if m.QueueWait <= 0 {
		t.Fatalf("expected positive queue wait, got %v", m.QueueWait)
	}
	if m.DialTime <= 0 {
		t.Fatalf("expected positive dial time, got %v", m.DialTime)
	}
	if m.Exec <= 0 {
		t.Fatalf("expected positive exec time, got %v", m.Exec)
	}
	if m.Total <= 0 {
		t.Fatalf("expected positive total time, got %v", m.Total)
	}
}

func TestTimerSkipsUnmarkedPhases(t *testing.T) {
	timer := NewTimer()
	m := timer.GetMetrics()
	if m.QueueWait != 0 || m.DialTime != 0 || m.Exec != 0 {
		t.Fatalf("expected zero durations for unmarked phases, got %+v", m)
	}
}

func TestMetricsStringIsOneLine(t *testing.T) {
	m := Metrics{QueueWait: time.Millisecond, DialTime: 2 * time.Millisecond}
	s := m.String()
	if strings.Contains(s, "\n") {
		t.Fatalf("expected a single-line summary, got %q", s)
	}
	if !strings.Contains(s, "queue_wait=") || !strings.Contains(s, "dial=") {
		t.Fatalf("expected labeled fields in %q", s)
	}
}
