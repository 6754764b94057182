package clientproxy

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shipproxy/shipproxy/internal/job"
	"github.com/shipproxy/shipproxy/internal/shiperrors"
)

type fakeEnqueuer struct {
	httpJobs    chan *job.HTTPJob
	connectJobs chan *job.ConnectJob
	fail        bool
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{
		httpJobs:    make(chan *job.HTTPJob, 1),
		connectJobs: make(chan *job.ConnectJob, 1),
	}
}

func (f *fakeEnqueuer) Enqueue(j job.Job) error {
	if f.fail {
		return shiperrors.NewQueueFull()
	}
	switch v := j.(type) {
	case *job.HTTPJob:
		f.httpJobs <- v
	case *job.ConnectJob:
		f.connectJobs <- v
	}
	return nil
}

func TestHandleHTTPWritesBackResponse(t *testing.T) {
	q := newFakeEnqueuer()
	front := NewFront(q)
	srv := httptest.NewServer(front)
	defer srv.Close()

	go func() {
		j := <-q.httpJobs
		j.ResponseWriter.Header().Set("Content-Type", "text/plain")
		j.ResponseWriter.WriteHeader(200)
		j.ResponseWriter.Write([]byte("ok"))
		j.Completion.Finish(nil)
	}()

	resp, err := http.Get(srv.URL + "/hello")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if string(body) != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func TestHandleHTTPReturns503WhenQueueFull(t *testing.T) {
	q := newFakeEnqueuer()
	q.fail = true
	front := NewFront(q)
	srv := httptest.NewServer(front)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/hello")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHandleHTTPReturns502AfterJobFailureBeforeHeaders(t *testing.T) {
	q := newFakeEnqueuer()
	front := NewFront(q)
	srv := httptest.NewServer(front)
	defer srv.Close()

	go func() {
		j := <-q.httpJobs
		j.Completion.Finish(shiperrors.NewUpstreamError(nil))
	}()

	resp, err := http.Get(srv.URL + "/hello")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestHandleConnectHijacksAndWaitsForCompletion(t *testing.T) {
	q := newFakeEnqueuer()
	front := NewFront(q)
	srv := httptest.NewServer(front)
	defer srv.Close()

	go func() {
		j := <-q.connectJobs
		if j.HostPort == "" {
			t.Errorf("expected non-empty HostPort")
		}
		io.WriteString(j.BrowserConn, "HTTP/1.1 200 Connection Established\r\n\r\n")
		j.Completion.Finish(nil)
	}()

	addr := srv.Listener.Addr().String()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(conn, "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n"); err != nil {
		t.Fatalf("write CONNECT failed: %v", err)
	}

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line failed: %v", err)
	}
	if line != "HTTP/1.1 200 Connection Established\r\n" {
		t.Fatalf("unexpected status line: %q", line)
	}
}
