// Package clientproxy is the browser-facing HTTP/1.1 proxy front-end. Per
// spec §1 this surface is explicitly out of scope ("any HTTP/1.1 server
// library suffices") so it is built directly on net/http's server, the
// stdlib choice the spec itself sanctions; its only job is to turn an
// accepted browser connection into a job.HTTPJob or job.ConnectJob and hand
// it to the queue.
package clientproxy

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/shipproxy/shipproxy/internal/headers"
	"github.com/shipproxy/shipproxy/internal/job"
	"github.com/shipproxy/shipproxy/internal/linkmetrics"
	"github.com/shipproxy/shipproxy/internal/shiperrors"
)

// Enqueuer is the subset of *queue.Queue the front-end needs.
type Enqueuer interface {
	Enqueue(j job.Job) error
}

// Front is the browser-facing HTTP/1.1 listener.
type Front struct {
	Queue Enqueuer
}

// NewFront returns a Front that enqueues jobs onto q.
func NewFront(q Enqueuer) *Front {
	return &Front{Queue: q}
}

// ServeHTTP implements http.Handler. One call = one browser request; the
// handler blocks on the job's completion signal, same as the spec's
// front-end-task-waits-on-completion model.
func (f *Front) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		f.handleConnect(w, r)
		return
	}
	f.handleHTTP(w, r)
}

func (f *Front) handleHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := readBufferedBody(r)
	if err != nil {
		http.Error(w, "Bad Gateway: "+err.Error(), http.StatusBadGateway)
		return
	}

	absoluteURL := r.URL.String()
	if !r.URL.IsAbs() {
		absoluteURL = "http://" + r.Host + r.URL.RequestURI()
	}

	rec := &recordingWriter{ResponseWriter: w}
	j := &job.HTTPJob{
		Method:         r.Method,
		AbsoluteURL:    absoluteURL,
		Header:         headers.FromHTTPHeader(r.Header),
		Body:           body,
		ResponseWriter: rec,
		Completion:     job.NewCompletion(),
		Timer:          linkmetrics.NewTimer(),
	}

	if err := f.Queue.Enqueue(j); err != nil {
		http.Error(w, "Service Unavailable: job queue full", http.StatusServiceUnavailable)
		return
	}

	if err := j.Completion.Wait(); err != nil {
		if shiperrors.KindOf(err) == shiperrors.KindClientDisconnected {
			return
		}
		if !rec.headerWritten {
			http.Error(w, "Bad Gateway: "+err.Error(), http.StatusBadGateway)
		} else {
			log.Printf("[client] request failed after headers sent: %v", err)
		}
	}
}

// readBufferedBody fully buffers the request body when Content-Length is
// present and the method is not among GET/HEAD/CONNECT, per spec §4.5.
// Streaming uploads of unknown length are a known limitation (spec §9).
func readBufferedBody(r *http.Request) ([]byte, error) {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodConnect:
		return nil, nil
	}
	if r.ContentLength <= 0 {
		return nil, nil
	}
	buf := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, buf); err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return buf, nil
}

func (f *Front) handleConnect(w http.ResponseWriter, r *http.Request) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "connection hijacking unsupported", http.StatusInternalServerError)
		return
	}
	conn, rw, err := hijacker.Hijack()
	if err != nil {
		http.Error(w, "hijack failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer conn.Close()

	if buffered := rw.Reader.Buffered(); buffered > 0 {
		// Nothing of substance should be buffered ahead of a CONNECT
		// request's terminating CRLF, but drain it defensively so the
		// tunnel doesn't start mid-frame.
		_, _ = io.CopyN(io.Discard, rw.Reader, int64(buffered))
	}

	j := &job.ConnectJob{
		HostPort:    r.Host,
		BrowserConn: conn,
		Completion:  job.NewCompletion(),
		Timer:       linkmetrics.NewTimer(),
	}

	if err := f.Queue.Enqueue(j); err != nil {
		writeBestEffort(conn, "HTTP/1.1 503 Service Unavailable\r\n\r\n")
		return
	}

	if err := j.Completion.Wait(); err != nil {
		// Best-effort: if the 200 line was already sent by the tunnel
		// handler the browser is mid-raw-stream and this extra line is
		// harmless noise on an already-failing connection; ignore write
		// errors either way.
		writeBestEffort(conn, "HTTP/1.1 502 Bad Gateway\r\n\r\n"+err.Error())
	}
}

func writeBestEffort(conn net.Conn, s string) {
	_, _ = io.WriteString(conn, s)
}

// recordingWriter wraps an http.ResponseWriter to remember whether headers
// have already been sent, so a late job failure can only be turned into a
// 502 page when it is still safe to do so.
type recordingWriter struct {
	http.ResponseWriter
	headerWritten bool
}

func (rw *recordingWriter) WriteHeader(status int) {
	rw.headerWritten = true
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.headerWritten = true
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher by delegating, so clienthttp's streaming
// writer can still find a Flusher through the wrapper.
func (rw *recordingWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
