// Package job defines the two browser-originated work items that flow
// through the client's bounded queue: HTTPJob and ConnectJob. Both embed a
// Completion signal that transitions exactly once from pending to done.
package job

import (
	"net"
	"net/http"
	"sync"

	"github.com/shipproxy/shipproxy/internal/frame"
	"github.com/shipproxy/shipproxy/internal/linkmetrics"
)

// Completion is a one-shot, many-reader done signal: Finish may be called
// exactly once (later calls are ignored) and Wait blocks until it has been
// called, then returns the error it was finished with.
type Completion struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewCompletion returns a pending Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Finish transitions the completion to done(err). Only the first call has
// an effect.
func (c *Completion) Finish(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Wait blocks until Finish has been called and returns its error.
func (c *Completion) Wait() error {
	<-c.done
	return c.err
}

// HTTPJob is a single buffered browser HTTP request awaiting dispatch over
// the link.
type HTTPJob struct {
	Method         string
	AbsoluteURL    string
	Header         frame.HeaderMap
	Body           []byte
	ResponseWriter http.ResponseWriter
	Completion     *Completion
	Timer          *linkmetrics.Timer
}

// ConnectJob is a single browser CONNECT tunnel request awaiting dispatch
// over the link.
type ConnectJob struct {
	HostPort    string
	BrowserConn net.Conn
	Completion  *Completion
	Timer       *linkmetrics.Timer
}

// Job is the enqueuable union: either *HTTPJob or *ConnectJob.
type Job interface {
	isJob()
}

func (*HTTPJob) isJob()    {}
func (*ConnectJob) isJob() {}
