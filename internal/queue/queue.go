// Package queue implements the client-side bounded job queue and its single
// worker (C4): every browser request becomes a job, the queue hands jobs to
// exactly one worker so that no two jobs ever overlap on the shared link.
// Grounded on the worker-channel-pool shape of slicingmelon's
// requestworkerpool (one dedicated goroutine consuming a channel of jobs)
// simplified to the single-worker discipline the spec requires.
package queue

import (
	"log"

	"github.com/shipproxy/shipproxy/internal/constants"
	"github.com/shipproxy/shipproxy/internal/job"
	"github.com/shipproxy/shipproxy/internal/shiperrors"
)

// Processor performs the actual link I/O for a dequeued job. Implementations
// own the link.Manager and are responsible for resetting it on framing
// errors.
type Processor interface {
	ProcessHTTP(j *job.HTTPJob) error
	ProcessConnect(j *job.ConnectJob) error
}

// Queue is a bounded FIFO of pending jobs. Enqueue never blocks: a full
// queue is rejected immediately with a QueueFull error so callers can
// surface 503 to the browser rather than hang indefinitely or silently
// drop work (see spec's open question on queue-full behavior).
type Queue struct {
	ch chan job.Job
}

// New returns an empty Queue with the package's configured capacity.
func New() *Queue {
	return &Queue{ch: make(chan job.Job, constants.JobQueueCapacity)}
}

// Enqueue attempts to add j to the queue, failing immediately with
// shiperrors.NewQueueFull() if it is at capacity.
func (q *Queue) Enqueue(j job.Job) error {
	select {
	case q.ch <- j:
		return nil
	default:
		return shiperrors.NewQueueFull()
	}
}

// Worker is the sole goroutine that dequeues jobs and drives the link. It
// processes jobs strictly one at a time.
type Worker struct {
	queue *Queue
	proc  Processor
}

// NewWorker binds a Worker to a Queue and the Processor that will execute
// each job.
func NewWorker(q *Queue, proc Processor) *Worker {
	return &Worker{queue: q, proc: proc}
}

// Run drains the queue until stop is closed. It is meant to be the body of
// the one dedicated worker goroutine; call it with `go worker.Run(stop)`.
func (w *Worker) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case j := <-w.queue.ch:
			w.process(j)
		}
	}
}

func (w *Worker) process(j job.Job) {
	var err error
	switch v := j.(type) {
	case *job.HTTPJob:
		v.Timer.MarkDequeued()
		v.Timer.StartExec()
		err = w.proc.ProcessHTTP(v)
		v.Timer.EndExec()
		v.Completion.Finish(err)
		log.Printf("[client] %s %s -> %v (%s)", v.Method, v.AbsoluteURL, err, v.Timer.GetMetrics())
	case *job.ConnectJob:
		v.Timer.MarkDequeued()
		v.Timer.StartExec()
		err = w.proc.ProcessConnect(v)
		v.Timer.EndExec()
		v.Completion.Finish(err)
		log.Printf("[client] CONNECT %s -> %v (%s)", v.HostPort, err, v.Timer.GetMetrics())
	default:
		log.Printf("[client] worker: unknown job type %T", j)
	}
}
