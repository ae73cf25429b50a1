package writer

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/starford/bearlinks/internal/backlinks"
)

// ErrStopped is returned by Dispatcher.Update once the dispatcher has exited.
var ErrStopped = errors.New("writer: dispatcher stopped")

type job struct {
	ctx  context.Context
	uid  string
	text string
	done chan error
}

// Dispatcher serializes updates from any number of callers onto one
// downstream writer. The host application handles one URL at a time, so
// sweeps from watch mode and tool calls must not interleave.
//
// Concurrency model: Run owns the downstream writer; Update hands jobs over
// an unbuffered channel and waits for the result.
type Dispatcher struct {
	next    backlinks.Writer
	jobs    chan job
	stopped chan struct{}
	running atomic.Bool
}

// NewDispatcher creates a Dispatcher in front of next.
func NewDispatcher(next backlinks.Writer) *Dispatcher {
	return &Dispatcher{
		next:    next,
		jobs:    make(chan job),
		stopped: make(chan struct{}),
	}
}

// Run processes updates until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("writer: dispatcher already running")
	}
	defer close(d.stopped)

	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-d.jobs:
			j.done <- d.next.Update(j.ctx, j.uid, j.text)
		}
	}
}

// Update queues an update and waits for the downstream writer to finish it.
func (d *Dispatcher) Update(ctx context.Context, uid, text string) error {
	j := job{ctx: ctx, uid: uid, text: text, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrStopped
	case d.jobs <- j:
	}
	return <-j.done
}
