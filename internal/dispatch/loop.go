// Package dispatch owns the designated thread every desktop call runs on.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned when work is submitted to a loop that has stopped
var ErrStopped = errors.New("dispatch loop stopped")

// DefaultQueueSize bounds the number of queued tasks
const DefaultQueueSize = 64

type task struct {
	name string
	fn   func()
	done chan struct{}
}

// Loop runs posted closures one at a time on a single locked OS thread
type Loop struct {
	tasks     chan task
	stoppedCh chan struct{}
	stopOnce  sync.Once
	isStopped atomic.Bool
	pending   int64
}

// NewLoop creates a loop whose queue holds size tasks
func NewLoop(size int) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Loop{
		tasks:     make(chan task, size),
		stoppedCh: make(chan struct{}),
	}
}

// Run locks the calling goroutine to its OS thread, runs init, then executes
// posted tasks in order until ctx is done. Tasks still queued at that point
// are run before teardown, which executes on the same thread.
func (l *Loop) Run(ctx context.Context, init func() error, teardown func()) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer l.stop()

	if init != nil {
		if err := init(); err != nil {
			return fmt.Errorf("loop init: %w", err)
		}
	}
	log.Printf("[Loop] Started")

	for {
		select {
		case <-ctx.Done():
			l.isStopped.Store(true)
			l.drain()
			if teardown != nil {
				teardown()
			}
			log.Printf("[Loop] Stopped")
			return nil
		case t := <-l.tasks:
			l.exec(t)
		}
	}
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() {
		l.isStopped.Store(true)
		close(l.stoppedCh)
	})
}

func (l *Loop) drain() {
	if n := l.Pending(); n > 0 {
		log.Printf("[Loop] Draining %d queued task(s)", n)
	}
	for {
		select {
		case t := <-l.tasks:
			l.exec(t)
		default:
			return
		}
	}
}

func (l *Loop) exec(t task) {
	defer atomic.AddInt64(&l.pending, -1)
	if t.done != nil {
		defer close(t.done)
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Loop] Task %s panicked: %v", t.name, r)
		}
	}()
	t.fn()
}

// Post queues fn without blocking. It returns false when the queue is full or
// the loop has stopped.
func (l *Loop) Post(name string, fn func()) bool {
	return l.post(task{name: name, fn: fn})
}

func (l *Loop) post(t task) bool {
	if l.isStopped.Load() {
		return false
	}
	atomic.AddInt64(&l.pending, 1)
	select {
	case l.tasks <- t:
		return true
	default:
		atomic.AddInt64(&l.pending, -1)
		log.Printf("[Loop] Queue full, dropping %s", t.name)
		return false
	}
}

// Call queues fn and waits until it has run
func (l *Loop) Call(ctx context.Context, name string, fn func()) error {
	t := task{name: name, fn: fn, done: make(chan struct{})}
	if !l.post(t) {
		return ErrStopped
	}
	select {
	case <-t.done:
		return nil
	case <-l.stoppedCh:
		// the task may have run during the final drain
		select {
		case <-t.done:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued or running tasks
func (l *Loop) Pending() int64 {
	return atomic.LoadInt64(&l.pending)
}

// Done is closed once the loop has stopped
func (l *Loop) Done() <-chan struct{} {
	return l.stoppedCh
}
