// Package taskrunner provides a single-goroutine serial executor.
//
// The authenticator and transfer engine are written as single-threaded
// state machines: every callback runs on the same goroutine so fields
// like internal_state_ never need a mutex. TaskRunner is what makes that
// possible over asynchronous I/O — network callbacks and timers post
// their continuations back onto the runner instead of running inline on
// whatever goroutine received the read.
package taskrunner

import (
	"sync"
	"time"
)

// TaskRunner serializes function execution onto a single goroutine.
type TaskRunner struct {
	tasks  chan func()
	timers sync.WaitGroup
	done   chan struct{}
	once   sync.Once
}

// New starts a TaskRunner. Callers must Stop it when done.
func New() *TaskRunner {
	r := &TaskRunner{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *TaskRunner) loop() {
	for {
		select {
		case fn := <-r.tasks:
			fn()
		case <-r.done:
			return
		}
	}
}

// Post queues fn to run on the runner's goroutine. Safe to call from any
// goroutine, including from within a task already running on the
// runner.
func (r *TaskRunner) Post(fn func()) {
	select {
	case r.tasks <- fn:
	case <-r.done:
	}
}

// PostDelayed queues fn to run after d has elapsed. The timer itself
// fires on its own goroutine and only posts the continuation onto the
// runner, so fn still observes the same single-threaded guarantees as
// Post.
//
// Returns a cancel function; calling it after the delay has already
// elapsed is a harmless no-op.
func (r *TaskRunner) PostDelayed(d time.Duration, fn func()) (cancel func()) {
	timer := time.NewTimer(d)
	stop := make(chan struct{})

	r.timers.Add(1)
	go func() {
		defer r.timers.Done()
		select {
		case <-timer.C:
			r.Post(fn)
		case <-stop:
			timer.Stop()
		case <-r.done:
			timer.Stop()
		}
	}()

	return func() {
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
}

// Stop halts the runner. Pending tasks are discarded; a task currently
// executing is allowed to finish.
func (r *TaskRunner) Stop() {
	r.once.Do(func() {
		close(r.done)
	})
	r.timers.Wait()
}
