// Package runtime implements the single-threaded primary event loop that
// every cluster-core component mutates state on: a cooperative scheduler
// fed by a task channel, a cancellable one-shot timer, and a scoped
// mutual-exclusion guard. Modeled on the channel/goroutine-loop style the
// rest of this codebase uses for its processing loops (queue channel,
// ticker, ctx.Done()), generalized into a reusable primitive instead of a
// bespoke loop per component.
package runtime

import (
	"context"
	"sync"
	"time"
)

// task is a unit of work posted to the primary loop.
type task func()

// Loop is a single-goroutine cooperative scheduler. All core state mutation
// in this repository happens on a Loop's goroutine; nothing else may touch
// that state concurrently.
type Loop struct {
	tasks  chan task
	done   chan struct{}
	once   sync.Once
	closed chan struct{}
}

// NewLoop creates a Loop with the given task queue depth.
func NewLoop(queueSize int) *Loop {
	return &Loop{
		tasks:  make(chan task, queueSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Run drains the task queue until ctx is cancelled. Tasks posted by the
// same producer goroutine are delivered in the order they were posted;
// tasks posted by different goroutines interleave, but each task runs to
// completion before the next begins, so core state needs no locking once
// it is only ever touched from inside a task.
//
// A panicking task is recovered and swallowed: one misbehaving task must
// never bring down the loop.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.closed)

	for {
		select {
		case t := <-l.tasks:
			l.runTask(t)
		case <-ctx.Done():
			return
		case <-l.done:
			return
		}
	}
}

func (l *Loop) runTask(t task) {
	defer func() {
		_ = recover()
	}()
	t()
}

// Stop asks Run to return once the current task (if any) completes. Safe
// to call more than once.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
}

// Wait blocks until Run has returned.
func (l *Loop) Wait() {
	<-l.closed
}

// PostToPrimary enqueues fn to run on the primary loop. Safe to call from
// any goroutine, including the loop's own. Delivery is FIFO per producer
// goroutine. If the queue is full the call blocks — callers that cannot
// afford to block should use TryPost.
func (l *Loop) PostToPrimary(fn func()) {
	l.tasks <- task(fn)
}

// TryPost enqueues fn without blocking, reporting whether it was queued.
func (l *Loop) TryPost(fn func()) bool {
	select {
	case l.tasks <- task(fn):
		return true
	default:
		return false
	}
}

// RunSoon enqueues fn onto the next primary-loop tick. It is equivalent to
// PostToPrimary; the distinct name mirrors the spec's vocabulary for
// call sites that want to express "run later, same loop" rather than
// "hand off from another thread".
func (l *Loop) RunSoon(fn func()) {
	l.PostToPrimary(fn)
}

// Timer is a cancellable one-shot delayed call scheduled on a Loop.
type Timer struct {
	timer  *time.Timer
	cancel chan struct{}
	once   sync.Once
}

// ScheduleAfter runs fn on the primary loop after delay elapses. Cancelling
// the returned Timer before it fires guarantees fn never runs; cancelling
// it after it has fired, or twice, is a safe no-op.
func (l *Loop) ScheduleAfter(delay time.Duration, fn func()) *Timer {
	t := &Timer{cancel: make(chan struct{})}

	t.timer = time.AfterFunc(delay, func() {
		select {
		case <-t.cancel:
			return
		default:
		}
		l.PostToPrimary(fn)
	})

	return t
}

// Cancel prevents a pending Timer from firing. Idempotent.
func (t *Timer) Cancel() {
	t.once.Do(func() {
		close(t.cancel)
		t.timer.Stop()
	})
}
