// Package scheduler implements the single-threaded, cooperative task runner
// each simulated node uses to drain its work queue: delivered messages,
// epoch-completion callbacks, and released PendingSends all land here as
// plain closures.
package scheduler

import (
	"github.com/gammazero/deque"
)

// Task is one unit of scheduled work. Handlers run to completion; there is
// no preemption.
type Task func()

// Scheduler is a FIFO task runner. New returns an empty one, the same as
// the zero value.
type Scheduler struct {
	q deque.Deque
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Enqueue appends t to the back of the run queue.
func (s *Scheduler) Enqueue(t Task) {
	s.q.PushBack(t)
}

// IsIdle reports whether the run queue is empty.
func (s *Scheduler) IsIdle() bool {
	return s.q.Len() == 0
}

// RunOne pops and runs the next task, returning false if the queue was
// empty.
func (s *Scheduler) RunOne() bool {
	if s.q.Len() == 0 {
		return false
	}
	t := s.q.PopFront().(Task)
	t()
	return true
}

// RunSchedulerWhile runs tasks until the queue drains or cond returns
// false.
func (s *Scheduler) RunSchedulerWhile(cond func() bool) {
	for cond() {
		if !s.RunOne() {
			return
		}
	}
}

// RunSchedulerThrough runs tasks until done returns true or the queue
// drains, whichever comes first. Callers that need a hard guarantee of
// reaching done should ensure the work driving done to true is itself
// enqueued; an idle queue before done is true is reported via the return
// value so tests can assert against it rather than spin forever.
func (s *Scheduler) RunSchedulerThrough(done func() bool) (reachedDone bool) {
	for !done() {
		if !s.RunOne() {
			return false
		}
	}
	return true
}

// Len reports the number of tasks currently queued, a diagnostic.
func (s *Scheduler) Len() int {
	return s.q.Len()
}
