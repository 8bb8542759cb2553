package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Task is the handle returned by every scheduling call.
//
// Cancel is idempotent and safe from any goroutine, including from inside the
// task itself. After Cancel returns no further invocation starts; an invocation
// already running is not interrupted. A nil *Task is valid and behaves as an
// already cancelled handle, so record fields can hold "no task" as nil.
type Task struct {
	id    uint64
	scope string

	cancelled atomic.Bool
	runs      atomic.Int64

	mu    sync.Mutex
	timer *time.Timer
}

func newTask(id uint64, scope string) *Task {
	return &Task{id: id, scope: scope}
}

// ID is unique per scheduler instance.
func (t *Task) ID() uint64 {
	if t == nil {
		return 0
	}
	return t.id
}

// Scope names the worker the task is bound to ("global", "region:<key>", "async").
func (t *Task) Scope() string {
	if t == nil {
		return ""
	}
	return t.scope
}

// Cancel stops future invocations.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	if !t.cancelled.CompareAndSwap(false, true) {
		return
	}
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool {
	if t == nil {
		return true
	}
	return t.cancelled.Load()
}

// Runs returns how many invocations have completed.
func (t *Task) Runs() int64 {
	if t == nil {
		return 0
	}
	return t.runs.Load()
}

// arm schedules f after d unless the task was cancelled first.
func (t *Task) arm(d time.Duration, f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled.Load() {
		return
	}
	if d < 0 {
		d = 0
	}
	t.timer = time.AfterFunc(d, f)
}

// invoke runs fn unless the task was cancelled while queued.
func (t *Task) invoke(fn func()) bool {
	if t.cancelled.Load() {
		return false
	}
	fn()
	t.runs.Add(1)
	return true
}
