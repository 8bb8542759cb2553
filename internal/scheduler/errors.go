package scheduler

import (
	"errors"
	"fmt"
)

// ErrQueueFull reports transient back-pressure: a worker queue was full when a
// task tried to enqueue.
var ErrQueueFull = errors.New("scheduler queue full")

// ErrSchedulerClosed reports that the scheduler has been stopped and accepts no
// further work.
var ErrSchedulerClosed = errors.New("scheduler closed")

// ErrInvalidPeriod rejects repeating tasks whose period is not positive.
var ErrInvalidPeriod = errors.New("repeating period must be positive")

// QueueFullError carries diagnostics while satisfying errors.Is(_, ErrQueueFull).
type QueueFullError struct {
	Worker   string
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("worker %s queue full (len=%d cap=%d)", e.Worker, e.Length, e.Capacity)
}

func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }
