package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type queuedJob struct {
	task *Task
	fn   func()
}

// worker owns one FIFO queue and executes its jobs on a single goroutine.
type worker struct {
	name           string
	queue          chan queuedJob
	done           <-chan struct{}
	enqueueTimeout time.Duration
	log            zerolog.Logger
}

func newWorker(name string, size int, timeout time.Duration, done <-chan struct{}, log zerolog.Logger) *worker {
	return &worker{
		name:           name,
		queue:          make(chan queuedJob, size),
		done:           done,
		enqueueTimeout: timeout,
		log:            log,
	}
}

// submit enqueues a job.
//
//   - Returns ErrSchedulerClosed if the scheduler is stopping.
//   - Returns *QueueFullError if the queue stays full for enqueueTimeout.
func (w *worker) submit(j queuedJob) error {
	select {
	case <-w.done:
		return ErrSchedulerClosed
	default:
	}

	// Fast path avoids allocating a timer when there is room.
	select {
	case w.queue <- j:
		submissionsTotal.WithLabelValues(w.name).Inc()
		return nil
	default:
	}

	timer := time.NewTimer(w.enqueueTimeout)
	defer timer.Stop()

	select {
	case w.queue <- j:
		submissionsTotal.WithLabelValues(w.name).Inc()
		return nil
	case <-w.done:
		return ErrSchedulerClosed
	case <-timer.C:
		queueFullTotal.WithLabelValues(w.name).Inc()
		return &QueueFullError{Worker: w.name, Length: len(w.queue), Capacity: cap(w.queue)}
	}
}

// barrier waits until every job queued before it has run.
func (w *worker) barrier(ctx context.Context) error {
	reached := make(chan struct{})
	if err := w.submit(queuedJob{task: &Task{scope: w.name}, fn: func() { close(reached) }}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-reached:
		return nil
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case j := <-w.queue:
			w.execute(j)
			queueDepth.WithLabelValues(w.name).Set(float64(len(w.queue)))

		case <-w.done:
			// Drain remaining jobs, preserving FIFO, then exit.
			drained := 0
			for {
				select {
				case j := <-w.queue:
					w.execute(j)
					drained++
				default:
					if drained > 0 {
						w.log.Debug().Str("worker", w.name).Int("drained", drained).Msg("worker drained queue")
					}
					queueDepth.WithLabelValues(w.name).Set(0)
					return
				}
			}
		}
	}
}

// execute runs one job; a panicking job is logged and does not take the worker down.
func (w *worker) execute(j queuedJob) {
	if j.fn == nil || j.task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			panicsTotal.WithLabelValues(w.name).Inc()
			w.log.Error().
				Str("worker", w.name).
				Uint64("task", j.task.id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("scheduled task panicked")
		}
	}()
	start := time.Now()
	if j.task.invoke(j.fn) {
		runDuration.WithLabelValues(w.name).Observe(time.Since(start).Seconds())
	} else {
		droppedTotal.WithLabelValues("cancelled").Inc()
	}
}
