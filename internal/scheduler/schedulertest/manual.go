// Package schedulertest provides a deterministic scheduler driven by a
// virtual clock.
package schedulertest

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mycelian/relic-service/internal/model"
	"github.com/mycelian/relic-service/internal/scheduler"
)

type timer struct {
	seq    int
	at     time.Time
	period time.Duration
	task   *scheduler.Task
	fn     func()
}

// Manual runs immediate work synchronously on the caller's goroutine and
// timed work only when Advance moves the clock past it.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*timer
}

var _ scheduler.Scheduler = (*Manual)(nil)

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now is the virtual clock; pass it wherever a clock func is expected.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Mode() scheduler.Mode { return scheduler.ModeGlobal }

func (m *Manual) RunNow(fn func()) *scheduler.Task {
	t := new(scheduler.Task)
	fn()
	return t
}

func (m *Manual) RunDelayed(delay time.Duration, fn func()) *scheduler.Task {
	t := new(scheduler.Task)
	m.add(delay, 0, t, fn)
	return t
}

func (m *Manual) RunRepeating(initialDelay, period time.Duration, fn func()) (*scheduler.Task, error) {
	if period <= 0 {
		return nil, scheduler.ErrInvalidPeriod
	}
	t := new(scheduler.Task)
	m.add(initialDelay, period, t, fn)
	return t, nil
}

func (m *Manual) RunAtLocation(_ model.Location, fn func()) *scheduler.Task { return m.RunNow(fn) }
func (m *Manual) RunAtActor(_ uuid.UUID, fn func()) *scheduler.Task         { return m.RunNow(fn) }
func (m *Manual) RunAsync(fn func()) *scheduler.Task                        { return m.RunNow(fn) }
func (m *Manual) Stop()                                                     {}

func (m *Manual) add(delay, period time.Duration, t *scheduler.Task, fn func()) {
	if delay < 0 {
		delay = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.timers = append(m.timers, &timer{seq: m.seq, at: m.now.Add(delay), period: period, task: t, fn: fn})
}

// Advance moves the clock forward by d, firing due timers in time order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		next := m.popDue(target)
		if next == nil {
			break
		}
		if !next.task.Cancelled() {
			next.fn()
		}
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) popDue(target time.Time) *timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.task.Cancelled() {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if len(m.timers) == 0 || m.timers[0].at.After(target) {
		return nil
	}
	t := m.timers[0]
	if t.at.After(m.now) {
		m.now = t.at
	}
	if t.period > 0 {
		m.seq++
		m.timers[0] = &timer{seq: m.seq, at: t.at.Add(t.period), period: t.period, task: t.task, fn: t.fn}
	} else {
		m.timers = m.timers[1:]
	}
	return t
}

// Pending counts timers that have not fired or been cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.task.Cancelled() {
			n++
		}
	}
	return n
}
