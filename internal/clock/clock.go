// Package clock abstracts wall-clock reads and cancelable deferred tasks so
// room timers can be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Task is a scheduled callback that may still be pending.
type Task interface {
	// Cancel stops the task. It returns false if the task already fired or was canceled.
	Cancel() bool
}

// Clock reports the current time and schedules deferred work.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Task
}

// Real is backed by the time package.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Task {
	return realTask{time.AfterFunc(d, f)}
}

type realTask struct{ t *time.Timer }

func (r realTask) Cancel() bool { return r.t.Stop() }

// Manual is a Clock whose time only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

// NewManual returns a Manual clock starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

type manualTask struct {
	m    *Manual
	at   time.Time
	seq  int
	fn   func()
	done bool
}

func (t *manualTask) Cancel() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{m: m, at: m.now.Add(d), seq: m.seq, fn: f}
	m.tasks = append(m.tasks, t)
	return t
}

// Advance moves time forward by d, firing due tasks in deadline order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

// Pending returns the number of tasks that have neither fired nor been canceled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.done {
			n++
		}
	}
	return n
}

// nextDue pops the earliest live task due at or before target and moves the clock to it.
func (m *Manual) nextDue(target time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.done {
			live = append(live, t)
		}
	}
	m.tasks = live
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if m.tasks[i].at.Equal(m.tasks[j].at) {
			return m.tasks[i].seq < m.tasks[j].seq
		}
		return m.tasks[i].at.Before(m.tasks[j].at)
	})
	if len(m.tasks) == 0 || m.tasks[0].at.After(target) {
		return nil
	}
	t := m.tasks[0]
	t.done = true
	if t.at.After(m.now) {
		m.now = t.at
	}
	return t
}
