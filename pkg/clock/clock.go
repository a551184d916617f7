// Package clock abstracts wall time and one-shot timers so that components
// with debounce or backoff timers can be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock supplies the current time and schedules deferred callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f once, after d, on a goroutine owned by the clock.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable handle for a callback scheduled with AfterFunc.
type Timer interface {
	// Stop reports whether the call prevented the callback from running.
	Stop() bool
}

// System is the real clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Manual is a test clock. Time only moves on Advance, and due callbacks run
// synchronously on the caller's goroutine in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	clock   *Manual
	at      time.Time
	delay   time.Duration
	seq     uint64
	f       func()
	stopped bool
	fired   bool
}

// NewManual returns a Manual clock reading start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{clock: m, at: m.now.Add(d), delay: d, seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, running every callback that falls
// due. Callbacks scheduled by those callbacks also run if they fall inside
// the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.compactLocked()
			m.mu.Unlock()
			return
		}
		m.now = next.at
		next.fired = true
		m.mu.Unlock()

		next.f()
	}
}

// Set jumps the clock to t without firing anything. Useful for expiry tests
// that don't care about timers.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Pending returns the original delays of all live timers, ordered by deadline.
func (m *Manual) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := m.liveLocked()
	out := make([]time.Duration, 0, len(live))
	for _, t := range live {
		out = append(out, t.delay)
	}
	return out
}

// FireStopped runs the callbacks of timers that were stopped before firing,
// reproducing a callback that was already in flight when Stop was called.
// It returns how many callbacks ran.
func (m *Manual) FireStopped() int {
	m.mu.Lock()
	var stale []*manualTimer
	for _, t := range m.timers {
		if t.stopped && !t.fired {
			t.fired = true
			stale = append(stale, t)
		}
	}
	m.compactLocked()
	m.mu.Unlock()

	for _, t := range stale {
		t.f()
	}
	return len(stale)
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	var next *manualTimer
	for _, t := range m.timers {
		if t.stopped || t.fired || t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (m *Manual) liveLocked() []*manualTimer {
	var live []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	return live
}

// compactLocked drops fired timers. Stopped ones are kept for FireStopped.
func (m *Manual) compactLocked() {
	kept := m.timers[:0]
	for _, t := range m.timers {
		if !t.fired {
			kept = append(kept, t)
		}
	}
	m.timers = kept
}
