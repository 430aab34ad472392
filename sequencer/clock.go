package sequencer

import (
	"sync"
	"time"
)

// Timer is a pending one-shot callback
type Timer interface {
	Stop() bool
}

// Clock supplies wall time in milliseconds and one-shot timers
type Clock interface {
	Now() float64
	AfterFunc(ms float64, f func()) Timer
}

type systemClock struct {
	start time.Time
}

// SystemClock returns a clock counting milliseconds from its creation
func SystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) Now() float64 {
	return float64(time.Since(c.start)) / float64(time.Millisecond)
}

func (c *systemClock) AfterFunc(ms float64, f func()) Timer {
	if ms < 0 {
		ms = 0
	}
	return time.AfterFunc(time.Duration(ms*float64(time.Millisecond)), f)
}

// loop serializes ticks, input and state changes on one mutex. Callbacks
// queued with notify run in order once the mutex is released, so they may
// call back into the performance.
type loop struct {
	mu       sync.Mutex
	clock    Clock
	pending  []func()
	draining bool
}

func newLoop(clock Clock) *loop {
	return &loop{clock: clock}
}

func (l *loop) do(f func()) {
	l.mu.Lock()
	f()
	if l.draining {
		// the goroutine already draining picks these up
		l.mu.Unlock()
		return
	}
	l.draining = true
	for len(l.pending) > 0 {
		cbs := l.pending
		l.pending = nil
		l.mu.Unlock()
		for _, cb := range cbs {
			cb()
		}
		l.mu.Lock()
	}
	l.draining = false
	l.mu.Unlock()
}

// notify queues a user callback. Must hold mu.
func (l *loop) notify(cb func()) {
	l.pending = append(l.pending, cb)
}

// after runs f inside the loop once ms have elapsed
func (l *loop) after(ms float64, f func()) Timer {
	return l.clock.AfterFunc(ms, func() { l.do(f) })
}

func (l *loop) now() float64 {
	return l.clock.Now()
}
