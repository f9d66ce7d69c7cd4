package timer

import (
	"sync"
	"time"
)

// Manual is a timer source for tests.
// Timers created from it never fire on their own; tests fire them
// explicitly. Created timers are announced on the Created channel.
type Manual struct {
	created chan *ManualTimer
}

// NewManual creates a new manual timer source.
func NewManual() *Manual {
	return &Manual{created: make(chan *ManualTimer, 16)}
}

// NewTimer creates a new manually-fired timer.
func (m *Manual) NewTimer(d time.Duration) Timer {
	t := &ManualTimer{
		d: d,
		c: make(chan time.Time, 1),
	}
	m.created <- t
	return t
}

// Created announces timers as they are created.
// Tests receive from it to synchronize with the code under test before
// firing.
func (m *Manual) Created() <-chan *ManualTimer {
	return m.created
}

// ManualTimer is a timer fired explicitly by a test.
type ManualTimer struct {
	mu      sync.Mutex
	d       time.Duration
	c       chan time.Time
	fired   bool
	stopped bool
}

// Duration returns the duration the timer was created with.
func (t *ManualTimer) Duration() time.Duration {
	return t.d
}

func (t *ManualTimer) C() <-chan time.Time {
	return t.c
}

func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Fire delivers on the timer channel and reports whether it delivered.
// A stopped or already-fired timer does not deliver.
func (t *ManualTimer) Fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.fired = true
	t.c <- time.Now()
	return true
}
