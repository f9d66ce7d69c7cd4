// Package timer provides single-fire timer creation and test utilities.
package timer

import "time"

// Timer is a single-fire timer.
type Timer interface {
	// C returns the channel the timer delivers on when it fires.
	C() <-chan time.Time

	// Stop cancels the timer and reports whether it was stopped before
	// firing. Stopping an already-fired or already-stopped timer is a
	// no-op.
	Stop() bool
}

// Sources create timers.
type Source interface {
	NewTimer(d time.Duration) Timer
}

// Real is a timer source backed by the runtime clock.
type Real struct{}

// NewReal creates a new runtime clock timer source.
func NewReal() *Real {
	return &Real{}
}

type realTimer struct {
	t *time.Timer
}

// NewTimer creates a timer that fires after d.
func (*Real) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

func (r *realTimer) C() <-chan time.Time {
	return r.t.C
}

func (r *realTimer) Stop() bool {
	return r.t.Stop()
}
