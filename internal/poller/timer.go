package poller

import "time"

// TimerHandle identifies a single scheduled callback.
type TimerHandle interface {
	// Cancel prevents the callback from running. It reports whether the
	// callback was still pending. Safe to call more than once.
	Cancel() bool
}

// Timer schedules callbacks after a delay.
//
// The [Poller] never assumes which goroutine a callback runs on, so any
// implementation that eventually invokes fn exactly once (unless cancelled)
// is valid. Tests use pollertest.ManualTimer to control time explicitly.
type Timer interface {
	Schedule(d time.Duration, fn func()) TimerHandle
}

// SystemTimer returns a [Timer] backed by [time.AfterFunc].
func SystemTimer() Timer {
	return systemTimer{}
}

type systemTimer struct{}

func (systemTimer) Schedule(d time.Duration, fn func()) TimerHandle {
	return systemHandle{t: time.AfterFunc(d, fn)}
}

type systemHandle struct {
	t *time.Timer
}

func (h systemHandle) Cancel() bool {
	return h.t.Stop()
}
