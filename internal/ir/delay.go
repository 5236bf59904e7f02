package ir

import "time"

// DefaultSleepThreshold is the tail of a wait that SpinDelay always spins.
const DefaultSleepThreshold = 2 * time.Millisecond

// SpinDelay busy-waits on the monotonic clock. Waits longer than
// SleepThreshold sleep for everything but the final SleepThreshold, which
// is spun so the wakeup lands on time.
type SpinDelay struct {
	SleepThreshold time.Duration
}

// Now returns the current time with its monotonic reading.
func (SpinDelay) Now() time.Time {
	return time.Now()
}

// Until blocks until deadline.
func (s SpinDelay) Until(deadline time.Time) {
	if s.SleepThreshold > 0 {
		if d := time.Until(deadline) - s.SleepThreshold; d > 0 {
			time.Sleep(d)
		}
	}
	for time.Now().Before(deadline) {
	}
}
