package poll

import "time"

// Deadline is the outcome of comparing elapsed time against a session timeout.
type Deadline struct {
	Expired   bool
	Remaining time.Duration
}

// Remaining reports how much of timeout is left at now for a session that
// began at start. Expired is true once now-start >= timeout.
func Remaining(start, now time.Time, timeout time.Duration) Deadline {
	elapsed := now.Sub(start)
	if elapsed >= timeout {
		return Deadline{Expired: true}
	}
	return Deadline{Remaining: timeout - elapsed}
}
