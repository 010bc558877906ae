package game

import "time"

// FPSLimiter paces a loop to a target frame rate.
type FPSLimiter struct {
	limit int
	next  time.Time
}

// NewFPSLimiter creates a limiter for fps frames per second. Zero or less
// disables limiting.
func NewFPSLimiter(fps int) *FPSLimiter {
	return &FPSLimiter{limit: fps}
}

// SetLimit changes the target and restarts pacing.
func (f *FPSLimiter) SetLimit(fps int) {
	f.limit = fps
	f.next = time.Time{}
}

// Limit returns the current target.
func (f *FPSLimiter) Limit() int {
	return f.limit
}

// Wait blocks until the next frame should start.
// Uses a hybrid sleep/spin approach for better precision on high FPS caps.
func (f *FPSLimiter) Wait() {
	if f.limit <= 0 {
		f.next = time.Time{}
		return
	}

	target := time.Second / time.Duration(f.limit)

	if f.next.IsZero() {
		f.next = time.Now().Add(target)
	} else {
		f.next = f.next.Add(target)
	}

	for {
		remaining := time.Until(f.next)
		if remaining <= 0 {
			break
		}
		if remaining > 200*time.Microsecond {
			time.Sleep(remaining - 200*time.Microsecond)
		}
		// busy-wait for the final few microseconds
		if time.Until(f.next) <= 0 {
			break
		}
	}

	// If we're significantly late (e.g., hitch), resync to avoid drift
	if late := -time.Until(f.next); late > target {
		f.next = time.Now().Add(target)
	}
}
