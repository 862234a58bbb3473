package clock

import "time"

// Clock provides the current time so sweeps and ledger decisions stay testable.
type Clock interface {
	Now() time.Time
}

// RealClock reads current UTC time from system clock.
type RealClock struct{}

// Now returns current UTC time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a plain function to Clock.
// Params: function returning the current time.
// Returns: Clock implementation.
type Func func() time.Time

// Now calls the wrapped function.
func (f Func) Now() time.Time {
	return f()
}

// OrReal returns c, or RealClock when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return RealClock{}
	}
	return c
}
