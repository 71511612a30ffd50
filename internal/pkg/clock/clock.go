// Package clock abstracts wall-clock time behind a small interface.
//
// OTP derivation is a pure function of (secret, time), so everything that
// touches time goes through Clocker. Tests swap in a fixed clock to pin a
// request to an exact TOTP step.
package clock

import "time"

// Clocker reports the current time.
type Clocker interface {
	Now() time.Time
}

// SystemClock is the production Clocker backed by time.Now.
type SystemClock struct{}

// New returns a SystemClock.
func New() *SystemClock {
	return &SystemClock{}
}

// Now returns the current system time.
func (*SystemClock) Now() time.Time {
	return time.Now()
}

// Fixed is a Clocker pinned to a single instant, for tests.
type Fixed struct {
	At time.Time
}

// Now returns the pinned instant.
func (f Fixed) Now() time.Time {
	return f.At
}
