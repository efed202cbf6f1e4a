package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// EmailProvider sends one email. Implementations make a single bounded call;
// the scheduler performs no retries of its own beyond the next wakeup.
type EmailProvider interface {
	// Send transmits the email and returns the provider message ID.
	Send(ctx context.Context, input SendInput) (string, error)
}
