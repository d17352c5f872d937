package utils

import "time"

// Clock abstracts wall-clock reads so deadline and expiry logic can be
// driven through simulated time in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the system clock.
func RealClock() Clock { return realClock{} }
