package core

import "time"

// Clock abstracts the current time so components that run silence timers or
// stamp messages can be driven deterministically in tests.
type Clock interface {
	NowUTC() time.Time
}

// SystemUTC is the production clock.
type SystemUTC struct{}

func (SystemUTC) NowUTC() time.Time {
	return time.Now().UTC()
}
