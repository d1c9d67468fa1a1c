// Package system provides the wall clock used for statistics timestamps and
// archive names.
package system

import "time"

// Clock implements crawler.Clock. Times are always UTC.
type Clock struct{}

// New creates a Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a Clock frozen at one instant, for tests and replays.
type Fixed time.Time

// Now returns the frozen instant.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}
