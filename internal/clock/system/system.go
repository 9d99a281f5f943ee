// Package system provides a real clock implementation.
package system

import "time"

// Clock implements audit.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since returns the elapsed time from start, measured against Now.
func (c Clock) Since(start time.Time) time.Duration {
	return c.Now().Sub(start)
}
