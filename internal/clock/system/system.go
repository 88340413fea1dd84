// Package system provides the wall clock used to stamp progress events.
package system

import "time"

// Clock satisfies prerender.Clock with the real time in UTC.
type Clock struct{}

// New creates a Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
