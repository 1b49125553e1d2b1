// Package system provides a real clock implementation.
package system

import (
	"time"

	"github.com/JakeFAU/progress-tracker/internal/clock"
)

// Clock implements clock.Clock using the runtime timer wheel.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// AfterFunc wraps time.AfterFunc.
func (Clock) AfterFunc(d time.Duration, f func()) clock.Timer {
	return time.AfterFunc(d, f)
}
