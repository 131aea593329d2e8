// Package clock provides a pinnable wall-clock source.
//
// Code under test that derives request arguments from "now" reads time
// through a Controller. During recording the controller is pinned to the
// instant captured at test start; during replay it is pinned to the
// instant stored with the session, so time-dependent data is identical
// across runs. Only the date/time source is substituted; timers and
// tickers are untouched.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current wall-clock time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System reads the real wall clock.
var System Clock = systemClock{}

// Controller is a Clock that can be pinned to a fixed instant.
type Controller struct {
	mu     sync.RWMutex
	base   Clock
	pinned *time.Time
}

// NewController creates a controller over base. A nil base uses System.
func NewController(base Clock) *Controller {
	if base == nil {
		base = System
	}
	return &Controller{base: base}
}

// Pin freezes the controller at t until Unpin is called.
func (c *Controller) Pin(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = &t
}

// Unpin resumes reading from the base clock.
func (c *Controller) Unpin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = nil
}

// Pinned reports whether the controller is currently frozen.
func (c *Controller) Pinned() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pinned != nil
}

// Now returns the pinned instant, or the base clock's time when unpinned.
func (c *Controller) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pinned != nil {
		return *c.pinned
	}
	return c.base.Now()
}
