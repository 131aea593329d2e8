package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

func TestControllerPin(t *testing.T) {
	base := fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	c := NewController(base)

	assert.False(t, c.Pinned())
	assert.True(t, c.Now().Equal(base.t))

	pinned := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	c.Pin(pinned)

	assert.True(t, c.Pinned())
	assert.True(t, c.Now().Equal(pinned))
	// Repeated reads stay frozen.
	assert.True(t, c.Now().Equal(pinned))

	c.Unpin()
	assert.False(t, c.Pinned())
	assert.True(t, c.Now().Equal(base.t))
}

func TestControllerDefaultsToSystem(t *testing.T) {
	c := NewController(nil)
	before := time.Now().Add(-time.Minute)
	assert.True(t, c.Now().After(before))
}
