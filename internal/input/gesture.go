// Package input classifies raw press/release pairs from the touch surface
// into taps and long-presses. The register UI uses a long-press on a tab for
// rename/move actions and a plain tap for selection, so the two must never
// both fire for one press cycle.
package input

import (
	"sync"
	"time"
)

type Gesture string

const (
	GestureNone      Gesture = "none"
	GestureTap       Gesture = "tap"
	GestureLongPress Gesture = "long_press"
)

type Config struct {
	// LongPressThreshold is how long a press must be held to classify as a
	// long-press.
	LongPressThreshold time.Duration
	// DebounceWindow suppresses a new press arriving too soon after the last
	// release, absorbing contact bounce on cheap touch panels.
	DebounceWindow time.Duration
	// Now is injectable for tests.
	Now func() time.Time
}

// Classifier is a small state machine over one press cycle: pressed or not,
// plus a handled flag that a mid-hold long-press action sets so the eventual
// release does not also produce a tap.
type Classifier struct {
	longPress time.Duration
	debounce  time.Duration
	now       func() time.Time

	mu          sync.Mutex
	pressed     bool
	handled     bool
	pressedAt   time.Time
	lastRelease time.Time
}

func NewClassifier(cfg Config) *Classifier {
	if cfg.LongPressThreshold <= 0 {
		cfg.LongPressThreshold = 500 * time.Millisecond
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 150 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Classifier{
		longPress: cfg.LongPressThreshold,
		debounce:  cfg.DebounceWindow,
		now:       cfg.Now,
	}
}

// Press begins a cycle. Returns false when the press is swallowed: either a
// cycle is already open or the press lands inside the debounce window.
func (c *Classifier) Press() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.pressed {
		return false
	}
	if !c.lastRelease.IsZero() && now.Sub(c.lastRelease) < c.debounce {
		return false
	}

	c.pressed = true
	c.handled = false
	c.pressedAt = now
	return true
}

// HoldExceeded reports whether the open cycle has been held past the
// long-press threshold and has not been handled yet. Callers poll this from
// their hold timer and fire the long-press action when it turns true.
func (c *Classifier) HoldExceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pressed && !c.handled && c.now().Sub(c.pressedAt) >= c.longPress
}

// MarkHandled records that the long-press action already fired; the release
// for this cycle will classify as none.
func (c *Classifier) MarkHandled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pressed {
		c.handled = true
	}
}

// Release closes the cycle and classifies it.
func (c *Classifier) Release() Gesture {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pressed {
		return GestureNone
	}
	now := c.now()
	held := now.Sub(c.pressedAt)
	c.pressed = false
	c.lastRelease = now

	if c.handled {
		c.handled = false
		return GestureNone
	}
	if held >= c.longPress {
		return GestureLongPress
	}
	return GestureTap
}

// Cancel aborts the open cycle without producing a gesture. Used when the
// pointer leaves the target mid-press.
func (c *Classifier) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pressed = false
	c.handled = false
}
