package engine

import (
	"sync"
	"time"
)

// Clock is the playback clock collaborator: current playhead position and
// total duration, both in seconds, consumed read-only by the engine.
type Clock interface {
	Playhead() float64
	Duration() float64
}

// DurationSetter is implemented by clocks whose duration becomes known only
// when the presentation resolves.
type DurationSetter interface {
	SetDuration(seconds float64)
}

// WallClock models headless playback: once started, the playhead advances
// in real time, capped at the known duration.
type WallClock struct {
	mu       sync.Mutex
	start    time.Time
	started  bool
	duration float64
}

// NewWallClock returns a stopped wall clock.
func NewWallClock() *WallClock {
	return &WallClock{}
}

// Start begins advancing the playhead. Starting twice is a no-op.
func (c *WallClock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		c.start = time.Now()
		c.started = true
	}
}

// Playhead implements Clock.
func (c *WallClock) Playhead() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0
	}
	pos := time.Since(c.start).Seconds()
	if c.duration > 0 && pos > c.duration {
		return c.duration
	}
	return pos
}

// Duration implements Clock.
func (c *WallClock) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// SetDuration implements DurationSetter.
func (c *WallClock) SetDuration(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = seconds
}

// ManualClock is a Clock whose playhead and duration are set explicitly.
// Used in tests and for scripted playback.
type ManualClock struct {
	mu       sync.Mutex
	playhead float64
	duration float64
}

// NewManualClock returns a clock at position 0 with the given duration.
func NewManualClock(duration float64) *ManualClock {
	return &ManualClock{duration: duration}
}

// Playhead implements Clock.
func (c *ManualClock) Playhead() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playhead
}

// SetPlayhead moves the playhead.
func (c *ManualClock) SetPlayhead(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playhead = seconds
}

// Duration implements Clock.
func (c *ManualClock) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// SetDuration implements DurationSetter.
func (c *ManualClock) SetDuration(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = seconds
}
