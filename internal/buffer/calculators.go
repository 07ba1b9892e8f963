package buffer

import "math"

// Config tunes the buffering policy. Zero values are replaced by defaults
// by the calculators, so the zero Config is usable.
type Config struct {
	// ForwardTargetSeconds is how far past the playhead to buffer.
	ForwardTargetSeconds float64
	// BackBufferSeconds is how much already-played media to keep before
	// it becomes eligible for eviction.
	BackBufferSeconds float64
}

const (
	defaultForwardTargetSeconds = 30
	defaultBackBufferSeconds    = 30
)

// DefaultConfig returns the stock buffering policy.
func DefaultConfig() Config {
	return Config{
		ForwardTargetSeconds: defaultForwardTargetSeconds,
		BackBufferSeconds:    defaultBackBufferSeconds,
	}
}

func (c Config) forwardTarget() float64 {
	if c.ForwardTargetSeconds <= 0 {
		return defaultForwardTargetSeconds
	}
	return c.ForwardTargetSeconds
}

func (c Config) backBuffer() float64 {
	if c.BackBufferSeconds <= 0 {
		return defaultBackBufferSeconds
	}
	return c.BackBufferSeconds
}

// ForwardTarget returns the "buffer until" time for the given playhead:
// playhead plus the configured forward window, clamped so it never requests
// buffering past end-of-stream. An unknown (0 or NaN) or infinite duration
// leaves the target unclamped.
func ForwardTarget(playhead, duration float64, cfg Config) float64 {
	target := playhead + cfg.forwardTarget()
	if duration > 0 && !math.IsInf(duration, 1) && !math.IsNaN(duration) {
		target = math.Min(target, duration)
	}
	return target
}

// BackBufferBoundary returns the eviction boundary: everything buffered
// before it may be removed from the sink. Never ahead of the playhead,
// never negative.
func BackBufferBoundary(playhead float64, cfg Config) float64 {
	return math.Max(playhead-cfg.backBuffer(), 0)
}
