// Package bandwidth estimates available network throughput from segment
// download samples. The estimator is a pure function over an immutable
// State value: every sample produces a new State, and nothing here holds
// hidden mutable state.
//
// Two exponentially-weighted moving averages run side by side: a fast one
// (short half-life) that reacts quickly, and a slow one that smooths out
// bursts. The reported estimate is the minimum of the two, which makes the
// estimator deliberately asymmetric: a bandwidth drop shows up almost
// immediately through the fast average, while a rise is only believed once
// the slow average catches up.
package bandwidth

import "math"

// Config tunes the estimator. Use DefaultConfig unless measurements say
// otherwise.
type Config struct {
	// FastHalfLife and SlowHalfLife are the EWMA half-lives in seconds of
	// accumulated sample weight.
	FastHalfLife float64
	SlowHalfLife float64

	// MinBytes filters out samples dominated by connection setup latency.
	MinBytes int64
	// MinDurationMs filters out cached or otherwise instant responses
	// that would inflate the estimate.
	MinDurationMs float64
	// MinTotalBytes is the startup threshold: until this many bytes have
	// been sampled in total, Estimate returns the caller's default.
	MinTotalBytes int64
}

// DefaultConfig returns the stock estimator tuning.
func DefaultConfig() Config {
	return Config{
		FastHalfLife:  2,
		SlowHalfLife:  5,
		MinBytes:      16_000,
		MinDurationMs: 5,
		MinTotalBytes: 128_000,
	}
}

// State is the estimator's full state as a pure value.
type State struct {
	FastEstimate    float64
	FastTotalWeight float64
	SlowEstimate    float64
	SlowTotalWeight float64
	// BytesSampled counts every sample's bytes, including filtered ones;
	// it feeds the startup threshold, not the averages.
	BytesSampled int64
}

// Sample folds one download observation into the state and returns the new
// state. Samples below the byte or duration floor contribute no weight to
// either average but still count toward BytesSampled.
func Sample(st State, durationMs float64, bytes int64, cfg Config) State {
	st.BytesSampled += bytes

	if bytes < cfg.MinBytes || durationMs < cfg.MinDurationMs {
		return st
	}

	bps := float64(bytes) * 8000 / durationMs
	weight := durationMs / 1000

	st.FastEstimate, st.FastTotalWeight = ewmaSample(
		st.FastEstimate, st.FastTotalWeight, cfg.FastHalfLife, weight, bps)
	st.SlowEstimate, st.SlowTotalWeight = ewmaSample(
		st.SlowEstimate, st.SlowTotalWeight, cfg.SlowHalfLife, weight, bps)

	return st
}

// ewmaSample updates one exponentially-weighted moving average with a
// weighted value.
func ewmaSample(estimate, totalWeight, halfLife, weight, value float64) (float64, float64) {
	alpha := math.Pow(0.5, weight/halfLife)
	return alpha*estimate + (1-alpha)*value, totalWeight + weight
}

// ewmaEstimate corrects an average for its zero-initialization bias: a
// small-sample EWMA under-reports because it implicitly started from zero.
func ewmaEstimate(estimate, totalWeight, halfLife float64) float64 {
	zeroFactor := 1 - math.Pow(0.5, totalWeight/halfLife)
	if zeroFactor <= 0 {
		return 0
	}
	return estimate / zeroFactor
}

// Estimate returns the current throughput estimate in bits per second, or
// defaultBps until enough bytes have been sampled for the averages to mean
// anything.
func Estimate(st State, defaultBps float64, cfg Config) float64 {
	if st.BytesSampled < cfg.MinTotalBytes {
		return defaultBps
	}
	if st.FastTotalWeight == 0 || st.SlowTotalWeight == 0 {
		return defaultBps
	}
	fast := ewmaEstimate(st.FastEstimate, st.FastTotalWeight, cfg.FastHalfLife)
	slow := ewmaEstimate(st.SlowEstimate, st.SlowTotalWeight, cfg.SlowHalfLife)
	return math.Min(fast, slow)
}

// HasGoodEstimate reports whether Estimate is based on real samples rather
// than the caller's default. Both the byte threshold and nonzero average
// weight are required; byte count alone can be inflated by filtered
// samples.
func HasGoodEstimate(st State, cfg Config) bool {
	return st.BytesSampled >= cfg.MinTotalBytes &&
		st.FastTotalWeight > 0 &&
		st.SlowTotalWeight > 0
}
