package bandwidth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsplayd/internal/bandwidth"
)

const defaultBps = 500_000

func sampleN(st bandwidth.State, n int, durationMs float64, bytes int64, cfg bandwidth.Config) bandwidth.State {
	for i := 0; i < n; i++ {
		st = bandwidth.Sample(st, durationMs, bytes, cfg)
	}
	return st
}

func TestEstimateConvergesOnConstantRate(t *testing.T) {
	cfg := bandwidth.DefaultConfig()

	// 100 kB per second is 800 kbps.
	st := sampleN(bandwidth.State{}, 10, 1000, 100_000, cfg)

	got := bandwidth.Estimate(st, defaultBps, cfg)
	assert.InDelta(t, 800_000, got, 1)
}

func TestBandwidthDropReactsImmediately(t *testing.T) {
	cfg := bandwidth.DefaultConfig()

	st := sampleN(bandwidth.State{}, 5, 1000, 100_000, cfg)
	before := bandwidth.Estimate(st, defaultBps, cfg)
	require.InDelta(t, 800_000, before, 1)

	// Throughput collapses to 200 kbps for two samples.
	st = sampleN(st, 2, 1000, 25_000, cfg)
	after := bandwidth.Estimate(st, defaultBps, cfg)

	assert.Less(t, after, before*0.7, "a drop must cut the estimate by more than 30%% immediately")
}

func TestBandwidthRiseIsAbsorbedSlowly(t *testing.T) {
	cfg := bandwidth.DefaultConfig()

	// 6 samples at 25 kB clear the startup byte threshold at 200 kbps.
	st := sampleN(bandwidth.State{}, 6, 1000, 25_000, cfg)
	low := bandwidth.Estimate(st, defaultBps, cfg)
	require.InDelta(t, 200_000, low, 1)

	st = sampleN(st, 2, 1000, 100_000, cfg)
	after := bandwidth.Estimate(st, defaultBps, cfg)

	assert.Greater(t, after, low, "estimate rises after faster samples")
	assert.Less(t, after, 800_000.0, "but stays below the new instantaneous rate")
}

func TestSmallSamplesAreFilteredButCounted(t *testing.T) {
	cfg := bandwidth.DefaultConfig()

	st := bandwidth.Sample(bandwidth.State{}, 1000, 1_000, cfg)
	assert.Equal(t, int64(1_000), st.BytesSampled)
	assert.Zero(t, st.FastTotalWeight)
	assert.Zero(t, st.SlowTotalWeight)

	st = bandwidth.Sample(st, 2, 50_000, cfg)
	assert.Equal(t, int64(51_000), st.BytesSampled)
	assert.Zero(t, st.FastTotalWeight, "instant responses contribute no weight")
}

func TestEstimateReturnsDefaultUntilEnoughBytes(t *testing.T) {
	cfg := bandwidth.DefaultConfig()

	st := bandwidth.Sample(bandwidth.State{}, 1000, 100_000, cfg)
	require.Less(t, st.BytesSampled, cfg.MinTotalBytes)

	assert.Equal(t, float64(defaultBps), bandwidth.Estimate(st, defaultBps, cfg))
	assert.False(t, bandwidth.HasGoodEstimate(st, cfg))

	st = bandwidth.Sample(st, 1000, 100_000, cfg)
	require.GreaterOrEqual(t, st.BytesSampled, cfg.MinTotalBytes)

	assert.NotEqual(t, float64(defaultBps), bandwidth.Estimate(st, defaultBps, cfg))
	assert.True(t, bandwidth.HasGoodEstimate(st, cfg))
}

func TestByteCountAloneIsNotAGoodEstimate(t *testing.T) {
	cfg := bandwidth.DefaultConfig()

	// Many filtered samples can pass the byte threshold without a single
	// valid sample reaching the averages.
	st := sampleN(bandwidth.State{}, 10, 1000, 15_000, cfg)
	require.GreaterOrEqual(t, st.BytesSampled, cfg.MinTotalBytes)

	assert.False(t, bandwidth.HasGoodEstimate(st, cfg))
	assert.Equal(t, float64(defaultBps), bandwidth.Estimate(st, defaultBps, cfg))
}

func TestSampleIsPure(t *testing.T) {
	cfg := bandwidth.DefaultConfig()

	st := sampleN(bandwidth.State{}, 3, 1000, 100_000, cfg)
	before := st
	_ = bandwidth.Sample(st, 1000, 100_000, cfg)
	assert.Equal(t, before, st, "sampling returns a new state, never mutates the input")
}
