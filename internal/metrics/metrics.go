package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus instrumentation for the playback engine.
type Metrics struct {
	registry *prometheus.Registry

	segmentsFetchedTotal *prometheus.CounterVec
	segmentFailuresTotal *prometheus.CounterVec
	segmentsSkippedTotal *prometheus.CounterVec
	bytesDownloadedTotal prometheus.Counter
	qualitySwitchesTotal prometheus.Counter
	tracksResolvedTotal  prometheus.Counter

	bandwidthEstimateBps prometheus.Gauge
	bufferedSeconds      prometheus.Gauge
}

// New creates and registers the engine's metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	segmentsFetchedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_segments_fetched_total",
		Help: "Total number of segments fetched and appended, by track type",
	}, []string{"track_type"})
	segmentFailuresTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_segment_failures_total",
		Help: "Total number of segment fetch or append failures, by track type",
	}, []string{"track_type"})
	segmentsSkippedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_segments_skipped_total",
		Help: "Total number of failed segments skipped to keep playback going",
	}, []string{"track_type"})
	bytesDownloadedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_bytes_downloaded_total",
		Help: "Total media bytes downloaded",
	})
	qualitySwitchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_quality_switches_total",
		Help: "Total number of automatic quality switches",
	})
	tracksResolvedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_tracks_resolved_total",
		Help: "Total number of tracks whose media playlist was resolved",
	})
	bandwidthEstimateBps := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_bandwidth_estimate_bps",
		Help: "Current bandwidth estimate in bits per second",
	})
	bufferedSeconds := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_buffered_seconds",
		Help: "Media currently buffered ahead of the playhead, in seconds",
	})

	registry.MustRegister(
		segmentsFetchedTotal,
		segmentFailuresTotal,
		segmentsSkippedTotal,
		bytesDownloadedTotal,
		qualitySwitchesTotal,
		tracksResolvedTotal,
		bandwidthEstimateBps,
		bufferedSeconds,
	)

	return &Metrics{
		registry:             registry,
		segmentsFetchedTotal: segmentsFetchedTotal,
		segmentFailuresTotal: segmentFailuresTotal,
		segmentsSkippedTotal: segmentsSkippedTotal,
		bytesDownloadedTotal: bytesDownloadedTotal,
		qualitySwitchesTotal: qualitySwitchesTotal,
		tracksResolvedTotal:  tracksResolvedTotal,
		bandwidthEstimateBps: bandwidthEstimateBps,
		bufferedSeconds:      bufferedSeconds,
	}
}

// SegmentFetched records one successfully fetched and appended segment.
func (m *Metrics) SegmentFetched(trackType string, bytes int) {
	m.segmentsFetchedTotal.WithLabelValues(trackType).Inc()
	m.bytesDownloadedTotal.Add(float64(bytes))
}

// SegmentFailed records one failed segment fetch or append.
func (m *Metrics) SegmentFailed(trackType string) {
	m.segmentFailuresTotal.WithLabelValues(trackType).Inc()
}

// SegmentSkipped records a failed segment the pipeline skipped past.
func (m *Metrics) SegmentSkipped(trackType string) {
	m.segmentsSkippedTotal.WithLabelValues(trackType).Inc()
}

// QualitySwitch records an automatic rendition change.
func (m *Metrics) QualitySwitch() {
	m.qualitySwitchesTotal.Inc()
}

// TrackResolved records one media playlist resolution.
func (m *Metrics) TrackResolved() {
	m.tracksResolvedTotal.Inc()
}

// SetBandwidthEstimate updates the bandwidth estimate gauge.
func (m *Metrics) SetBandwidthEstimate(bps float64) {
	m.bandwidthEstimateBps.Set(bps)
}

// SetBufferedSeconds updates the buffered-ahead gauge.
func (m *Metrics) SetBufferedSeconds(s float64) {
	m.bufferedSeconds.Set(s)
}

// Handler returns an http.Handler serving the registry. updateGauges, if
// non-nil, runs before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
