// Package engine wires the parser, bandwidth estimator, quality selector
// and buffer calculators into a running playback session. Orchestration is
// reactive: state containers hold the session's facts, combine-latest
// observers decide what to do next, and the fetch/append work happens in
// cancellable goroutines guarded against re-entry.
package engine

import (
	"errors"

	"hlsplayd/internal/abr"
	"hlsplayd/internal/bandwidth"
	"hlsplayd/internal/buffer"
	"hlsplayd/internal/model"
)

var (
	// ErrInitSegmentFailed marks a run aborted because the initialization
	// segment could not be fetched; media segments cannot be decoded
	// without it, so this is terminal rather than skippable.
	ErrInitSegmentFailed = errors.New("initialization segment failed")

	// ErrTrackNotFound is returned when selecting a track id the
	// presentation does not contain.
	ErrTrackNotFound = errors.New("track not found")

	// ErrNoPlayableTracks is returned when a manifest parses to nothing
	// usable.
	ErrNoPlayableTracks = errors.New("manifest contains no playable tracks")
)

// PreloadIntent controls how much of the presentation the engine loads.
type PreloadIntent string

const (
	// PreloadMetadata resolves playlists but never fetches media.
	PreloadMetadata PreloadIntent = "metadata"
	// PreloadFull runs the segment pipeline.
	PreloadFull PreloadIntent = "full"
)

// Config tunes one playback session.
type Config struct {
	Buffer    buffer.Config
	Bandwidth bandwidth.Config
	ABR       abr.Options

	// DefaultBandwidthBps seeds quality selection before the estimator
	// has seen enough data.
	DefaultBandwidthBps float64

	Preload PreloadIntent

	// AutoQuality lets the engine switch video tracks on bandwidth
	// changes. Manually selecting a video track turns it off.
	AutoQuality bool
}

// DefaultConfig returns the stock session tuning.
func DefaultConfig() Config {
	return Config{
		Buffer:              buffer.DefaultConfig(),
		Bandwidth:           bandwidth.DefaultConfig(),
		ABR:                 abr.Options{SafetyFactor: abr.DefaultSafetyFactor},
		DefaultBandwidthBps: 1_000_000,
		Preload:             PreloadFull,
		AutoQuality:         true,
	}
}

// Selection is the track-selection state: which track of each type is
// active, plus the presentation they belong to. Revision bumps whenever a
// member track is upgraded in place, so observers see resolutions without
// the presentation pointer ever changing.
type Selection struct {
	VideoTrackID string
	AudioTrackID string
	TextTrackID  string

	Presentation *model.Presentation
	Preload      PreloadIntent
	AutoQuality  bool
	Revision     int
}

// TrackID returns the selected track id for the given type.
func (s Selection) TrackID(typ model.TrackType) string {
	switch typ {
	case model.TrackVideo:
		return s.VideoTrackID
	case model.TrackAudio:
		return s.AudioTrackID
	case model.TrackText:
		return s.TextTrackID
	}
	return ""
}

// withTrackID returns a copy with the selected id for typ replaced.
func (s Selection) withTrackID(typ model.TrackType, id string) Selection {
	switch typ {
	case model.TrackVideo:
		s.VideoTrackID = id
	case model.TrackAudio:
		s.AudioTrackID = id
	case model.TrackText:
		s.TextTrackID = id
	}
	return s
}

// selectionEqual compares selections by field identity; the presentation is
// compared by pointer, matching the in-place upgrade model.
func selectionEqual(a, b Selection) bool {
	return a.VideoTrackID == b.VideoTrackID &&
		a.AudioTrackID == b.AudioTrackID &&
		a.TextTrackID == b.TextTrackID &&
		a.Presentation == b.Presentation &&
		a.Preload == b.Preload &&
		a.AutoQuality == b.AutoQuality &&
		a.Revision == b.Revision
}

// trackTypes is the fixed iteration order for per-type orchestration.
var trackTypes = []model.TrackType{model.TrackVideo, model.TrackAudio, model.TrackText}
