package manifest

import (
	"math"

	"hlsplayd/internal/buffer"
)

// StreamType is the three-way (plus unknown) playback classification.
type StreamType string

const (
	StreamUnknown  StreamType = "unknown"
	StreamOnDemand StreamType = "on-demand"
	StreamLive     StreamType = "live"
	StreamLiveDVR  StreamType = "live-dvr"
)

// StreamTypeFor classifies a presentation from its duration and seekable
// range: a finite duration is on-demand; an infinite duration is live, and
// live with a DVR window when the seekable range has positive length. A
// zero-length seekable range does not count as a DVR window.
func StreamTypeFor(duration float64, seekable buffer.TimeRanges) StreamType {
	switch {
	case math.IsNaN(duration) || duration == 0:
		return StreamUnknown
	case math.IsInf(duration, 1):
		if seekable.Length() > 0 {
			return StreamLiveDVR
		}
		return StreamLive
	case duration > 0:
		return StreamOnDemand
	default:
		return StreamUnknown
	}
}
