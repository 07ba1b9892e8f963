// Package abr picks a rendition from a switching set given a bandwidth
// estimate. The selector is a pure decision function: it never fetches
// anything, callers react to the chosen id.
package abr

import "hlsplayd/internal/model"

// DefaultSafetyFactor leaves headroom below the raw estimate so a brief
// EWMA overshoot does not pick an unsustainable rendition.
const DefaultSafetyFactor = 0.95

// Options tunes the selection policy.
type Options struct {
	// SafetyFactor scales the bandwidth estimate before comparing it to
	// track bitrates. Must be below 1; 0 means DefaultSafetyFactor.
	SafetyFactor float64
}

func (o Options) safetyFactor() float64 {
	if o.SafetyFactor <= 0 || o.SafetyFactor >= 1 {
		return DefaultSafetyFactor
	}
	return o.SafetyFactor
}

// SelectQuality chooses a track from the switching set: the highest-bitrate
// track whose declared bandwidth fits under estimateBps scaled by the
// safety factor. If nothing fits, the lowest-bitrate track is returned so
// playback can always proceed. Bitrate ties break toward higher resolution.
// ok is false only for an empty set.
func SelectQuality(set *model.SwitchingSet, estimateBps float64, opts Options) (trackID string, ok bool) {
	if set == nil || len(set.Tracks) == 0 {
		return "", false
	}

	budget := estimateBps * opts.safetyFactor()

	var best *model.Track
	var lowest *model.Track
	for _, t := range set.Tracks {
		if lowest == nil || t.Bandwidth < lowest.Bandwidth {
			lowest = t
		}
		if float64(t.Bandwidth) > budget {
			continue
		}
		if best == nil || t.Bandwidth > best.Bandwidth {
			best = t
			continue
		}
		if t.Bandwidth == best.Bandwidth && pixels(t) > pixels(best) {
			best = t
		}
	}

	if best == nil {
		best = lowest
	}
	return best.ID, true
}

func pixels(t *model.Track) int {
	return t.Width * t.Height
}
