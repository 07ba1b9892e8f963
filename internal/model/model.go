package model

// ByteRange addresses a sub-range of a resource, inclusive on both ends.
type ByteRange struct {
	Start int64
	End   int64
}

// Addressable is any fetchable resource: a fully-qualified URL plus an
// optional byte range within it.
type Addressable struct {
	URL       string
	ByteRange *ByteRange
}

// TrackType classifies a track's content.
type TrackType string

const (
	TrackVideo TrackType = "video"
	TrackAudio TrackType = "audio"
	TrackText  TrackType = "text"
)

// Segment is a single fetchable piece of media with its position on the
// presentation timeline. Segments are immutable once produced by the parser.
type Segment struct {
	ID string
	Addressable
	// StartTime is the running sum of the durations of all prior segments
	// in the same media playlist, in seconds.
	StartTime float64
	Duration  float64
}

// EndTime returns the segment's position plus its duration.
func (s Segment) EndTime() float64 {
	return s.StartTime + s.Duration
}

// TrackMedia holds the fields of a track that are only known after its
// media playlist has been fetched. A track whose Media is nil is partially
// resolved: known only from the multivariant playlist.
type TrackMedia struct {
	// StartTime is always 0 in the single-period model.
	StartTime      float64
	Duration       float64
	Initialization *Addressable
	Segments       []Segment
	// Ended is the media playlist's end-list marker: true for VOD and
	// finished EVENT playlists, false while the stream is still live.
	Ended bool
}

// Track is one rendition within a switching set. Identity and
// multivariant-level metadata are fixed at parse time; Media is populated
// in place, exactly once, when the track's media playlist resolves.
type Track struct {
	ID        string
	Type      TrackType
	MimeType  string
	Codecs    string
	Bandwidth int64
	Language  string
	Name      string
	GroupID   string
	Width     int
	Height    int
	FrameRate float64

	// Playlist addresses the track's media playlist.
	Playlist Addressable

	Media *TrackMedia
}

// Resolved reports whether the track's media playlist has been fetched and
// merged. The transition is one-way: once resolved, a track stays resolved.
func (t *Track) Resolved() bool {
	return t.Media != nil
}

// SwitchingSet groups tracks that are mutually interchangeable, e.g. the
// bitrate renditions of the same video content. Membership is fixed at
// parse time.
type SwitchingSet struct {
	ID     string
	Type   TrackType
	Tracks []*Track
}

// FindTrack returns the member track with the given id.
func (s *SwitchingSet) FindTrack(id string) (*Track, bool) {
	for _, t := range s.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// SelectionSet groups switching sets by content type.
type SelectionSet struct {
	ID            string
	Type          TrackType
	SwitchingSets []*SwitchingSet
}

// Presentation is the root of the parsed manifest model.
type Presentation struct {
	ID       string
	Manifest Addressable

	// Duration in seconds. 0 means not yet known; +Inf means live. It is
	// patched exactly once, from the first track that resolves.
	Duration float64

	SelectionSets []*SelectionSet
}

// FindTrack locates a track anywhere in the presentation by id.
func (p *Presentation) FindTrack(id string) (*Track, bool) {
	if id == "" {
		return nil, false
	}
	for _, sel := range p.SelectionSets {
		for _, sw := range sel.SwitchingSets {
			if t, ok := sw.FindTrack(id); ok {
				return t, true
			}
		}
	}
	return nil, false
}

// SwitchingSetFor returns the first switching set of the given type, which
// in the single-period model is the set ABR chooses from.
func (p *Presentation) SwitchingSetFor(typ TrackType) (*SwitchingSet, bool) {
	for _, sel := range p.SelectionSets {
		if sel.Type != typ {
			continue
		}
		for _, sw := range sel.SwitchingSets {
			return sw, true
		}
	}
	return nil, false
}

// Tracks returns every track in the presentation, in parse order.
func (p *Presentation) Tracks() []*Track {
	var out []*Track
	for _, sel := range p.SelectionSets {
		for _, sw := range sel.SwitchingSets {
			out = append(out, sw.Tracks...)
		}
	}
	return out
}
