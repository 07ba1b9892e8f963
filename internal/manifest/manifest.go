// Package manifest parses HTTP Live Streaming playlists into the typed
// presentation model. Parsing is best-effort by design: malformed input
// never produces an error, only a partial structure plus a list of
// recoverable diagnostics for the caller to surface.
package manifest

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"hlsplayd/internal/model"
)

// Warning is a recoverable diagnostic produced while parsing.
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// MediaPlaylistInfo is the parsed form of a media playlist: everything a
// track needs to go from partially resolved to resolved.
type MediaPlaylistInfo struct {
	TargetDuration float64
	// PlaylistType is the EXT-X-PLAYLIST-TYPE value: "VOD", "EVENT" or "".
	PlaylistType  string
	EndList       bool
	MediaSequence int64
	// Initialization is the EXT-X-MAP resource, if any.
	Initialization *model.Addressable
	// Segments carry cumulative timing: each StartTime is the sum of all
	// prior durations.
	Segments []model.Segment
	// Duration is the sum of all segment durations.
	Duration float64
}

// reAttr matches one KEY=VALUE pair in an HLS attribute list, where VALUE
// is either a quoted string or a bare token.
var reAttr = regexp.MustCompile(`([A-Za-z0-9_-]+)=("[^"]*"|[^",]+)`)

// parseAttributes splits an HLS attribute list into a map, stripping quotes
// from quoted values.
func parseAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	for _, kv := range reAttr.FindAllStringSubmatch(list, -1) {
		attrs[kv[1]] = strings.Trim(kv[2], `"`)
	}
	return attrs
}

// tagValue returns the text after "#TAG:" for a line known to start with
// that tag.
func tagValue(line, tag string) string {
	return strings.TrimPrefix(line, tag+":")
}

// ResolveURL resolves ref against base per standard relative-URL rules.
// Every Addressable the parser emits has been through this, so no caller
// ever resolves a relative URL itself. Unparseable input falls back to ref
// unchanged, keeping parsing total.
func ResolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// lines splits playlist text for line-oriented scanning, tolerating CRLF.
func lines(text string) []string {
	out := strings.Split(text, "\n")
	for i, l := range out {
		out[i] = strings.TrimSuffix(strings.TrimSpace(l), "\r")
	}
	return out
}

func defaultMimeType(typ model.TrackType) string {
	switch typ {
	case model.TrackAudio:
		return "audio/mp4"
	case model.TrackText:
		return "text/vtt"
	default:
		return "video/mp4"
	}
}
