package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"hlsplayd/internal/model"
)

// ParseMediaPlaylist turns media playlist text into segment and timing
// information. Segment start times are the running sum of the durations of
// all prior segments; the playlist duration is the total.
func ParseMediaPlaylist(text, baseURL string) (*MediaPlaylistInfo, []Warning) {
	info := &MediaPlaylistInfo{}
	var warnings []Warning

	var (
		pendingDuration float64
		havePending     bool
		pendingRange    *model.ByteRange
		// nextRangeStart tracks the implicit offset of a BYTERANGE tag
		// without an explicit one: the byte after the previous segment.
		nextRangeStart int64
		startTime      float64
		index          int64
		sawHeader      bool
	)

	for i, line := range lines(text) {
		n := i + 1
		switch {
		case line == "":
			continue

		case line == "#EXTM3U":
			sawHeader = true

		case strings.HasPrefix(line, "#EXTINF:"):
			value := tagValue(line, "#EXTINF")
			durText, _, _ := strings.Cut(value, ",")
			dur, err := strconv.ParseFloat(strings.TrimSpace(durText), 64)
			if err != nil {
				warnings = append(warnings, Warning{n, fmt.Sprintf("bad EXTINF duration %q", durText)})
				dur = 0
			}
			pendingDuration = dur
			havePending = true

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			td, err := strconv.ParseFloat(tagValue(line, "#EXT-X-TARGETDURATION"), 64)
			if err != nil {
				warnings = append(warnings, Warning{n, "bad EXT-X-TARGETDURATION"})
				continue
			}
			info.TargetDuration = td

		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			info.PlaylistType = tagValue(line, "#EXT-X-PLAYLIST-TYPE")

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			seq, err := strconv.ParseInt(tagValue(line, "#EXT-X-MEDIA-SEQUENCE"), 10, 64)
			if err != nil {
				warnings = append(warnings, Warning{n, "bad EXT-X-MEDIA-SEQUENCE"})
				continue
			}
			info.MediaSequence = seq

		case line == "#EXT-X-ENDLIST":
			info.EndList = true

		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			attrs := parseAttributes(tagValue(line, "#EXT-X-MAP"))
			uri := attrs["URI"]
			if uri == "" {
				warnings = append(warnings, Warning{n, "EXT-X-MAP without URI"})
				continue
			}
			init := &model.Addressable{URL: ResolveURL(baseURL, uri)}
			if br := attrs["BYTERANGE"]; br != "" {
				r, err := parseByteRange(br, 0)
				if err != nil {
					warnings = append(warnings, Warning{n, err.Error()})
				} else {
					init.ByteRange = &r
				}
			}
			info.Initialization = init

		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			r, err := parseByteRange(tagValue(line, "#EXT-X-BYTERANGE"), nextRangeStart)
			if err != nil {
				warnings = append(warnings, Warning{n, err.Error()})
				continue
			}
			pendingRange = &r

		case strings.HasPrefix(line, "#"):
			// Unknown tags are allowed and ignored.

		default:
			if !havePending {
				warnings = append(warnings, Warning{n, fmt.Sprintf("URI %q without EXTINF", line)})
				continue
			}
			seq := info.MediaSequence + index
			seg := model.Segment{
				ID: strconv.FormatInt(seq, 10),
				Addressable: model.Addressable{
					URL:       ResolveURL(baseURL, line),
					ByteRange: pendingRange,
				},
				StartTime: startTime,
				Duration:  pendingDuration,
			}
			info.Segments = append(info.Segments, seg)

			startTime += pendingDuration
			index++
			if pendingRange != nil {
				nextRangeStart = pendingRange.End + 1
			}
			pendingDuration = 0
			havePending = false
			pendingRange = nil
		}
	}

	if !sawHeader {
		warnings = append(warnings, Warning{1, "missing #EXTM3U header"})
	}

	info.Duration = startTime
	return info, warnings
}

// parseByteRange parses "length[@offset]". Without an explicit offset the
// range starts at implicitStart, the byte after the previous segment.
func parseByteRange(value string, implicitStart int64) (model.ByteRange, error) {
	lenText, offText, hasOffset := strings.Cut(value, "@")
	length, err := strconv.ParseInt(lenText, 10, 64)
	if err != nil || length <= 0 {
		return model.ByteRange{}, fmt.Errorf("bad BYTERANGE length %q", lenText)
	}
	start := implicitStart
	if hasOffset {
		start, err = strconv.ParseInt(offText, 10, 64)
		if err != nil || start < 0 {
			return model.ByteRange{}, fmt.Errorf("bad BYTERANGE offset %q", offText)
		}
	}
	return model.ByteRange{Start: start, End: start + length - 1}, nil
}
