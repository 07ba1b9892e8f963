package manifest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"hlsplayd/internal/model"
)

// ParseMultivariant turns multivariant playlist text into a Presentation of
// partially-resolved tracks grouped into selection and switching sets.
// Variant streams become one video switching set; EXT-X-MEDIA renditions
// become audio and text switching sets keyed by GROUP-ID. All URLs are
// resolved against baseURL.
func ParseMultivariant(text, baseURL string) (*model.Presentation, []Warning) {
	var warnings []Warning

	pres := &model.Presentation{
		ID:       uuid.NewString(),
		Manifest: model.Addressable{URL: baseURL},
	}

	var (
		videoTracks []*model.Track
		audioSets   = make(map[string]*model.SwitchingSet)
		textSets    = make(map[string]*model.SwitchingSet)
		// audioOrder/textOrder preserve first-seen group order; maps alone
		// would scramble it between runs.
		audioOrder []string
		textOrder  []string
	)

	var pendingVariant map[string]string
	sawHeader := false
	variantSeq := 0

	for i, line := range lines(text) {
		n := i + 1
		switch {
		case line == "":
			continue

		case line == "#EXTM3U":
			sawHeader = true

		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			if pendingVariant != nil {
				warnings = append(warnings, Warning{n, "EXT-X-STREAM-INF without a following URI"})
			}
			pendingVariant = parseAttributes(tagValue(line, "#EXT-X-STREAM-INF"))

		case strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			attrs := parseAttributes(tagValue(line, "#EXT-X-MEDIA"))
			track, warn := renditionTrack(attrs, baseURL)
			if warn != "" {
				warnings = append(warnings, Warning{n, warn})
				continue
			}
			switch track.Type {
			case model.TrackAudio:
				addToGroup(audioSets, &audioOrder, track)
			case model.TrackText:
				addToGroup(textSets, &textOrder, track)
			}

		case strings.HasPrefix(line, "#"):
			// Unknown tags are allowed and ignored.

		default:
			// A bare URI line closes the pending variant.
			if pendingVariant == nil {
				warnings = append(warnings, Warning{n, fmt.Sprintf("URI %q without EXT-X-STREAM-INF", line)})
				continue
			}
			variantSeq++
			videoTracks = append(videoTracks, variantTrack(pendingVariant, line, baseURL, variantSeq))
			pendingVariant = nil
		}
	}

	if !sawHeader {
		warnings = append(warnings, Warning{1, "missing #EXTM3U header"})
	}
	if pendingVariant != nil {
		warnings = append(warnings, Warning{0, "EXT-X-STREAM-INF without a following URI"})
	}

	if len(videoTracks) > 0 {
		pres.SelectionSets = append(pres.SelectionSets, &model.SelectionSet{
			ID:   "video",
			Type: model.TrackVideo,
			SwitchingSets: []*model.SwitchingSet{{
				ID:     "video",
				Type:   model.TrackVideo,
				Tracks: videoTracks,
			}},
		})
	}
	if len(audioOrder) > 0 {
		sel := &model.SelectionSet{ID: "audio", Type: model.TrackAudio}
		for _, group := range audioOrder {
			sel.SwitchingSets = append(sel.SwitchingSets, audioSets[group])
		}
		pres.SelectionSets = append(pres.SelectionSets, sel)
	}
	if len(textOrder) > 0 {
		sel := &model.SelectionSet{ID: "text", Type: model.TrackText}
		for _, group := range textOrder {
			sel.SwitchingSets = append(sel.SwitchingSets, textSets[group])
		}
		pres.SelectionSets = append(pres.SelectionSets, sel)
	}

	return pres, warnings
}

// variantTrack builds a partially-resolved video track from the attributes
// of one EXT-X-STREAM-INF tag and its URI line.
func variantTrack(attrs map[string]string, uri, baseURL string, seq int) *model.Track {
	t := &model.Track{
		ID:       fmt.Sprintf("video-%d", seq),
		Type:     model.TrackVideo,
		MimeType: defaultMimeType(model.TrackVideo),
		Codecs:   attrs["CODECS"],
		GroupID:  "video",
		Playlist: model.Addressable{URL: ResolveURL(baseURL, uri)},
	}
	if bw, err := strconv.ParseInt(attrs["BANDWIDTH"], 10, 64); err == nil {
		t.Bandwidth = bw
	}
	if res := attrs["RESOLUTION"]; res != "" {
		if w, h, ok := strings.Cut(res, "x"); ok {
			t.Width, _ = strconv.Atoi(w)
			t.Height, _ = strconv.Atoi(h)
		}
	}
	if fr, err := strconv.ParseFloat(attrs["FRAME-RATE"], 64); err == nil {
		t.FrameRate = fr
	}
	return t
}

// renditionTrack builds a partially-resolved audio or text track from one
// EXT-X-MEDIA tag. A non-empty warning means the tag was skipped.
func renditionTrack(attrs map[string]string, baseURL string) (*model.Track, string) {
	var typ model.TrackType
	switch attrs["TYPE"] {
	case "AUDIO":
		typ = model.TrackAudio
	case "SUBTITLES":
		typ = model.TrackText
	case "CLOSED-CAPTIONS":
		// Carried in the video stream, nothing to fetch.
		return nil, "ignoring CLOSED-CAPTIONS rendition"
	default:
		return nil, fmt.Sprintf("unknown EXT-X-MEDIA TYPE %q", attrs["TYPE"])
	}

	uri := attrs["URI"]
	if uri == "" {
		return nil, fmt.Sprintf("EXT-X-MEDIA %s rendition without URI", attrs["TYPE"])
	}

	group := attrs["GROUP-ID"]
	name := attrs["NAME"]
	id := fmt.Sprintf("%s-%s", typ, group)
	if name != "" {
		id = fmt.Sprintf("%s-%s", id, strings.ToLower(strings.ReplaceAll(name, " ", "-")))
	}

	return &model.Track{
		ID:       id,
		Type:     typ,
		MimeType: defaultMimeType(typ),
		Language: attrs["LANGUAGE"],
		Name:     name,
		GroupID:  group,
		Playlist: model.Addressable{URL: ResolveURL(baseURL, uri)},
	}, ""
}

func addToGroup(sets map[string]*model.SwitchingSet, order *[]string, track *model.Track) {
	set, ok := sets[track.GroupID]
	if !ok {
		set = &model.SwitchingSet{ID: track.GroupID, Type: track.Type}
		sets[track.GroupID] = set
		*order = append(*order, track.GroupID)
	}
	set.Tracks = append(set.Tracks, track)
}
