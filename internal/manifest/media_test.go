package manifest_test

import (
	"testing"

	"github.com/matryer/is"

	"hlsplayd/internal/manifest"
	"hlsplayd/internal/model"
)

const mediaFixture = `#EXTM3U
#EXT-X-VERSION:7
#EXT-X-TARGETDURATION:6
#EXT-X-PLAYLIST-TYPE:VOD
#EXT-X-MAP:URI="init.mp4"
#EXTINF:6.006,
seg0.m4s
#EXTINF:6.006,
seg1.m4s
#EXTINF:3.2,
seg2.m4s
#EXT-X-ENDLIST
`

func TestParseMediaPlaylist(t *testing.T) {
	is := is.New(t)

	info, warnings := manifest.ParseMediaPlaylist(mediaFixture, "https://cdn.example.com/v/playlist.m3u8")
	is.Equal(len(warnings), 0)

	is.Equal(info.TargetDuration, 6.0)
	is.Equal(info.PlaylistType, "VOD")
	is.True(info.EndList)
	is.Equal(info.MediaSequence, int64(0))

	is.True(info.Initialization != nil)
	is.Equal(info.Initialization.URL, "https://cdn.example.com/v/init.mp4")
	is.True(info.Initialization.ByteRange == nil)

	is.Equal(len(info.Segments), 3)
	// Start times are the running sum of prior durations; the expected
	// values accumulate the same way so rounding matches.
	d, last := 6.006, 3.2
	is.Equal(info.Segments[0].StartTime, 0.0)
	is.Equal(info.Segments[1].StartTime, d)
	is.Equal(info.Segments[2].StartTime, d+d)
	is.Equal(info.Segments[0].ID, "0")
	is.Equal(info.Segments[2].ID, "2")
	is.Equal(info.Segments[0].Addressable.URL, "https://cdn.example.com/v/seg0.m4s")
	is.Equal(info.Duration, d+d+last)
}

func TestParseMediaPlaylistMediaSequenceNumbersSegments(t *testing.T) {
	is := is.New(t)

	input := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:120
#EXTINF:6,
seg120.ts
#EXTINF:6,
seg121.ts
`
	info, warnings := manifest.ParseMediaPlaylist(input, "https://cdn.example.com/v/playlist.m3u8")
	is.Equal(len(warnings), 0)
	is.Equal(info.MediaSequence, int64(120))
	is.Equal(info.Segments[0].ID, "120")
	is.Equal(info.Segments[1].ID, "121")
	is.True(!info.EndList)
}

func TestParseMediaPlaylistByteRanges(t *testing.T) {
	is := is.New(t)

	input := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-MAP:URI="all.mp4",BYTERANGE="720@0"
#EXTINF:6,
#EXT-X-BYTERANGE:1000@720
all.mp4
#EXTINF:6,
#EXT-X-BYTERANGE:2000
all.mp4
#EXT-X-ENDLIST
`
	info, warnings := manifest.ParseMediaPlaylist(input, "https://cdn.example.com/v/playlist.m3u8")
	is.Equal(len(warnings), 0)

	is.Equal(*info.Initialization.ByteRange, model.ByteRange{Start: 0, End: 719})
	is.Equal(*info.Segments[0].Addressable.ByteRange, model.ByteRange{Start: 720, End: 1719})
	// No explicit offset: the range starts at the byte after the previous one.
	is.Equal(*info.Segments[1].Addressable.ByteRange, model.ByteRange{Start: 1720, End: 3719})
}

func TestParseMediaPlaylistBestEffort(t *testing.T) {
	is := is.New(t)

	input := `#EXTM3U
#EXT-X-TARGETDURATION:six
#EXTINF:abc,
bad.ts
orphan.ts
#EXTINF:6,
good.ts
`
	info, warnings := manifest.ParseMediaPlaylist(input, "https://cdn.example.com/v/playlist.m3u8")

	// Malformed lines produce warnings, never a parse failure.
	is.Equal(len(warnings), 3)
	is.Equal(len(info.Segments), 2)
	is.Equal(info.Segments[0].Duration, 0.0)
	is.Equal(info.Segments[1].Duration, 6.0)
	is.Equal(info.TargetDuration, 0.0)
}

func TestParseMediaPlaylistCRLF(t *testing.T) {
	is := is.New(t)

	input := "#EXTM3U\r\n#EXT-X-TARGETDURATION:6\r\n#EXTINF:6,\r\nseg0.ts\r\n#EXT-X-ENDLIST\r\n"
	info, warnings := manifest.ParseMediaPlaylist(input, "https://cdn.example.com/v/playlist.m3u8")
	is.Equal(len(warnings), 0)
	is.Equal(len(info.Segments), 1)
	is.True(info.EndList)
}
