package engine_test

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsplayd/internal/engine"
	"hlsplayd/internal/logger"
	"hlsplayd/internal/metrics"
	"hlsplayd/internal/model"
	"hlsplayd/internal/sink"
)

// fakeFetcher serves canned responses from memory and records every fetch
// in order, so tests can assert on exact request sequences.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     []string
	responses map[string][]byte
	fail      map[string]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string][]byte),
		fail:      make(map[string]bool),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, res model.Addressable) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, res.URL)
	failing := f.fail[res.URL]
	data, ok := f.responses[res.URL]
	f.mu.Unlock()

	if failing {
		return nil, fmt.Errorf("fetch of %s failed after 3 attempts", res.URL)
	}
	if !ok {
		return nil, fmt.Errorf("no response for %s", res.URL)
	}
	return data, nil
}

func (f *fakeFetcher) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

const (
	masterURL   = "https://cdn.test/main.m3u8"
	playlistURL = "https://cdn.test/video.m3u8"
	initURL     = "https://cdn.test/init.mp4"
	seg0URL     = "https://cdn.test/seg0.m4s"
	seg1URL     = "https://cdn.test/seg1.m4s"
	seg2URL     = "https://cdn.test/seg2.m4s"
)

const singleVariantManifest = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=1280x720
video.m3u8
`

const vodPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXT-X-PLAYLIST-TYPE:VOD
#EXT-X-MAP:URI="init.mp4"
#EXTINF:6,
seg0.m4s
#EXTINF:6,
seg1.m4s
#EXTINF:4,
seg2.m4s
#EXT-X-ENDLIST
`

func (f *fakeFetcher) serveVOD() {
	f.responses[masterURL] = []byte(singleVariantManifest)
	f.responses[playlistURL] = []byte(vodPlaylist)
	f.responses[initURL] = make([]byte, 720)
	f.responses[seg0URL] = make([]byte, 4000)
	f.responses[seg1URL] = make([]byte, 4000)
	f.responses[seg2URL] = make([]byte, 2000)
}

func newTestPlayer(ff *fakeFetcher, preload engine.PreloadIntent) (*engine.Player, *sink.MemorySink, *engine.ManualClock) {
	cfg := engine.DefaultConfig()
	cfg.Preload = preload

	videoSink := sink.NewMemorySink(logger.Nop{})
	clock := engine.NewManualClock(0)
	sinks := map[model.TrackType]sink.MediaSink{model.TrackVideo: videoSink}

	p := engine.NewPlayer(cfg, ff, sinks, clock, logger.Nop{}, metrics.New())
	return p, videoSink, clock
}

func TestPlayerFetchesInitFirstThenSegmentsInOrder(t *testing.T) {
	ff := newFakeFetcher()
	ff.serveVOD()
	p, videoSink, _ := newTestPlayer(ff, engine.PreloadFull)

	require.NoError(t, p.Load(context.Background(), masterURL))
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return videoSink.Appends() == 4
	}, 3*time.Second, 10*time.Millisecond)

	want := []string{masterURL, playlistURL, initURL, seg0URL, seg1URL, seg2URL}
	assert.Equal(t, want, ff.order())

	assert.Equal(t, 0.0, videoSink.Buffered().Start())
	assert.Equal(t, 16.0, videoSink.Buffered().End())
	assert.Equal(t, int64(720+4000+4000+2000), videoSink.BytesAppended())
}

func TestPlayerSkipsFailedMediaSegment(t *testing.T) {
	ff := newFakeFetcher()
	ff.serveVOD()
	ff.fail[seg1URL] = true
	p, videoSink, _ := newTestPlayer(ff, engine.PreloadFull)

	require.NoError(t, p.Load(context.Background(), masterURL))
	p.Start()
	defer p.Stop()

	// init + seg0 + seg2; seg1 is skipped, not retried forever.
	require.Eventually(t, func() bool {
		return videoSink.Appends() == 3
	}, 3*time.Second, 10*time.Millisecond)

	buffered := videoSink.Buffered()
	require.Len(t, buffered, 2, "the skipped segment leaves a gap")
	assert.Equal(t, 6.0, buffered[0].End)
	assert.Equal(t, 12.0, buffered[1].Start)
	assert.Equal(t, 1, ff.count(seg1URL), "a skipped segment is not retried")

	st := p.Snapshot()
	assert.Empty(t, st.FatalError, "a skipped media segment is not fatal")
}

func TestPlayerInitSegmentFailureIsFatal(t *testing.T) {
	ff := newFakeFetcher()
	ff.serveVOD()
	ff.fail[initURL] = true
	p, videoSink, clock := newTestPlayer(ff, engine.PreloadFull)

	require.NoError(t, p.Load(context.Background(), masterURL))
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return p.Snapshot().FatalError != ""
	}, 3*time.Second, 10*time.Millisecond)

	assert.Contains(t, p.Snapshot().FatalError, engine.ErrInitSegmentFailed.Error())
	assert.False(t, p.Snapshot().PlayheadBuffered)
	assert.Equal(t, 0, videoSink.Appends())
	assert.Equal(t, 0, ff.count(seg0URL), "no media fetch without an init segment")

	// Nudging the state around must not replan the dead track.
	clock.SetPlayhead(1)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, ff.count(initURL))
}

func TestPlayerResolvesPlaylistOnlyOnce(t *testing.T) {
	ff := newFakeFetcher()
	ff.serveVOD()
	p, videoSink, clock := newTestPlayer(ff, engine.PreloadFull)

	require.NoError(t, p.Load(context.Background(), masterURL))
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return videoSink.Appends() == 4
	}, 3*time.Second, 10*time.Millisecond)

	// Further state churn must not trigger re-resolution.
	clock.SetPlayhead(5)
	require.NoError(t, p.SelectTrack("video-1"))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, ff.count(playlistURL))
}

func TestPlayerDurationFromVideoSetOnce(t *testing.T) {
	ff := newFakeFetcher()
	ff.serveVOD()
	p, _, clock := newTestPlayer(ff, engine.PreloadFull)

	require.NoError(t, p.Load(context.Background(), masterURL))
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return p.Snapshot().Duration == 16.0
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 16.0, clock.Duration())
	assert.Equal(t, "on-demand", p.Snapshot().StreamType)
}

func TestPlayerLivePlaylistYieldsInfiniteDuration(t *testing.T) {
	ff := newFakeFetcher()
	ff.responses[masterURL] = []byte(singleVariantManifest)
	// No EXT-X-ENDLIST: the stream is live.
	ff.responses[playlistURL] = []byte("#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXTINF:6,\nseg0.m4s\n")
	p, _, clock := newTestPlayer(ff, engine.PreloadMetadata)

	require.NoError(t, p.Load(context.Background(), masterURL))
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return math.IsInf(p.Snapshot().Duration, 1)
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, "live", p.Snapshot().StreamType)
	assert.Equal(t, 0.0, clock.Duration(), "an infinite duration never reaches the clock")
}

func TestPlayerPreloadMetadataFetchesNoMedia(t *testing.T) {
	ff := newFakeFetcher()
	ff.serveVOD()
	p, videoSink, _ := newTestPlayer(ff, engine.PreloadMetadata)

	require.NoError(t, p.Load(context.Background(), masterURL))
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		for _, tr := range p.Snapshot().Tracks {
			if tr.Resolved {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, videoSink.Appends())
	assert.Equal(t, 0, ff.count(initURL))
	assert.Equal(t, 0, ff.count(seg0URL))
}

func TestPlayerLoadRejectsEmptyManifest(t *testing.T) {
	ff := newFakeFetcher()
	ff.responses[masterURL] = []byte("#EXTM3U\n")
	p, _, _ := newTestPlayer(ff, engine.PreloadFull)

	err := p.Load(context.Background(), masterURL)
	assert.ErrorIs(t, err, engine.ErrNoPlayableTracks)
}

func TestPlayerSelectTrackUnknownID(t *testing.T) {
	ff := newFakeFetcher()
	ff.serveVOD()
	p, _, _ := newTestPlayer(ff, engine.PreloadMetadata)

	require.NoError(t, p.Load(context.Background(), masterURL))
	err := p.SelectTrack("video-99")
	assert.ErrorIs(t, err, engine.ErrTrackNotFound)
}

func TestPlayerSnapshotReportsSelection(t *testing.T) {
	ff := newFakeFetcher()
	ff.serveVOD()
	p, videoSink, _ := newTestPlayer(ff, engine.PreloadFull)

	require.NoError(t, p.Load(context.Background(), masterURL))
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return videoSink.Appends() == 4
	}, 3*time.Second, 10*time.Millisecond)

	st := p.Snapshot()
	assert.Equal(t, "video-1", st.Selected["video"])
	assert.True(t, st.PlayheadBuffered, "playhead at 0 sits inside the buffered range")
	require.Len(t, st.Tracks, 1)
	assert.True(t, st.Tracks[0].Resolved)
	assert.Equal(t, 3, st.Tracks[0].Segments)
	assert.True(t, st.Tracks[0].Selected)
	require.Len(t, st.Buffered["video"], 1)
	assert.Equal(t, 16.0, st.Buffered["video"][0].End)
}
