package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"hlsplayd/internal/abr"
	"hlsplayd/internal/bandwidth"
	"hlsplayd/internal/buffer"
	"hlsplayd/internal/fetch"
	"hlsplayd/internal/logger"
	"hlsplayd/internal/manifest"
	"hlsplayd/internal/metrics"
	"hlsplayd/internal/model"
	"hlsplayd/internal/sink"
	"hlsplayd/internal/state"
)

// tickInterval drives the playhead container, which in turn re-evaluates
// the pipeline gates as playback advances.
const tickInterval = 500 * time.Millisecond

// Player runs one presentation end to end: manifest fetch and parse, track
// resolution, quality selection, and the segment pipeline.
type Player struct {
	cfg     Config
	log     logger.Logger
	fetcher fetch.Fetcher
	sinks   map[model.TrackType]sink.MediaSink
	clock   Clock
	met     *metrics.Metrics

	sched       *state.Scheduler
	selection   *state.Container[Selection]
	bandwidthSt *state.Container[bandwidth.State]
	playhead    *state.Container[float64]

	// modelMu guards the presentation model; tracks are mutated in place
	// by the resolver while readers take snapshots.
	modelMu      sync.Mutex
	presentation *model.Presentation
	parseWarns   []string

	resolver *resolver
	pipeline *pipeline

	mu        sync.Mutex
	fatalErr  error
	started   bool
	reactorCs []func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPlayer assembles a session. sinks must contain an entry for every
// track type the caller wants media for; types without a sink are resolved
// but never fetched.
func NewPlayer(
	cfg Config,
	fetcher fetch.Fetcher,
	sinks map[model.TrackType]sink.MediaSink,
	clock Clock,
	log logger.Logger,
	met *metrics.Metrics,
) *Player {
	ctx, cancel := context.WithCancel(context.Background())
	sched := state.NewScheduler()

	p := &Player{
		cfg:         cfg,
		log:         logger.WithComponent(log, "player"),
		fetcher:     fetcher,
		sinks:       sinks,
		clock:       clock,
		met:         met,
		sched:       sched,
		selection:   state.New(sched, Selection{}, state.WithEqual[Selection](selectionEqual)),
		bandwidthSt: state.New(sched, bandwidth.State{}),
		playhead:    state.New(sched, 0.0),
		ctx:         ctx,
		cancel:      cancel,
	}

	p.resolver = newResolver(ctx, log, fetcher, met, p.selection, &p.modelMu)
	p.pipeline = newPipeline(ctx, log, fetcher, sinks, clock, met, cfg, sched,
		p.selection, p.bandwidthSt, p.playhead, &p.modelMu, p.reportFatal)

	return p
}

// Load fetches and parses the multivariant playlist and seeds the selection
// state. Parse diagnostics are logged and kept for the status surface; only
// a manifest with no playable tracks at all is an error.
func (p *Player) Load(ctx context.Context, manifestURL string) error {
	data, err := p.fetcher.Fetch(ctx, model.Addressable{URL: manifestURL})
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}

	pres, warnings := manifest.ParseMultivariant(string(data), manifestURL)
	for _, w := range warnings {
		p.log.Warnf("manifest %s: %s", manifestURL, w)
	}
	if len(pres.Tracks()) == 0 {
		return fmt.Errorf("manifest %s: %w", manifestURL, ErrNoPlayableTracks)
	}

	p.modelMu.Lock()
	p.presentation = pres
	p.parseWarns = make([]string, 0, len(warnings))
	for _, w := range warnings {
		p.parseWarns = append(p.parseWarns, w.String())
	}
	audioID := defaultAudioTrackID(pres)
	p.modelMu.Unlock()

	p.selection.Set(Selection{
		AudioTrackID: audioID,
		Presentation: pres,
		Preload:      p.cfg.Preload,
		AutoQuality:  p.cfg.AutoQuality,
	})

	p.log.Infof("loaded presentation %s: %d tracks", pres.ID, len(pres.Tracks()))
	return nil
}

// Start spins up the orchestrators. Load must have succeeded first.
func (p *Player) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.resolver.start()
	p.pipeline.start()

	p.mu.Lock()
	p.reactorCs = append(p.reactorCs,
		state.CombineLatest(p.updateDuration, p.selection),
		state.CombineLatest(p.autoSelect, p.selection, p.bandwidthSt),
	)
	p.mu.Unlock()

	if wc, ok := p.clock.(*WallClock); ok {
		wc.Start()
	}

	p.wg.Add(1)
	go p.tickLoop()
}

// Stop cancels all in-flight work and shuts the session down.
func (p *Player) Stop() {
	p.cancel()
	p.mu.Lock()
	cancels := p.reactorCs
	p.reactorCs = nil
	p.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	p.pipeline.stop()
	p.resolver.stop()
	p.wg.Wait()
	p.sched.Close()
	p.log.Infof("player stopped")
}

// SelectTrack makes the given track active for its type. Picking a video
// track by hand turns automatic quality selection off.
func (p *Player) SelectTrack(id string) error {
	p.modelMu.Lock()
	var track *model.Track
	var ok bool
	if p.presentation != nil {
		track, ok = p.presentation.FindTrack(id)
	}
	p.modelMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}

	p.selection.Patch(func(s Selection) Selection {
		s = s.withTrackID(track.Type, id)
		if track.Type == model.TrackVideo {
			s.AutoQuality = false
		}
		return s
	})
	return nil
}

// updateDuration reacts to track resolutions and patches the presentation
// duration exactly once; see resolvePresentationDuration.
func (p *Player) updateDuration() {
	resolvePresentationDuration(p.selection.Get(), &p.modelMu, func(d float64) {
		if setter, ok := p.clock.(DurationSetter); ok && !math.IsInf(d, 1) {
			setter.SetDuration(d)
		}
		p.log.Infof("presentation duration resolved: %.1fs", d)
		// Wake observers gated on the duration.
		p.selection.Patch(func(s Selection) Selection {
			s.Revision++
			return s
		})
	})
}

// autoSelect is the ABR reactor: on any bandwidth or selection change it
// re-picks the video track from the estimate.
func (p *Player) autoSelect() {
	sel := p.selection.Get()
	if sel.Presentation == nil || !sel.AutoQuality {
		return
	}

	estimate := bandwidth.Estimate(p.bandwidthSt.Get(), p.cfg.DefaultBandwidthBps, p.cfg.Bandwidth)
	p.met.SetBandwidthEstimate(estimate)

	p.modelMu.Lock()
	set, ok := sel.Presentation.SwitchingSetFor(model.TrackVideo)
	p.modelMu.Unlock()
	if !ok {
		return
	}

	chosen, ok := abr.SelectQuality(set, estimate, p.cfg.ABR)
	if !ok || chosen == sel.VideoTrackID {
		return
	}

	if sel.VideoTrackID != "" {
		p.met.QualitySwitch()
		p.log.Infof("switching video track %s -> %s (estimate %.0f bps)", sel.VideoTrackID, chosen, estimate)
	}
	p.selection.Patch(func(s Selection) Selection {
		if !s.AutoQuality {
			return s
		}
		return s.withTrackID(model.TrackVideo, chosen)
	})
}

// tickLoop advances the playhead container as the clock moves, which
// re-evaluates the pipeline gates, and refreshes the buffering gauges.
func (p *Player) tickLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			pos := p.clock.Playhead()
			p.playhead.Set(pos)
			if dest, ok := p.sinks[model.TrackVideo]; ok {
				p.met.SetBufferedSeconds(dest.Buffered().BufferedAheadOf(pos))
			}
		}
	}
}

func (p *Player) reportFatal(err error) {
	p.mu.Lock()
	if p.fatalErr == nil {
		p.fatalErr = err
	}
	p.mu.Unlock()
}

// TrackStatus describes one track for the status surface.
type TrackStatus struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Bandwidth int64   `json:"bandwidth,omitempty"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Language  string  `json:"language,omitempty"`
	Name      string  `json:"name,omitempty"`
	Resolved  bool    `json:"resolved"`
	Segments  int     `json:"segments"`
	Duration  float64 `json:"duration,omitempty"`
	Selected  bool    `json:"selected"`
}

// Status is a point-in-time snapshot of the session.
type Status struct {
	StreamType        string                  `json:"streamType"`
	Duration          float64                 `json:"duration"`
	Playhead          float64                 `json:"playhead"`
	PlayheadBuffered  bool                    `json:"playheadBuffered"`
	BandwidthEstimate float64                 `json:"bandwidthEstimateBps"`
	GoodEstimate      bool                    `json:"goodEstimate"`
	Selected          map[string]string       `json:"selected"`
	Buffered          map[string][]BufferedAt `json:"buffered"`
	Tracks            []TrackStatus           `json:"tracks"`
	Warnings          []string                `json:"warnings,omitempty"`
	FatalError        string                  `json:"fatalError,omitempty"`
}

// BufferedAt is one buffered range in the status payload.
type BufferedAt struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Snapshot assembles the current status.
func (p *Player) Snapshot() Status {
	sel := p.selection.Get()
	bwState := p.bandwidthSt.Get()
	pos := p.clock.Playhead()

	st := Status{
		Playhead:          pos,
		BandwidthEstimate: bandwidth.Estimate(bwState, p.cfg.DefaultBandwidthBps, p.cfg.Bandwidth),
		GoodEstimate:      bandwidth.HasGoodEstimate(bwState, p.cfg.Bandwidth),
		Selected:          make(map[string]string),
		Buffered:          make(map[string][]BufferedAt),
	}

	for _, typ := range trackTypes {
		if id := sel.TrackID(typ); id != "" {
			st.Selected[string(typ)] = id
		}
		if dest, ok := p.sinks[typ]; ok {
			for _, r := range dest.Buffered() {
				st.Buffered[string(typ)] = append(st.Buffered[string(typ)], BufferedAt{Start: r.Start, End: r.End})
			}
		}
	}

	p.modelMu.Lock()
	if p.presentation != nil {
		st.Duration = p.presentation.Duration
		st.Warnings = append(st.Warnings, p.parseWarns...)
		for _, t := range p.presentation.Tracks() {
			ts := TrackStatus{
				ID:        t.ID,
				Type:      string(t.Type),
				Bandwidth: t.Bandwidth,
				Width:     t.Width,
				Height:    t.Height,
				Language:  t.Language,
				Name:      t.Name,
				Resolved:  t.Resolved(),
				Selected:  sel.TrackID(t.Type) == t.ID,
			}
			if t.Resolved() {
				ts.Segments = len(t.Media.Segments)
				ts.Duration = t.Media.Duration
			}
			st.Tracks = append(st.Tracks, ts)
		}
	}
	p.modelMu.Unlock()

	seekable := buffer.TimeRanges(nil)
	if dest, ok := p.sinks[model.TrackVideo]; ok {
		seekable = dest.Buffered()
	}
	st.PlayheadBuffered = seekable.Contains(pos)
	st.StreamType = string(manifest.StreamTypeFor(st.Duration, seekable))

	p.mu.Lock()
	if p.fatalErr != nil {
		st.FatalError = p.fatalErr.Error()
	}
	p.mu.Unlock()

	return st
}

// defaultAudioTrackID picks the first audio rendition, if any, so audio
// resolves alongside the ABR-chosen video track.
func defaultAudioTrackID(pres *model.Presentation) string {
	set, ok := pres.SwitchingSetFor(model.TrackAudio)
	if !ok || len(set.Tracks) == 0 {
		return ""
	}
	return set.Tracks[0].ID
}
