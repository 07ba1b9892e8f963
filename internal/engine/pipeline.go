package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hlsplayd/internal/bandwidth"
	"hlsplayd/internal/buffer"
	"hlsplayd/internal/fetch"
	"hlsplayd/internal/logger"
	"hlsplayd/internal/metrics"
	"hlsplayd/internal/model"
	"hlsplayd/internal/sink"
	"hlsplayd/internal/state"
)

// pipeline is the segment loading orchestrator. A run fetches and appends
// one track's segments strictly serially: the initialization segment first,
// unconditionally, then media segments in playlist order. Runs happen per
// track type against that type's own sink, so the "at most one active
// append sequence per sink" invariant is enforced by the per-type in-flight
// guard.
//
// Failure policy: a failed media segment is logged, counted, and skipped so
// partial playback stays possible; a failed initialization segment aborts
// the run, since nothing after it could be decoded; cancellation stops the
// run silently.
type pipeline struct {
	log     logger.Logger
	fetcher fetch.Fetcher
	sinks   map[model.TrackType]sink.MediaSink
	clock   Clock
	met     *metrics.Metrics
	cfg     Config

	sched       *state.Scheduler
	selection   *state.Container[Selection]
	bandwidthSt *state.Container[bandwidth.State]
	playhead    *state.Container[float64]
	modelMu     *sync.Mutex

	// onFatal reports playback-blocking failures to the session.
	onFatal func(error)

	ctx context.Context

	mu           sync.Mutex
	inFlight     map[model.TrackType]bool
	initAppended map[string]bool
	// failed marks tracks whose initialization segment failed; they are
	// never planned again.
	failed map[string]bool

	cancel func()
	wg     sync.WaitGroup
}

func newPipeline(
	ctx context.Context,
	log logger.Logger,
	fetcher fetch.Fetcher,
	sinks map[model.TrackType]sink.MediaSink,
	clock Clock,
	met *metrics.Metrics,
	cfg Config,
	sched *state.Scheduler,
	selection *state.Container[Selection],
	bandwidthSt *state.Container[bandwidth.State],
	playhead *state.Container[float64],
	modelMu *sync.Mutex,
	onFatal func(error),
) *pipeline {
	return &pipeline{
		log:          logger.WithComponent(log, "pipeline"),
		fetcher:      fetcher,
		sinks:        sinks,
		clock:        clock,
		met:          met,
		cfg:          cfg,
		sched:        sched,
		selection:    selection,
		bandwidthSt:  bandwidthSt,
		playhead:     playhead,
		modelMu:      modelMu,
		onFatal:      onFatal,
		ctx:          ctx,
		inFlight:     make(map[model.TrackType]bool),
		initAppended: make(map[string]bool),
		failed:       make(map[string]bool),
	}
}

func (p *pipeline) start() {
	p.cancel = state.CombineLatest(p.check, p.selection, p.bandwidthSt, p.playhead)
}

func (p *pipeline) stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// runPlan is the immutable task list for one serial run, snapshotted from
// the model under lock before any fetching starts.
type runPlan struct {
	trackID  string
	typ      model.TrackType
	init     *model.Addressable
	initDone bool
	segments []model.Segment
}

// check runs after every flush that touched the selection, bandwidth, or
// playhead state. It gates each track type on the load conditions and
// starts at most one run per type.
func (p *pipeline) check() {
	sel := p.selection.Get()
	if sel.Presentation == nil || sel.Preload != PreloadFull {
		return
	}

	for _, typ := range trackTypes {
		plan, ok := p.planFor(sel, typ)
		if !ok {
			continue
		}

		p.mu.Lock()
		if p.inFlight[typ] {
			p.mu.Unlock()
			continue
		}
		p.inFlight[typ] = true
		p.mu.Unlock()

		p.wg.Add(1)
		go p.run(plan)
	}
}

// planFor decides whether the given track type needs a run and, if so,
// snapshots the ordered task list: the init segment when not yet appended,
// then every media segment between the buffered end and the forward-buffer
// target.
func (p *pipeline) planFor(sel Selection, typ model.TrackType) (runPlan, bool) {
	id := sel.TrackID(typ)
	if id == "" {
		return runPlan{}, false
	}
	dest, ok := p.sinks[typ]
	if !ok {
		return runPlan{}, false
	}

	p.modelMu.Lock()
	track, ok := sel.Presentation.FindTrack(id)
	if !ok || !track.Resolved() || len(track.Media.Segments) == 0 {
		p.modelMu.Unlock()
		return runPlan{}, false
	}
	duration := sel.Presentation.Duration
	init := track.Media.Initialization
	all := track.Media.Segments
	p.modelMu.Unlock()

	buffered := dest.Buffered()
	target := buffer.ForwardTarget(p.clock.Playhead(), duration, p.cfg.Buffer)
	edge := buffered.End()
	if edge >= target {
		return runPlan{}, false
	}

	var wanted []model.Segment
	for _, seg := range all {
		if seg.EndTime() <= edge || seg.StartTime >= target {
			continue
		}
		wanted = append(wanted, seg)
	}

	p.mu.Lock()
	initDone := p.initAppended[id]
	dead := p.failed[id]
	p.mu.Unlock()
	if dead {
		return runPlan{}, false
	}

	if len(wanted) == 0 && (initDone || init == nil) {
		return runPlan{}, false
	}

	return runPlan{
		trackID:  id,
		typ:      typ,
		init:     init,
		initDone: initDone,
		segments: wanted,
	}, true
}

// run executes one serial fetch-and-append sequence. The in-flight guard is
// cleared only after the scheduler has settled, so the state updates this
// run itself produced cannot immediately re-trigger a second run; once
// cleared, check runs again to pick up any remaining gap.
func (p *pipeline) run(plan runPlan) {
	defer p.wg.Done()
	defer func() {
		p.sched.Sync()
		p.mu.Lock()
		p.inFlight[plan.typ] = false
		p.mu.Unlock()
		if p.ctx.Err() == nil {
			p.check()
		}
	}()

	dest := p.sinks[plan.typ]

	if plan.init != nil && !plan.initDone {
		if err := p.appendInit(plan, dest); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.mu.Lock()
			p.failed[plan.trackID] = true
			p.mu.Unlock()
			p.met.SegmentFailed(string(plan.typ))
			p.log.Errorf("track %s: %v", plan.trackID, err)
			p.onFatal(fmt.Errorf("track %s: %w", plan.trackID, ErrInitSegmentFailed))
			return
		}
	}

	for _, seg := range plan.segments {
		if p.ctx.Err() != nil {
			return
		}

		started := time.Now()
		data, err := p.fetcher.Fetch(p.ctx, seg.Addressable)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.met.SegmentFailed(string(plan.typ))
			p.met.SegmentSkipped(string(plan.typ))
			p.log.Warnf("track %s segment %s: fetch failed, skipping: %v", plan.trackID, seg.ID, err)
			continue
		}
		elapsedMs := float64(time.Since(started)) / float64(time.Millisecond)

		p.bandwidthSt.Patch(func(st bandwidth.State) bandwidth.State {
			return bandwidth.Sample(st, elapsedMs, int64(len(data)), p.cfg.Bandwidth)
		})

		span := buffer.Range{Start: seg.StartTime, End: seg.EndTime()}
		if err := dest.Append(p.ctx, span, data); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.met.SegmentFailed(string(plan.typ))
			p.met.SegmentSkipped(string(plan.typ))
			p.log.Warnf("track %s segment %s: append failed, skipping: %v", plan.trackID, seg.ID, err)
			continue
		}
		p.met.SegmentFetched(string(plan.typ), len(data))
	}

	p.evict(dest)
}

// appendInit fetches and appends the initialization segment. Its payload
// occupies bytes but no presentation time, so the span is empty.
func (p *pipeline) appendInit(plan runPlan, dest sink.MediaSink) error {
	data, err := p.fetcher.Fetch(p.ctx, *plan.init)
	if err != nil {
		return fmt.Errorf("fetch init segment: %w", err)
	}
	if err := dest.Append(p.ctx, buffer.Range{}, data); err != nil {
		return fmt.Errorf("append init segment: %w", err)
	}

	p.mu.Lock()
	p.initAppended[plan.trackID] = true
	p.mu.Unlock()
	p.log.Debugf("track %s: initialization segment appended (%d bytes)", plan.trackID, len(data))
	return nil
}

// evict removes already-played media behind the back-buffer boundary.
// Never evicts ahead of the playhead.
func (p *pipeline) evict(dest sink.MediaSink) {
	boundary := buffer.BackBufferBoundary(p.clock.Playhead(), p.cfg.Buffer)
	buffered := dest.Buffered()
	if len(buffered) == 0 || buffered.Start() >= boundary {
		return
	}
	if err := dest.Remove(buffered.Start(), boundary); err != nil {
		p.log.Warnf("back-buffer eviction failed: %v", err)
	}
}
