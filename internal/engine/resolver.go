package engine

import (
	"context"
	"errors"
	"math"
	"sync"

	"hlsplayd/internal/fetch"
	"hlsplayd/internal/logger"
	"hlsplayd/internal/manifest"
	"hlsplayd/internal/metrics"
	"hlsplayd/internal/model"
	"hlsplayd/internal/state"
)

// resolver is the track resolution orchestrator. It watches the selection
// state and, for every selected track that is still partially resolved,
// fetches and parses its media playlist, merging the result into the track
// in place. An in-flight set makes concurrent triggers for the same track
// no-ops, and resolution is one-way: a resolved track is never touched
// again.
type resolver struct {
	log     logger.Logger
	fetcher fetch.Fetcher
	met     *metrics.Metrics

	selection *state.Container[Selection]
	// modelMu is the player's presentation-model lock; the resolver
	// mutates tracks in place under it.
	modelMu *sync.Mutex

	ctx context.Context

	mu        sync.Mutex
	resolving map[string]struct{}

	cancel func()
	wg     sync.WaitGroup
}

func newResolver(
	ctx context.Context,
	log logger.Logger,
	fetcher fetch.Fetcher,
	met *metrics.Metrics,
	selection *state.Container[Selection],
	modelMu *sync.Mutex,
) *resolver {
	return &resolver{
		log:       logger.WithComponent(log, "resolver"),
		fetcher:   fetcher,
		met:       met,
		selection: selection,
		modelMu:   modelMu,
		ctx:       ctx,
		resolving: make(map[string]struct{}),
	}
}

func (r *resolver) start() {
	r.cancel = state.CombineLatest(r.check, r.selection)
}

func (r *resolver) stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// check runs after every selection change. For each track type it gates on
// "a track is selected" and "that track is unresolved and not already
// resolving" before starting a fetch.
func (r *resolver) check() {
	sel := r.selection.Get()
	if sel.Presentation == nil {
		return
	}

	for _, typ := range trackTypes {
		id := sel.TrackID(typ)
		if id == "" {
			continue
		}

		r.modelMu.Lock()
		track, ok := sel.Presentation.FindTrack(id)
		resolved := ok && track.Resolved()
		r.modelMu.Unlock()
		if !ok {
			r.log.Warnf("selected %s track %q not in presentation", typ, id)
			continue
		}
		if resolved {
			continue
		}

		r.mu.Lock()
		if _, busy := r.resolving[id]; busy {
			r.mu.Unlock()
			continue
		}
		r.resolving[id] = struct{}{}
		r.mu.Unlock()

		r.wg.Add(1)
		go r.resolve(track)
	}
}

func (r *resolver) resolve(track *model.Track) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.resolving, track.ID)
		r.mu.Unlock()
	}()

	data, err := r.fetcher.Fetch(r.ctx, track.Playlist)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.log.Warnf("fetching media playlist for track %s: %v", track.ID, err)
		return
	}

	info, warnings := manifest.ParseMediaPlaylist(string(data), track.Playlist.URL)
	for _, w := range warnings {
		r.log.Warnf("media playlist for track %s: %s", track.ID, w)
	}

	r.modelMu.Lock()
	if !track.Resolved() {
		track.Media = &model.TrackMedia{
			StartTime:      0,
			Duration:       info.Duration,
			Initialization: info.Initialization,
			Segments:       info.Segments,
			Ended:          info.EndList,
		}
	}
	r.modelMu.Unlock()

	r.met.TrackResolved()
	r.log.Infof("resolved track %s: %d segments, %.1fs", track.ID, len(info.Segments), info.Duration)

	r.selection.Patch(func(s Selection) Selection {
		s.Revision++
		return s
	})
}

// resolvePresentationDuration patches the presentation's duration exactly
// once, from the first resolved video track, falling back to the first
// resolved audio track. A live playlist (no end-list marker) yields an
// infinite duration. Runs after every selection change; a no-op once the
// duration is set.
func resolvePresentationDuration(sel Selection, modelMu *sync.Mutex, onSet func(float64)) {
	if sel.Presentation == nil {
		return
	}

	modelMu.Lock()
	if sel.Presentation.Duration != 0 {
		modelMu.Unlock()
		return
	}

	var source *model.Track
	for _, t := range sel.Presentation.Tracks() {
		if t.Type == model.TrackVideo && t.Resolved() {
			source = t
			break
		}
	}
	if source == nil {
		for _, t := range sel.Presentation.Tracks() {
			if t.Type == model.TrackAudio && t.Resolved() {
				source = t
				break
			}
		}
	}
	if source == nil {
		modelMu.Unlock()
		return
	}

	duration := source.Media.Duration
	if !source.Media.Ended {
		duration = math.Inf(1)
	}
	sel.Presentation.Duration = duration
	modelMu.Unlock()

	if onSet != nil {
		onSet(duration)
	}
}
