// Package api exposes the daemon's HTTP surface: session status, track
// listing and selection, and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hlsplayd/internal/engine"
	"hlsplayd/internal/logger"
	"hlsplayd/internal/metrics"
)

// Session is the part of the engine the API needs.
type Session interface {
	Snapshot() engine.Status
	SelectTrack(id string) error
}

type API struct {
	session Session
	logger  logger.Logger
}

// New builds the router.
func New(session Session, met *metrics.Metrics, log logger.Logger) http.Handler {
	a := &API{
		session: session,
		logger:  logger.WithComponent(log, "api"),
	}

	r := chi.NewRouter()
	r.Get("/status", a.handleStatus)
	r.Get("/tracks", a.handleTracks)
	r.Post("/tracks/{trackID}/select", a.handleSelectTrack)
	r.Method(http.MethodGet, "/metrics", met.Handler(nil))

	return r
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.session.Snapshot())
}

func (a *API) handleTracks(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.session.Snapshot().Tracks)
}

func (a *API) handleSelectTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "trackID")
	if err := a.session.SelectTrack(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrTrackNotFound) {
			status = http.StatusNotFound
		}
		a.writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"selected": id})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warnf("writing response: %v", err)
	}
}
