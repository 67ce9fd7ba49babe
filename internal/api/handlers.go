package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kdimtricp/laptimer/internal/classify"
	"github.com/kdimtricp/laptimer/internal/database"
	"github.com/kdimtricp/laptimer/internal/lapping"
	"github.com/kdimtricp/laptimer/internal/lapstats"
	"github.com/kdimtricp/laptimer/internal/models"
	"github.com/kdimtricp/laptimer/internal/session"
)

const maxBodySize = 1 << 20

type App struct {
	Sessions    *session.Service
	SessionRepo *database.SessionRepository
	LapRepo     *database.LapRepository
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func ModelsHandler(w http.ResponseWriter, r *http.Request) {
	caps := make([]classify.Capability, len(classify.AllModels))
	for i, m := range classify.AllModels {
		caps[i] = m.Capability()
	}
	writeJSON(w, http.StatusOK, caps)
}

type createSessionRequest struct {
	Model string `json:"model"`
}

type sessionSummary struct {
	models.Session
	Live bool `json:"live"`
}

type sessionDetail struct {
	Session  models.Session    `json:"session"`
	Live     bool              `json:"live"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Laps     []models.Lap      `json:"laps"`
}

type observationsRequest struct {
	Observations []lapping.Observation `json:"observations"`
}

type frameRequest struct {
	Probabilities map[string]float64 `json:"probabilities"`
	LatencyMS     float64            `json:"latency_ms"`
	FramesDropped int                `json:"frames_dropped"`
}

func (app *App) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	model, err := classify.ParseModelType(req.Model)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := app.Sessions.Create(r.Context(), model)
	if errors.Is(err, session.ErrClosed) {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	if err != nil {
		log.Printf("[API] Failed to create session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, sessionSummary{
		Session: models.Session{ID: sess.ID, Model: model.String(), CreatedAt: sess.CreatedAt},
		Live:    true,
	})
}

func (app *App) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := app.SessionRepo.List(r.Context())
	if err != nil {
		log.Printf("[API] Failed to list sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	out := make([]sessionSummary, len(sessions))
	for i, s := range sessions {
		_, live := app.Sessions.Get(s.ID)
		out[i] = sessionSummary{Session: s, Live: live}
	}
	writeJSON(w, http.StatusOK, out)
}

func (app *App) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := app.SessionRepo.GetByID(r.Context(), id)
	if err != nil {
		app.writeRepoError(w, err)
		return
	}

	detail := sessionDetail{Session: *record}
	if snap, ok := app.liveSnapshot(r.Context(), id); ok {
		detail.Live = true
		detail.Snapshot = &snap
		detail.Laps = snap.Laps
	} else {
		detail.Laps, err = app.LapRepo.ListBySession(r.Context(), id)
		if err != nil {
			app.writeRepoError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, detail)
}

func (app *App) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := app.Sessions.CloseSession(r.Context(), id); err != nil {
		app.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) StartHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := app.Sessions.Start(r.Context(), chi.URLParam(r, "id"))
	app.writeSnapshot(w, snap, err)
}

func (app *App) StopHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := app.Sessions.Stop(r.Context(), chi.URLParam(r, "id"))
	app.writeSnapshot(w, snap, err)
}

func (app *App) ObservationsHandler(w http.ResponseWriter, r *http.Request) {
	var req observationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	snap, err := app.Sessions.Observe(r.Context(), chi.URLParam(r, "id"), req.Observations)
	app.writeSnapshot(w, snap, err)
}

func (app *App) FrameHandler(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Probabilities) == 0 {
		writeError(w, http.StatusBadRequest, "probabilities are required")
		return
	}

	frame := session.Frame{
		Probabilities: req.Probabilities,
		Latency:       time.Duration(req.LatencyMS * float64(time.Millisecond)),
		FramesDropped: req.FramesDropped,
	}

	snap, err := app.Sessions.ObserveFrame(r.Context(), chi.URLParam(r, "id"), frame)
	app.writeSnapshot(w, snap, err)
}

func (app *App) LapsHandler(w http.ResponseWriter, r *http.Request) {
	laps, ok := app.laps(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, laps)
}

func (app *App) LapSummaryHandler(w http.ResponseWriter, r *http.Request) {
	laps, ok := app.laps(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, lapstats.Summarize(laps))
}

// laps serves a live session from its loop, which includes laps the writer
// has not stored yet, and anything else from the database.
func (app *App) laps(w http.ResponseWriter, r *http.Request) ([]models.Lap, bool) {
	id := chi.URLParam(r, "id")

	if snap, ok := app.liveSnapshot(r.Context(), id); ok {
		return snap.Laps, true
	}

	if _, err := app.SessionRepo.GetByID(r.Context(), id); err != nil {
		app.writeRepoError(w, err)
		return nil, false
	}

	laps, err := app.LapRepo.ListBySession(r.Context(), id)
	if err != nil {
		app.writeRepoError(w, err)
		return nil, false
	}
	return laps, true
}

func (app *App) liveSnapshot(ctx context.Context, id string) (session.Snapshot, bool) {
	snap, err := app.Sessions.Snapshot(ctx, id)
	if err != nil {
		return session.Snapshot{}, false
	}
	return snap, true
}

func (app *App) writeSnapshot(w http.ResponseWriter, snap session.Snapshot, err error) {
	if err != nil {
		app.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (app *App) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Printf("[API] Session error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (app *App) writeRepoError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	log.Printf("[API] Database error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
