// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package api

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/replay-engine/internal/logging"
	"github.com/tomtom215/replay-engine/internal/replay"
	"github.com/tomtom215/replay-engine/internal/session"
)

var validate = validator.New()

// Handler implements the five control-API operations over a shared
// Replayer and Session Registry.
type Handler struct {
	Replayer *replay.Replayer
	Registry *session.Registry
	Defaults replay.Config
}

// NewHandler constructs a Handler with the replayer's default run settings.
func NewHandler(rp *replay.Replayer, reg *session.Registry, defaults replay.Config) *Handler {
	return &Handler{Replayer: rp, Registry: reg, Defaults: defaults}
}

type startReplayRequest struct {
	SessionID         string  `json:"session_id"`
	StartTS           string  `json:"start_ts"`
	EndTS             string  `json:"end_ts"`
	Mode              string  `json:"mode" validate:"omitempty,oneof=dry-run timed live"`
	Speed             float64 `json:"speed" validate:"omitempty,gt=0"`
	CheckpointEvery   int     `json:"checkpoint_every" validate:"omitempty,gt=0"`
	MaxEventsPerBatch int     `json:"max_events_per_batch" validate:"omitempty,gt=0"`
}

// StartReplay handles POST /replay/start: it allocates a new replay_id,
// registers a pending session, and launches the replay in the background.
// The HTTP response returns as soon as the session is registered — callers
// poll GET /replay/status for progress.
func (h *Handler) StartReplay(w http.ResponseWriter, r *http.Request) {
	var req startReplayRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			NewResponseWriter(w, r).BadRequest("invalid request body: " + err.Error())
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		NewResponseWriter(w, r).ValidationError("invalid replay parameters", err.Error())
		return
	}

	cfg := h.Defaults
	cfg.SessionID = req.SessionID
	cfg.StartTS = req.StartTS
	cfg.EndTS = req.EndTS
	if req.Mode != "" {
		cfg.Mode = replay.Mode(req.Mode)
	}
	if req.Speed > 0 {
		cfg.Speed = req.Speed
	}
	if req.CheckpointEvery > 0 {
		cfg.CheckpointEvery = req.CheckpointEvery
	}
	if req.MaxEventsPerBatch > 0 {
		cfg.MaxEventsPerBatch = req.MaxEventsPerBatch
	}

	cfg.ReplayID = "r-" + uuid.New().String()[:8]

	if _, err := h.Registry.Create(cfg.ReplayID, session.Config{
		Mode:            string(cfg.Mode),
		Speed:           cfg.Speed,
		SessionIDFilter: cfg.SessionID,
		StartTS:         cfg.StartTS,
		EndTS:           cfg.EndTS,
	}); err != nil {
		NewResponseWriter(w, r).Conflict(err.Error())
		return
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Error().Interface("panic", rec).Str("replay_id", cfg.ReplayID).Msg("replay: run panicked")
				_, _ = h.Registry.UpdateStatus(cfg.ReplayID, session.StatusFailed, "internal error")
			}
		}()
		if err := h.Replayer.Run(context.Background(), cfg); err != nil {
			logging.Error().Err(err).Str("replay_id", cfg.ReplayID).Msg("replay: run returned error")
		}
	}()

	NewResponseWriter(w, r).Created(map[string]string{"replay_id": cfg.ReplayID, "status": "started"})
}

type stopReplayRequest struct {
	ReplayID string `json:"replay_id" validate:"required"`
}

// StopReplay handles POST /replay/stop: it requests cancellation. The
// running goroutine observes the stopped status at its next cancellation
// check point and exits cleanly, saving a resumable checkpoint.
func (h *Handler) StopReplay(w http.ResponseWriter, r *http.Request) {
	var req stopReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		NewResponseWriter(w, r).BadRequest("invalid request body: " + err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		NewResponseWriter(w, r).ValidationError("replay_id is required", err.Error())
		return
	}

	ok, err := h.Registry.UpdateStatus(req.ReplayID, session.StatusStopped, "stop requested")
	if err != nil {
		NewResponseWriter(w, r).Conflict(err.Error())
		return
	}
	if !ok {
		NewResponseWriter(w, r).NotFound("unknown replay_id")
		return
	}
	NewResponseWriter(w, r).Success(map[string]string{"replay_id": req.ReplayID, "status": "stopped"})
}

// Status handles GET /replay/status?replay_id=....
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	replayID := r.URL.Query().Get("replay_id")
	if replayID == "" {
		NewResponseWriter(w, r).BadRequest("replay_id query parameter is required")
		return
	}
	s, ok := h.Registry.Get(replayID)
	if !ok {
		NewResponseWriter(w, r).NotFound("unknown replay_id")
		return
	}
	NewResponseWriter(w, r).Success(s.Snapshot())
}

// List handles GET /replay/list, an optional status filter (?status=running)
// not present in the original control surface but useful for dashboards
// enumerating in-flight and historical replays without polling each by id.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := session.Status(r.URL.Query().Get("status"))
	sessions := h.Registry.List(status)
	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	NewResponseWriter(w, r).Success(out)
}

// Health handles GET /health: it reports ok only when the broker connection
// itself is reachable, not merely when the HTTP server is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Replayer.Broker.Connect(ctx); err != nil {
		NewResponseWriter(w, r).ServiceUnavailable("broker unreachable")
		return
	}
	info := h.Replayer.Broker.StreamInfo(ctx)
	if info.Err != nil {
		NewResponseWriter(w, r).ServiceUnavailable("broker stream unreachable")
		return
	}
	NewResponseWriter(w, r).Success(map[string]any{
		"status":       "ok",
		"stream_length": info.Length,
	})
}
