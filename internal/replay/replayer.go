// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

// Package replay implements the Deterministic Replayer: the core
// orchestration of read → sort → pace → detect → checkpoint → ack, grounded
// on the original Python deterministic_replayer.py (both variants: the
// batch-oriented read/sort/checkpoint structure, and the streaming
// variant's per-event pacing), following the Go loop/select idiom used
// elsewhere in this codebase for subscriber-style event processing.
package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/replay-engine/internal/broker"
	"github.com/tomtom215/replay-engine/internal/checkpoint"
	"github.com/tomtom215/replay-engine/internal/detect"
	"github.com/tomtom215/replay-engine/internal/events"
	"github.com/tomtom215/replay-engine/internal/logging"
	"github.com/tomtom215/replay-engine/internal/metrics"
	"github.com/tomtom215/replay-engine/internal/report"
	"github.com/tomtom215/replay-engine/internal/session"
)

// Mode is the pacing/mode state machine's state.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeTimed  Mode = "timed"
	ModeLive   Mode = "live"
)

// Config are the inputs to a single replay run.
type Config struct {
	ReplayID          string
	SessionID         string
	StartTS           string
	EndTS             string
	Mode              Mode
	Speed             float64
	CheckpointEvery   int
	MaxEventsPerBatch int
}

// ErrInvariant signals an impossible state the replayer caught mid-run.
var ErrInvariant = errors.New("replay: invariant violation")

// Replayer orchestrates one family of replay runs sharing the same
// dependencies; each Run call owns its own DetectorState.
type Replayer struct {
	Broker     *broker.Adapter
	Checkpoint *checkpoint.Store
	Registry   *session.Registry
	Detect     detect.Config
	Reports    *report.Writer
	ReportDir  string
}

// Run executes one replay to completion, cancellation, or failure. It never
// lets an error escape without first marking the session failed.
func (rp *Replayer) Run(ctx context.Context, cfg Config) (err error) {
	started := time.Now()
	defer func() {
		status := "completed"
		if err != nil {
			status = "failed"
		} else if s, ok := rp.Registry.Get(cfg.ReplayID); ok && s.Status == session.StatusStopped {
			status = "stopped"
		}
		metrics.DurationSeconds.WithLabelValues(cfg.ReplayID, status).Observe(time.Since(started).Seconds())
	}()

	if _, uerr := rp.Registry.UpdateStatus(cfg.ReplayID, session.StatusRunning, ""); uerr != nil {
		return rp.fail(ctx, cfg.ReplayID, uerr)
	}

	if cerr := rp.Broker.Connect(ctx); cerr != nil {
		return rp.fail(ctx, cfg.ReplayID, fmt.Errorf("replay: connect: %w", cerr))
	}

	startID := cfg.StartTS
	eventsProcessed := int64(0)
	if data, found, lerr := rp.Checkpoint.Load(ctx, cfg.ReplayID, checkpoint.KindMain); lerr == nil && found {
		if id, ok := data["current_message_id"].(string); ok && id != "" {
			// Exclusive-start: the checkpointed id was already processed and
			// acked, so resume strictly after it rather than re-reading it.
			startID = "(" + id
		}
		if n, ok := data["events_processed"].(float64); ok {
			eventsProcessed = int64(n)
		}
	}

	batch, rerr := rp.Broker.ReadRange(ctx, startID, orDefault(cfg.EndTS, "+"), int64(cfg.MaxEventsPerBatch))
	if rerr != nil {
		metrics.EventsErrorsTotal.WithLabelValues(cfg.ReplayID, "transport").Inc()
	}

	evts := make([]events.Event, 0, len(batch))
	for _, m := range batch {
		evts = append(evts, m.Event())
	}

	sort.SliceStable(evts, func(i, j int) bool {
		return evts[i].Before(evts[j])
	})

	if cfg.SessionID != "" {
		filtered := evts[:0]
		for _, e := range evts {
			if e.SessionID == cfg.SessionID {
				filtered = append(filtered, e)
			}
		}
		evts = filtered
	}

	totalEvents := int64(len(evts))
	total := totalEvents
	if _, uerr := rp.Registry.UpdateProgress(cfg.ReplayID, session.ProgressUpdate{
		TotalEvents: &total,
	}); uerr != nil {
		return rp.fail(ctx, cfg.ReplayID, uerr)
	}

	if totalEvents == 0 {
		return rp.complete(ctx, cfg, nil)
	}

	det := detect.New(rp.Detect)
	checkpointEvery := cfg.CheckpointEvery
	if checkpointEvery <= 0 {
		checkpointEvery = 10
	}

	var bugsDetected int64
	bugsByType := make(map[string]int64)
	var lastStreamID string

	for i, e := range evts {
		if s, ok := rp.Registry.Get(cfg.ReplayID); ok && (s.Status == session.StatusStopped || s.Status == session.StatusFailed) {
			break
		}

		if i > 0 {
			rp.pace(ctx, cfg.Mode, cfg.Speed, evts[i-1], e)
		} else {
			// No preceding event to diff against; pace() treats a zero prev
			// timestamp as "no neighbor" and falls back to the 0.5/speed sleep.
			rp.pace(ctx, cfg.Mode, cfg.Speed, events.Event{}, e)
		}

		if s, ok := rp.Registry.Get(cfg.ReplayID); ok && (s.Status == session.StatusStopped || s.Status == session.StatusFailed) {
			break
		}

		if skew, ok := e.SkewSeconds(); ok && skew > 1.0 {
			logging.Warn().Str("replay_id", cfg.ReplayID).Str("event_id", e.EventID).
				Float64("skew_seconds", skew).Msg("replay: event timestamp disagrees with stream id by more than one second")
			metrics.EventsErrorsTotal.WithLabelValues(cfg.ReplayID, "clock_skew").Inc()
		}

		findings := det.Analyze(e)
		bugsDetected += int64(len(findings))
		for _, f := range findings {
			bugsByType[string(f.BugType)]++
			metrics.BugsDetectedTotal.WithLabelValues(string(f.BugType), string(f.Severity)).Inc()
		}

		eventsProcessed++
		progress := float64(eventsProcessed) / float64(totalEvents)
		if eventsProcessed > totalEvents {
			return rp.fail(ctx, cfg.ReplayID, fmt.Errorf("%w: events_processed %d > total_events %d", ErrInvariant, eventsProcessed, totalEvents))
		}

		ep := eventsProcessed
		bd := bugsDetected
		if _, uerr := rp.Registry.UpdateProgress(cfg.ReplayID, session.ProgressUpdate{
			EventsProcessed: &ep,
			BugsDetected:    &bd,
			Progress:        &progress,
			CurrentEventID:  e.EventID,
			RawEvent:        e.Raw,
		}); uerr != nil {
			return rp.fail(ctx, cfg.ReplayID, uerr)
		}

		if eventsProcessed%int64(checkpointEvery) == 0 {
			rp.saveCheckpoint(ctx, cfg.ReplayID, eventsProcessed, e.StreamID, progress, false)
		}

		if _, aerr := rp.Broker.Ack(ctx, e.StreamID); aerr != nil {
			logging.Warn().Err(aerr).Str("replay_id", cfg.ReplayID).Str("stream_id", e.StreamID).Msg("replay: ack failed")
			metrics.EventsErrorsTotal.WithLabelValues(cfg.ReplayID, "ack").Inc()
		}
		lastStreamID = e.StreamID

		metrics.EventsProcessedTotal.WithLabelValues(cfg.ReplayID, "running").Inc()
		metrics.ProgressRatio.WithLabelValues(cfg.ReplayID).Set(progress)
	}

	if s, ok := rp.Registry.Get(cfg.ReplayID); ok && s.Status == session.StatusStopped {
		progress := float64(eventsProcessed) / float64(totalEvents)
		rp.saveCheckpoint(ctx, cfg.ReplayID, eventsProcessed, lastStreamID, progress, false)
		rp.Reports.Submit(ctx, rp.ReportDir, report.Summary{
			ReplayID:        cfg.ReplayID,
			Status:          string(session.StatusStopped),
			EventsProcessed: eventsProcessed,
			TotalEvents:     totalEvents,
			Progress:        progress,
			StartedAt:       s.StartTime,
			CompletedAt:     time.Now().UTC(),
			BugsDetected:    bugsDetected,
			BugsByType:      bugsByType,
		})
		_ = rp.Broker.Disconnect(ctx)
		return nil
	}

	return rp.complete(ctx, cfg, bugsByType)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// pace implements the per-mode sleep calculation. Sleeps end early only on
// ctx.Done(); a stop written to the registry is seen by Run's status checks
// before and after each pace call, so a sleep already under way runs to its end.
func (rp *Replayer) pace(ctx context.Context, mode Mode, speed float64, prev, cur events.Event) {
	if speed <= 0 {
		speed = 1.0
	}
	var sleep time.Duration
	switch mode {
	case ModeTimed:
		if prev.Timestamp.IsZero() || cur.Timestamp.IsZero() {
			sleep = time.Duration(0.5 / speed * float64(time.Second))
		} else {
			delta := cur.Timestamp.Sub(prev.Timestamp).Seconds() / speed
			if delta < 0 {
				delta = 0
			}
			if delta > 2.0 {
				delta = 2.0
			}
			sleep = time.Duration(delta * float64(time.Second))
		}
	case ModeLive:
		sleep = time.Duration(1.0 / speed * float64(time.Second))
	default: // ModeDryRun
		sleep = time.Duration(0.5 / speed * float64(time.Second))
	}
	cancellableSleep(ctx, sleep)
}

// cancellableSleep sleeps for d in slices of at most 500ms, returning early
// only when ctx is done. It does not look at the session status.
func cancellableSleep(ctx context.Context, d time.Duration) {
	const pollInterval = 500 * time.Millisecond
	timer := time.NewTimer(minDuration(d, pollInterval))
	defer timer.Stop()
	remaining := d
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			remaining -= pollInterval
			if remaining <= 0 {
				return
			}
			timer.Reset(minDuration(remaining, pollInterval))
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (rp *Replayer) saveCheckpoint(ctx context.Context, replayID string, eventsProcessed int64, currentMessageID string, progress float64, completed bool) {
	data := map[string]any{
		"events_processed":   eventsProcessed,
		"current_message_id": currentMessageID,
		"progress":            progress,
	}
	if completed {
		data["completed_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	ok, err := rp.Checkpoint.Save(ctx, replayID, checkpoint.KindMain, data)
	status := "success"
	if err != nil || !ok {
		status = "failure"
		logging.Warn().Err(err).Str("replay_id", replayID).Msg("replay: checkpoint save failed")
	}
	metrics.CheckpointOperationsTotal.WithLabelValues("save", status).Inc()
}

func (rp *Replayer) complete(ctx context.Context, cfg Config, bugsByType map[string]int64) error {
	s, _ := rp.Registry.Get(cfg.ReplayID)
	var eventsProcessed, totalEvents int64
	var bugs int64
	progress := 0.0
	started := time.Now()
	if s != nil {
		eventsProcessed = s.EventsProcessed
		totalEvents = s.TotalEvents
		bugs = s.BugsDetected
		progress = s.Progress
		started = s.StartTime
	}
	if totalEvents == 0 {
		progress = 0.0
	} else {
		progress = 1.0
	}

	rp.saveCheckpoint(ctx, cfg.ReplayID, eventsProcessed, "", progress, true)

	completedAt := time.Now().UTC()
	rp.Reports.Submit(ctx, rp.ReportDir, report.Summary{
		ReplayID:        cfg.ReplayID,
		Status:          string(session.StatusCompleted),
		EventsProcessed: eventsProcessed,
		TotalEvents:     totalEvents,
		Progress:        progress,
		StartedAt:       started,
		CompletedAt:     completedAt,
		BugsDetected:    bugs,
		BugsByType:      bugsByType,
	})

	_, err := rp.Registry.Complete(cfg.ReplayID)
	if err != nil {
		return rp.fail(ctx, cfg.ReplayID, err)
	}
	_ = rp.Broker.Disconnect(ctx)
	return nil
}

func (rp *Replayer) fail(ctx context.Context, replayID string, cause error) error {
	logging.Error().Err(cause).Str("replay_id", replayID).Msg("replay: run failed")
	errorType := "internal"
	switch {
	case errors.Is(cause, ErrInvariant):
		errorType = "invariant"
	case errors.Is(cause, broker.ErrTransport):
		errorType = "transport"
	case errors.Is(cause, checkpoint.ErrCheckpoint):
		errorType = "checkpoint"
	}
	metrics.EventsErrorsTotal.WithLabelValues(replayID, errorType).Inc()
	_, _ = rp.Registry.UpdateStatus(replayID, session.StatusFailed, cause.Error())
	if s, ok := rp.Registry.Get(replayID); ok {
		rp.saveCheckpoint(ctx, replayID, s.EventsProcessed, s.CurrentEventID, s.Progress, false)
	}
	_ = rp.Broker.Disconnect(ctx)
	return cause
}
