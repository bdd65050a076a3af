// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package session

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	json "github.com/goccy/go-json"
)

// DefaultCapacity bounds the registry so a long-lived control-plane process
// cannot accumulate unbounded session history.
const DefaultCapacity = 1024

// Config seeds a newly created session.
type Config struct {
	Mode            string
	Speed           float64
	SessionIDFilter string
	StartTS         string
	EndTS           string
}

// Registry is the Session Registry: every operation is serialized against a
// single mutex held only for the duration of the read/write; no I/O occurs
// under the lock.
type Registry struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *Session]
}

// New constructs a Registry with the given bounded capacity.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, _ := lru.New[string, *Session](capacity)
	return &Registry{cache: c}
}

// Create inserts a new pending session, failing if replayID is already
// present and not in a terminal state (the control surface must not start a
// second run under a live id).
func (r *Registry) Create(replayID string, cfg Config) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.cache.Get(replayID); ok && !existing.Status.Terminal() {
		return nil, fmt.Errorf("session: replay id %q already active", replayID)
	}

	s := &Session{
		ReplayID:        replayID,
		Mode:            cfg.Mode,
		Speed:           cfg.Speed,
		Status:          StatusPending,
		StartTime:       time.Now().UTC(),
		SessionIDFilter: cfg.SessionIDFilter,
		StartTS:         cfg.StartTS,
		EndTS:           cfg.EndTS,
		lastTouched:     time.Now(),
	}
	r.cache.Add(replayID, s)
	return s, nil
}

// UpdateStatus atomically sets status and optional attributes. Terminal
// statuses are sticky: only failed may overwrite stopped. message, when
// non-empty, replaces the last diagnostic.
func (r *Registry) UpdateStatus(replayID string, status Status, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.cache.Get(replayID)
	if !ok {
		return false, nil
	}
	if s.Status.Terminal() {
		if !(s.Status == StatusStopped && status == StatusFailed) {
			return false, fmt.Errorf("session: invariant violation: cannot move %q from terminal %q to %q", replayID, s.Status, status)
		}
	}
	s.Status = status
	if message != "" {
		s.Message = message
	}
	s.lastTouched = time.Now()
	return true, nil
}

// ProgressUpdate carries the optional fields UpdateProgress may set.
type ProgressUpdate struct {
	EventsProcessed *int64
	TotalEvents     *int64
	BugsDetected    *int64
	Progress        *float64
	CurrentEventID  string
	RawEvent        map[string]string
	Message         string
}

// UpdateProgress applies the optional fields and refreshes
// CurrentEventDetails by best-effort parsing of the raw event.
func (r *Registry) UpdateProgress(replayID string, u ProgressUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.cache.Get(replayID)
	if !ok {
		return false, nil
	}

	if u.EventsProcessed != nil {
		s.EventsProcessed = *u.EventsProcessed
	}
	if u.TotalEvents != nil {
		s.TotalEvents = *u.TotalEvents
	}
	if u.BugsDetected != nil {
		s.BugsDetected = *u.BugsDetected
	}
	if s.TotalEvents > 0 && s.EventsProcessed > s.TotalEvents {
		return false, fmt.Errorf("session: invariant violation: events_processed %d > total_events %d", s.EventsProcessed, s.TotalEvents)
	}
	if u.Progress != nil {
		s.Progress = *u.Progress
	} else if s.TotalEvents > 0 {
		s.Progress = float64(s.EventsProcessed) / float64(s.TotalEvents)
	} else {
		s.Progress = 0.0
	}
	if u.CurrentEventID != "" {
		s.CurrentEventID = u.CurrentEventID
	}
	if u.Message != "" {
		s.Message = u.Message
	}
	if u.RawEvent != nil {
		s.CurrentEventDetails = parseEventDetails(u.RawEvent)
	}
	s.lastTouched = time.Now()
	return true, nil
}

func parseEventDetails(raw map[string]string) EventDetails {
	d := EventDetails{Method: raw["method"], Path: raw["path"]}
	if statusRaw, ok := raw["status"]; ok {
		var n int
		if _, err := fmt.Sscanf(statusRaw, "%d", &n); err == nil {
			d.Status = n
		}
	}
	d.Activity = ActivityForPath(d.Path)
	return d
}

// Get returns a copy-safe snapshot of the session.
func (r *Registry) Get(replayID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.cache.Get(replayID)
	if !ok {
		return nil, false
	}
	snap := *s
	return &snap, true
}

// List returns sessions matching an optional status filter. Passing ""
// returns every known session.
func (r *Registry) List(status Status) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Session
	for _, k := range r.cache.Keys() {
		s, ok := r.cache.Peek(k)
		if !ok {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		snap := *s
		out = append(out, &snap)
	}
	return out
}

// Complete marks replayID completed, sticky unless already terminal.
func (r *Registry) Complete(replayID string) (bool, error) {
	return r.UpdateStatus(replayID, StatusCompleted, "")
}

// Delete removes a session outright.
func (r *Registry) Delete(replayID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Remove(replayID)
}

// Reap removes terminal sessions that have not been touched since olderThan
// and returns how many were removed. Non-terminal sessions are never
// reaped, however old, since a stalled-but-alive run must remain visible.
func (r *Registry) Reap(olderThan time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var victims []string
	for _, k := range r.cache.Keys() {
		s, ok := r.cache.Peek(k)
		if !ok {
			continue
		}
		if s.Status.Terminal() && s.lastTouched.Before(cutoff) {
			victims = append(victims, k)
		}
	}
	for _, k := range victims {
		r.cache.Remove(k)
	}
	return len(victims)
}

// Snapshot marshals a session for the status and list endpoints, including
// the derived elapsed_seconds field.
func (s *Session) Snapshot() map[string]any {
	elapsed := time.Since(s.StartTime).Seconds()
	out := map[string]any{
		"replay_id":             s.ReplayID,
		"status":                s.Status,
		"progress":              s.Progress,
		"events_processed":      s.EventsProcessed,
		"total_events":          s.TotalEvents,
		"bugs_detected":         s.BugsDetected,
		"elapsed_seconds":       elapsed,
		"current_event_id":      s.CurrentEventID,
		"current_event_details": s.CurrentEventDetails,
		"message":               s.Message,
	}
	return out
}

// MarshalJSON encodes a session as its Snapshot map.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
