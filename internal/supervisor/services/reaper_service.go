// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package services

import (
	"context"
	"time"

	"github.com/tomtom215/replay-engine/internal/logging"
)

// SessionReaper matches session.Registry's eviction method, letting
// SessionReaperService be tested without a real Registry.
type SessionReaper interface {
	Reap(olderThan time.Duration) int
}

// SessionReaperService periodically evicts terminal sessions that have not
// been updated within the retention window, so a long-lived process doesn't
// hold completed/failed/stopped sessions forever even when the bounded LRU
// has room to spare.
type SessionReaperService struct {
	reaper   SessionReaper
	interval time.Duration
	maxAge   time.Duration
}

// NewSessionReaperService creates a reaper service with the given sweep
// interval and retention window.
func NewSessionReaperService(reaper SessionReaper, interval, maxAge time.Duration) *SessionReaperService {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &SessionReaperService{reaper: reaper, interval: interval, maxAge: maxAge}
}

// Serve implements suture.Service.
func (s *SessionReaperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.reaper.Reap(s.maxAge); n > 0 {
				logging.Info().Int("reaped", n).Msg("session reaper: evicted terminal sessions")
			}
		}
	}
}

// String implements fmt.Stringer; suture uses it to identify the service in
// log messages.
func (s *SessionReaperService) String() string {
	return "session-reaper"
}
