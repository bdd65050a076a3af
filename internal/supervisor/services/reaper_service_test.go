// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"
)

type mockReaper struct {
	calls atomic.Int32
}

func (m *mockReaper) Reap(olderThan time.Duration) int {
	m.calls.Add(1)
	return 0
}

func TestSessionReaperServiceInterface(t *testing.T) {
	var _ suture.Service = (*SessionReaperService)(nil)
}

func TestSessionReaperServiceSweepsOnInterval(t *testing.T) {
	reaper := &mockReaper{}
	svc := NewSessionReaperService(reaper, 5*time.Millisecond, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = svc.Serve(ctx)
	require.GreaterOrEqual(t, reaper.calls.Load(), int32(2))
}

func TestSessionReaperServiceStopsOnCancel(t *testing.T) {
	reaper := &mockReaper{}
	svc := NewSessionReaperService(reaper, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancellation")
	}
}
