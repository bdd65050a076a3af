// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package checkpoint

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), client
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Save(ctx, "r-1", KindMain, map[string]any{
		"events_processed":    float64(5),
		"current_message_id":  "1700000000000-0",
		"progress":            0.5,
	})
	require.NoError(t, err)
	require.True(t, ok)

	data, found, err := s.Load(ctx, "r-1", KindMain)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "r-1", data["replay_id"])
	require.Equal(t, float64(5), data["events_processed"])
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, found, err := s.Load(context.Background(), "missing", KindMain)
	require.NoError(t, err)
	require.False(t, found)
}

func TestListAndClearAll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "r-2", KindMain, map[string]any{"events_processed": float64(1)})
	require.NoError(t, err)
	_, err = s.Save(ctx, "r-2", KindProgress, map[string]any{"events_processed": float64(1)})
	require.NoError(t, err)

	kinds, err := s.List(ctx, "r-2")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"main", "progress"}, kinds)

	cleared, err := s.ClearAll(ctx, "r-2")
	require.NoError(t, err)
	require.True(t, cleared)

	_, found, err := s.Load(ctx, "r-2", KindMain)
	require.NoError(t, err)
	require.False(t, found)
}
