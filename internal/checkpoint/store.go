// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

// Package checkpoint implements the Checkpoint Store: Redis-backed,
// TTL-bound, opaque progress records keyed by (replay_id, kind), grounded
// on the original Python checkpoint_store.py's HSET/EXPIRE/HGETALL shape.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/replay-engine/internal/logging"
)

const (
	keyPrefix  = "replay:checkpoint"
	defaultTTL = 24 * time.Hour
)

// Store is the Checkpoint Store.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a Store over an already-connected Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client, ttl: defaultTTL}
}

// WithTTL overrides the default 24h TTL; mainly for tests.
func (s *Store) WithTTL(ttl time.Duration) *Store {
	s.ttl = ttl
	return s
}

func key(replayID string, kind Kind) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, replayID, kind)
}

// Save persists data plus saved_at/replay_id/kind and applies the TTL.
// Writes are last-writer-wins; there is no atomicity between kinds.
func (s *Store) Save(ctx context.Context, replayID string, kind Kind, data map[string]any) (bool, error) {
	if kind == "" {
		kind = KindMain
	}
	envelope := make(map[string]any, len(data)+3)
	for k, v := range data {
		envelope[k] = v
	}
	savedAt := time.Now().UTC()
	envelope["replay_id"] = replayID
	envelope["kind"] = string(kind)
	envelope["saved_at"] = savedAt.Format(time.RFC3339)

	payload, err := json.Marshal(envelope)
	if err != nil {
		return false, fmt.Errorf("%w: marshal: %w", ErrCheckpoint, err)
	}

	k := key(replayID, kind)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, "data", string(payload), "timestamp", savedAt.Format(time.RFC3339))
	pipe.Expire(ctx, k, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		logging.Warn().Err(err).Str("replay_id", replayID).Str("kind", string(kind)).Msg("checkpoint save failed")
		return false, fmt.Errorf("%w: save: %w", ErrCheckpoint, err)
	}
	return true, nil
}

// Load retrieves the most recent record for (replayID, kind).
func (s *Store) Load(ctx context.Context, replayID string, kind Kind) (map[string]any, bool, error) {
	if kind == "" {
		kind = KindMain
	}
	raw, err := s.client.HGet(ctx, key(replayID, kind), "data").Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: load: %w", ErrCheckpoint, err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, false, fmt.Errorf("%w: unmarshal: %w", ErrCheckpoint, err)
	}
	return data, true, nil
}

// Delete removes a single (replayID, kind) record.
func (s *Store) Delete(ctx context.Context, replayID string, kind Kind) (bool, error) {
	if kind == "" {
		kind = KindMain
	}
	n, err := s.client.Del(ctx, key(replayID, kind)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: delete: %w", ErrCheckpoint, err)
	}
	return n > 0, nil
}

// List returns the known checkpoint kinds for replayID. Uses SCAN rather
// than the Python original's KEYS, which blocks the server on large key
// spaces — see DESIGN.md Open Question decision 5.
func (s *Store) List(ctx context.Context, replayID string) ([]string, error) {
	pattern := fmt.Sprintf("%s:%s:*", keyPrefix, replayID)
	var kinds []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		idx := strings.LastIndexByte(full, ':')
		if idx >= 0 && idx+1 < len(full) {
			kinds = append(kinds, full[idx+1:])
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrCheckpoint, err)
	}
	return kinds, nil
}

// ClearAll deletes every checkpoint kind for replayID.
func (s *Store) ClearAll(ctx context.Context, replayID string) (bool, error) {
	kinds, err := s.List(ctx, replayID)
	if err != nil {
		return false, err
	}
	if len(kinds) == 0 {
		return false, nil
	}
	keys := make([]string, 0, len(kinds))
	for _, k := range kinds {
		keys = append(keys, key(replayID, Kind(k)))
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return false, fmt.Errorf("%w: clear_all: %w", ErrCheckpoint, err)
	}
	return n > 0, nil
}
