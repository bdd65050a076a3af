// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

// Package broker implements the Stream Adapter: a consumer-group-aware
// reader/writer over Redis Streams, grounded on the original Python
// redis_stream_adapter.py (XGROUP CREATE / XREADGROUP / XPENDING_RANGE /
// XRANGE / XACK).
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/replay-engine/internal/logging"
	"github.com/tomtom215/replay-engine/internal/metrics"
)

// Config configures the Redis Streams adapter.
type Config struct {
	URL           string
	StreamKey     string
	ConsumerGroup string
	ConsumerName  string

	DialTimeout time.Duration
}

// DefaultConfig returns sensible defaults mirroring the Python adapter's
// constructor defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "redis://localhost:6379",
		StreamKey:     "logs:stream",
		ConsumerGroup: "replay_group",
		ConsumerName:  "replayer-1",
		DialTimeout:   5 * time.Second,
	}
}

// Adapter is the Stream Adapter: connect, read (new/pending/range), ack,
// and best-effort stream/consumer introspection.
type Adapter struct {
	cfg    Config
	client *redis.Client
	cb     *gobreaker.CircuitBreaker[any]
}

// New constructs an Adapter without connecting.
func New(cfg Config) *Adapter {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "broker-redis",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &Adapter{cfg: cfg, cb: cb}
}

// Connect establishes a connection to Redis and ensures the configured
// consumer group exists on the configured stream, creating both if absent.
// "BUSYGROUP Consumer Group name already exists" is swallowed, not an error.
func (a *Adapter) Connect(ctx context.Context) error {
	// Connect is polled repeatedly (e.g. every /health request); if a live
	// client is already held, reuse it instead of leaking a new pool.
	if a.client != nil {
		if err := a.client.Ping(ctx).Err(); err == nil {
			return nil
		}
		_ = a.client.Close()
		metrics.RedisConnectionsActive.Dec()
		a.client = nil
	}

	opts, err := redis.ParseURL(a.cfg.URL)
	if err != nil {
		return fmt.Errorf("broker: parse redis url: %w", err)
	}
	if a.cfg.DialTimeout > 0 {
		opts.DialTimeout = a.cfg.DialTimeout
	}
	client := redis.NewClient(opts)

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx).Err()
	}, backoff.WithMaxTries(3))
	if err != nil {
		return fmt.Errorf("%w: connect: %w", ErrTransport, err)
	}

	err = client.XGroupCreateMkStream(ctx, a.cfg.StreamKey, a.cfg.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		_ = client.Close()
		return fmt.Errorf("broker: create consumer group: %w", err)
	}

	a.client = client
	metrics.RedisConnectionsActive.Inc()
	logging.Info().
		Str("stream_key", a.cfg.StreamKey).
		Str("consumer_group", a.cfg.ConsumerGroup).
		Msg("broker connected")
	return nil
}

// Disconnect closes the Redis client. Idempotent.
func (a *Adapter) Disconnect(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	metrics.RedisConnectionsActive.Dec()
	return err
}

// StreamInfo returns a best-effort snapshot; errors are populated on the
// returned struct rather than propagated, matching the adapter's contract.
func (a *Adapter) StreamInfo(ctx context.Context) StreamInfo {
	if a.client == nil {
		return StreamInfo{Err: ErrNotConnected}
	}
	info, err := a.client.XInfoStream(ctx, a.cfg.StreamKey).Result()
	if err != nil {
		return StreamInfo{Err: fmt.Errorf("%w: stream_info: %w", ErrTransport, err)}
	}
	groups, err := a.client.XInfoGroups(ctx, a.cfg.StreamKey).Result()
	groupCount := int64(len(groups))
	if err != nil {
		groupCount = 0
	}
	metrics.RedisStreamLength.WithLabelValues(a.cfg.StreamKey).Set(float64(info.Length))
	return StreamInfo{
		Length:     info.Length,
		FirstID:    info.FirstEntry.ID,
		LastID:     info.LastEntry.ID,
		GroupCount: groupCount,
	}
}

// ReadNew reads previously undelivered entries for (group, consumer),
// blocking up to block when empty. Transient errors return an empty slice
// with a logged error, not a failure.
func (a *Adapter) ReadNew(ctx context.Context, batch int64, block time.Duration) ([]Message, error) {
	if a.client == nil {
		return nil, ErrNotConnected
	}
	streams, err := a.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    a.cfg.ConsumerGroup,
		Consumer: a.cfg.ConsumerName,
		Streams:  []string{a.cfg.StreamKey, ">"},
		Count:    batch,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logging.Warn().Err(err).Msg("broker: read_new transient error")
		return nil, nil
	}
	return toMessages(streams), nil
}

// ReadPending re-reads entries delivered to this consumer but not yet
// acknowledged, via XREADGROUP starting at "0".
func (a *Adapter) ReadPending(ctx context.Context, batch int64) ([]Message, error) {
	if a.client == nil {
		return nil, ErrNotConnected
	}
	streams, err := a.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    a.cfg.ConsumerGroup,
		Consumer: a.cfg.ConsumerName,
		Streams:  []string{a.cfg.StreamKey, "0"},
		Count:    batch,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logging.Warn().Err(err).Msg("broker: read_pending transient error")
		return nil, nil
	}
	return toMessages(streams), nil
}

// ReadRange reads an inclusive range of entries by broker id; used by the
// replayer. minID/maxID accept the "0"/"+"/"-" sentinels Redis understands.
func (a *Adapter) ReadRange(ctx context.Context, minID, maxID string, count int64) ([]Message, error) {
	if a.client == nil {
		return nil, ErrNotConnected
	}
	if minID == "" {
		minID = "-"
	}
	if maxID == "" {
		maxID = "+"
	}
	result, err := a.cb.Execute(func() (any, error) {
		return a.client.XRangeN(ctx, a.cfg.StreamKey, minID, maxID, count).Result()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logging.Warn().Err(err).Str("min_id", minID).Str("max_id", maxID).Msg("broker: read_range transient error")
		return nil, nil
	}
	msgs := result.([]redis.XMessage)
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(m))
	}
	return out, nil
}

// Ack acknowledges one or more entries, returning how many the broker
// accepted. Failures are logged and counted by the caller, not retried.
func (a *Adapter) Ack(ctx context.Context, ids ...string) (int64, error) {
	if a.client == nil {
		return 0, ErrNotConnected
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := a.client.XAck(ctx, a.cfg.StreamKey, a.cfg.ConsumerGroup, ids...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: ack: %w", ErrTransport, err)
	}
	return n, nil
}

// ConsumerInfo reports idle-consumer introspection for the configured
// group, supplemented from the original adapter's get_consumer_info.
func (a *Adapter) ConsumerInfo(ctx context.Context) ([]ConsumerInfo, error) {
	if a.client == nil {
		return nil, ErrNotConnected
	}
	raw, err := a.client.XInfoConsumers(ctx, a.cfg.StreamKey, a.cfg.ConsumerGroup).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: consumer_info: %w", ErrTransport, err)
	}
	out := make([]ConsumerInfo, 0, len(raw))
	for _, c := range raw {
		out = append(out, ConsumerInfo{
			Name:    c.Name,
			Pending: c.Pending,
			Idle:    c.Idle,
		})
	}
	return out, nil
}

func toMessages(streams []redis.XStream) []Message {
	var out []Message
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, toMessage(m))
		}
	}
	return out
}

func toMessage(m redis.XMessage) Message {
	fields := make(map[string]string, len(m.Values))
	for k, v := range m.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		} else {
			fields[k] = fmt.Sprint(v)
		}
	}
	ts, _ := messageTimestamp(m.ID)
	return Message{StreamID: m.ID, Fields: fields, Timestamp: ts}
}

func messageTimestamp(streamID string) (time.Time, bool) {
	idx := strings.IndexByte(streamID, '-')
	if idx <= 0 {
		return time.Time{}, false
	}
	var millis int64
	if _, err := fmt.Sscanf(streamID[:idx], "%d", &millis); err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}
