// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600}

var (
	// EventsProcessedTotal counts events processed per replay run.
	EventsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_events_processed_total",
		Help: "Total events processed by the replay engine.",
	}, []string{"replay_id", "status"})

	// EventsErrorsTotal counts error conditions encountered during replay.
	EventsErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_events_errors_total",
		Help: "Total errors encountered while processing replay events.",
	}, []string{"replay_id", "error_type"})

	// CheckpointOperationsTotal counts checkpoint store operations.
	CheckpointOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_checkpoint_operations_total",
		Help: "Total checkpoint store operations by type and outcome.",
	}, []string{"operation_type", "status"})

	// BugsDetectedTotal counts findings emitted by the bug detector.
	BugsDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_bugs_detected_total",
		Help: "Total findings emitted by the bug detector.",
	}, []string{"bug_type", "severity"})

	// ProgressRatio reports the current progress of a replay run, in [0,1].
	ProgressRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "replay_progress_ratio",
		Help: "Current progress ratio of a replay run.",
	}, []string{"replay_id"})

	// RedisStreamLength reports the last-observed length of the source stream.
	RedisStreamLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "redis_stream_length",
		Help: "Last observed length of the source Redis stream.",
	}, []string{"stream_key"})

	// RedisConnectionsActive reports the number of active broker connections.
	RedisConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_connections_active",
		Help: "Number of active Redis connections held by the broker adapter.",
	})

	// DurationSeconds is the end-to-end wall-clock duration of a replay run.
	DurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "replay_duration_seconds",
		Help:    "End-to-end duration of a replay run.",
		Buckets: durationBuckets,
	}, []string{"replay_id", "status"})
)
