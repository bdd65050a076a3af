// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

/*
Package metrics provides Prometheus instrumentation for the replay engine,
exposed at GET /metrics in Prometheus text format.

# Available metrics

Counters:
  - replay_events_processed_total{replay_id,status}
  - replay_events_errors_total{replay_id,error_type}
  - replay_checkpoint_operations_total{operation_type,status}
  - replay_bugs_detected_total{bug_type,severity}

Gauges:
  - replay_progress_ratio{replay_id}
  - redis_stream_length{stream_key}
  - redis_connections_active

Histogram:
  - replay_duration_seconds{replay_id,status}
    Buckets: 1, 5, 10, 30, 60, 300, 600, 1800, 3600, +Inf
*/
package metrics
