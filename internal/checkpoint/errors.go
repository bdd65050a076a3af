// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package checkpoint

import "errors"

// ErrCheckpoint wraps any checkpoint store read/write failure. The replayer
// logs and continues; checkpoints are hints, not correctness-critical.
var ErrCheckpoint = errors.New("checkpoint: store error")

// Kind enumerates the two checkpoint kinds the replayer writes.
type Kind string

const (
	KindMain     Kind = "main"
	KindProgress Kind = "progress"
)
