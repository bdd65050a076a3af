// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package broker

import "errors"

// ErrTransport wraps any broker I/O failure. Transient errors are logged and
// counted, not fatal to the caller, per the stream adapter's failure
// semantics.
var ErrTransport = errors.New("broker: transport error")

// ErrNotConnected is returned by operations attempted before Connect.
var ErrNotConnected = errors.New("broker: not connected")
