// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package broker

import (
	"time"

	"github.com/tomtom215/replay-engine/internal/events"
)

// Message is a single entry read from the stream, before it is promoted to
// an events.Event by the caller.
type Message struct {
	StreamID  string
	Fields    map[string]string
	Timestamp time.Time
}

// EventID returns the reserved event_id field, if present.
func (m Message) EventID() string { return m.Fields["event_id"] }

// SessionID returns the reserved session_id field, if present.
func (m Message) SessionID() string { return m.Fields["session_id"] }

// RequestID returns the reserved request_id field, if present.
func (m Message) RequestID() string { return m.Fields["request_id"] }

// Event converts the message into a typed events.Event.
func (m Message) Event() events.Event {
	return events.FromFields(m.StreamID, m.Fields)
}

// StreamInfo is a best-effort snapshot of stream/group state. Err is
// populated, not returned as an error, matching the adapter's contract that
// stream_info() never throws.
type StreamInfo struct {
	Length     int64
	FirstID    string
	LastID     string
	GroupCount int64
	Err        error
}

// ConsumerInfo describes one consumer registered in the group, used for
// idle-consumer introspection.
type ConsumerInfo struct {
	Name    string
	Pending int64
	Idle    time.Duration
}
