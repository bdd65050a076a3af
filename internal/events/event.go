// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

// Package events defines the wire-level event model shared by the broker
// adapter, the bug detector, and the replayer.
package events

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Level is the event severity as carried on the wire.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelFatal    Level = "FATAL"
	LevelCritical Level = "CRITICAL"
)

// Event is an immutable record pulled from the broker, sorted and fed to the
// detector and replayer in (Timestamp, EventID) order.
type Event struct {
	StreamID  string    `json:"stream_id"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	Container string    `json:"container,omitempty"`
	Level     Level     `json:"level,omitempty"`
	Method    string    `json:"method,omitempty"`
	Path      string    `json:"path,omitempty"`
	Status    int       `json:"status,omitempty"`
	HasStatus bool      `json:"-"`

	Payload map[string]any `json:"payload,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`

	// Raw carries every field as originally read from the broker, including
	// ones not promoted to a typed accessor above.
	Raw map[string]string `json:"-"`
}

// FromFields builds an Event from a broker message's flat field map. It
// never fails: a missing or unparseable timestamp leaves Timestamp zero. The
// detector skips such an event, timed pacing treats it as a missing
// neighbour, and the replayer's sort places it before every parsed timestamp.
func FromFields(streamID string, fields map[string]string) Event {
	e := Event{
		StreamID:  streamID,
		EventID:   fields["event_id"],
		SessionID: fields["session_id"],
		RequestID: fields["request_id"],
		Source:    fields["source"],
		Container: fields["container"],
		Level:     Level(strings.ToUpper(fields["level"])),
		Method:    fields["method"],
		Path:      fields["path"],
		Raw:       fields,
	}

	if ts, ok := ParseTimestamp(fields["timestamp"]); ok {
		e.Timestamp = ts
	}

	if raw, ok := fields["status"]; ok && raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			e.Status = n
			e.HasStatus = true
		}
	}

	if raw, ok := fields["payload"]; ok && raw != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			e.Payload = m
		}
	}
	if raw, ok := fields["meta"]; ok && raw != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			e.Meta = m
		}
	}

	return e
}

// ParseTimestamp parses an RFC3339 timestamp, tolerating the "+00:00" offset
// style the original stream producer emits in place of Go's default "Z".
func ParseTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// StreamIDMillis extracts the millisecond-epoch prefix from a broker id of
// the form "<millis>-<seq>".
func StreamIDMillis(streamID string) (int64, bool) {
	idx := strings.IndexByte(streamID, '-')
	if idx <= 0 {
		return 0, false
	}
	millis, err := strconv.ParseInt(streamID[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return millis, true
}

// StreamIDTime converts the millisecond prefix of a broker id to a UTC time.
func StreamIDTime(streamID string) (time.Time, bool) {
	millis, ok := StreamIDMillis(streamID)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}

// SkewSeconds returns the absolute difference, in seconds, between the
// event's declared timestamp and its broker-assigned stream id prefix.
// Callers treat anything beyond a one-second tolerance as clock skew worth
// reporting; this method only measures, it never rejects.
func (e Event) SkewSeconds() (float64, bool) {
	idTime, ok := StreamIDTime(e.StreamID)
	if !ok || e.Timestamp.IsZero() {
		return 0, false
	}
	delta := e.Timestamp.Sub(idTime).Seconds()
	if delta < 0 {
		delta = -delta
	}
	return delta, true
}

// Key is the deterministic sort/ack-order key: (timestamp, event_id).
func (e Event) Key() string {
	return fmt.Sprintf("%s|%s", e.Timestamp.UTC().Format(time.RFC3339Nano), e.EventID)
}

// Before reports whether e sorts strictly before o under (timestamp, event_id).
func (e Event) Before(o Event) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.EventID < o.EventID
}

// StatusClass classifies the lightweight HTTP-status fast path used for
// dashboard event typing: it never emits a Finding.
type StatusClass string

const (
	StatusClassSuccess StatusClass = "success"
	StatusClassWarning StatusClass = "warning"
	StatusClassError   StatusClass = "error"
)

// ClassifyStatus implements the HTTP status classification rule.
func ClassifyStatus(status int) StatusClass {
	switch {
	case status >= 400:
		return StatusClassError
	case status >= 300:
		return StatusClassWarning
	default:
		return StatusClassSuccess
	}
}
