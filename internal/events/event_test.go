// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromFieldsParsesTypedFields(t *testing.T) {
	e := FromFields("1700000000000-0", map[string]string{
		"event_id":  "evt-1",
		"timestamp": "2026-01-02T03:04:05Z",
		"level":     "error",
		"status":    "500",
		"payload":   `{"k":"v"}`,
	})
	require.Equal(t, "evt-1", e.EventID)
	require.Equal(t, LevelError, e.Level)
	require.True(t, e.HasStatus)
	require.Equal(t, 500, e.Status)
	require.Equal(t, "v", e.Payload["k"])
	require.False(t, e.Timestamp.IsZero())
}

func TestFromFieldsToleratesMissingTimestamp(t *testing.T) {
	e := FromFields("1-0", map[string]string{"event_id": "evt-2"})
	require.True(t, e.Timestamp.IsZero())
}

func TestFromFieldsToleratesUnparseablePayload(t *testing.T) {
	e := FromFields("1-0", map[string]string{"payload": "not json"})
	require.Nil(t, e.Payload)
}

func TestParseTimestampAcceptsPlainAndOffsetForms(t *testing.T) {
	_, ok := ParseTimestamp("")
	require.False(t, ok)

	t1, ok := ParseTimestamp("2026-01-02T03:04:05Z")
	require.True(t, ok)
	require.Equal(t, 2026, t1.Year())

	t2, ok := ParseTimestamp("2026-01-02T03:04:05.123456+00:00")
	require.True(t, ok)
	require.Equal(t, time.UTC, t2.Location())
}

func TestStreamIDMillisAndTime(t *testing.T) {
	millis, ok := StreamIDMillis("1700000000000-7")
	require.True(t, ok)
	require.Equal(t, int64(1700000000000), millis)

	_, ok = StreamIDMillis("not-an-id")
	require.False(t, ok)

	tm, ok := StreamIDTime("1700000000000-7")
	require.True(t, ok)
	require.Equal(t, int64(1700000000000), tm.UnixMilli())
}

func TestSkewSecondsMeasuresDriftBetweenTimestampAndStreamID(t *testing.T) {
	e := Event{
		StreamID:  "1700000000000-0",
		Timestamp: time.UnixMilli(1700000003000).UTC(),
	}
	skew, ok := e.SkewSeconds()
	require.True(t, ok)
	require.InDelta(t, 3.0, skew, 0.001)
}

func TestSkewSecondsFalseWhenInputsMissing(t *testing.T) {
	e := Event{StreamID: "bogus"}
	_, ok := e.SkewSeconds()
	require.False(t, ok)
}

func TestEventBeforeOrdersByTimestampThenEventID(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Event{Timestamp: base, EventID: "a"}
	b := Event{Timestamp: base, EventID: "b"}
	require.True(t, a.Before(b))
	require.False(t, b.Before(a))

	earlier := Event{Timestamp: base.Add(-time.Second), EventID: "z"}
	require.True(t, earlier.Before(a))
}

func TestClassifyStatus(t *testing.T) {
	require.Equal(t, StatusClassSuccess, ClassifyStatus(200))
	require.Equal(t, StatusClassWarning, ClassifyStatus(301))
	require.Equal(t, StatusClassError, ClassifyStatus(500))
}
