// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

// Package detect implements the Bug Detector: a per-event, stateful rule
// engine grounded on the original Python bug_detector.py. State lives on
// the Detector instance, owned exclusively by one Replayer run.
package detect

import (
	"fmt"
	"time"

	"github.com/tomtom215/replay-engine/internal/events"
	"github.com/tomtom215/replay-engine/internal/logging"
)

// Severity is the Finding severity scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// BugType enumerates the rule that produced a Finding.
type BugType string

const (
	BugTypeErrorEvent   BugType = "error_event"
	BugTypeTimingGap    BugType = "timing_gap"
	BugTypeRepeatedErr  BugType = "repeated_error"
)

// Finding is a single detector output.
type Finding struct {
	BugID    string         `json:"bug_id"`
	BugType  BugType        `json:"bug_type"`
	Severity Severity       `json:"severity"`
	EventID  string         `json:"event_id"`
	Context  map[string]any `json:"context"`
}

// Config configures rule thresholds.
type Config struct {
	ErrorLevels        []events.Level
	GapThresholdSeconds float64
}

// DefaultConfig mirrors the Python detector's constructor defaults.
func DefaultConfig() Config {
	return Config{
		ErrorLevels:         []events.Level{events.LevelError, events.LevelFatal, events.LevelCritical},
		GapThresholdSeconds: 300,
	}
}

// Detector holds DetectorState: per-session last-seen timestamps and
// per-(source,level) error counts. Not safe for concurrent use across
// sessions — one instance belongs to exactly one Replayer run.
type Detector struct {
	cfg Config

	lastEventTime map[string]time.Time
	errorCounts   map[string]int
}

// New constructs a Detector with the given rule configuration.
func New(cfg Config) *Detector {
	if len(cfg.ErrorLevels) == 0 {
		cfg = DefaultConfig()
	}
	return &Detector{
		cfg:           cfg,
		lastEventTime: make(map[string]time.Time),
		errorCounts:   make(map[string]int),
	}
}

func (d *Detector) isErrorLevel(level events.Level) bool {
	for _, l := range d.cfg.ErrorLevels {
		if l == level {
			return true
		}
	}
	return false
}

// Analyze runs all three Finding-emitting rules against e, in order,
// returning zero or more Findings. If e.Timestamp is zero (unparseable or
// missing at the source), none of the rules run and Analyze returns
// immediately with no Findings, matching the original detector's
// except (KeyError, ValueError) early return.
func (d *Detector) Analyze(e events.Event) []Finding {
	if e.Timestamp.IsZero() {
		logging.Warn().Str("event_id", e.EventID).Msg("detect: unparseable timestamp, skipping all rules")
		return nil
	}

	var findings []Finding

	if d.isErrorLevel(e.Level) {
		findings = append(findings, Finding{
			BugID:    fmt.Sprintf("%s-error_event", e.EventID),
			BugType:  BugTypeErrorEvent,
			Severity: SeverityHigh,
			EventID:  e.EventID,
			Context: map[string]any{
				"level":   string(e.Level),
				"payload": e.Payload,
			},
		})
	}

	key := e.SessionID
	if key == "" {
		key = "default"
	}
	if prev, ok := d.lastEventTime[key]; ok {
		gap := e.Timestamp.Sub(prev).Seconds()
		if gap > d.cfg.GapThresholdSeconds {
			findings = append(findings, Finding{
				BugID:    fmt.Sprintf("%s-timing_gap", e.EventID),
				BugType:  BugTypeTimingGap,
				Severity: SeverityMedium,
				EventID:  e.EventID,
				Context: map[string]any{
					"gap_seconds": gap,
				},
			})
		}
	}
	d.lastEventTime[key] = e.Timestamp

	// Repeated-error rule: increments on every event regardless of level,
	// preserving the original source's parity behavior (see DESIGN.md).
	errKey := fmt.Sprintf("%s:%s", e.Source, e.Level)
	d.errorCounts[errKey]++
	if d.errorCounts[errKey] > 3 {
		findings = append(findings, Finding{
			BugID:    fmt.Sprintf("%s-repeated_error", e.EventID),
			BugType:  BugTypeRepeatedErr,
			Severity: SeverityHigh,
			EventID:  e.EventID,
			Context: map[string]any{
				"error_count": d.errorCounts[errKey],
				"source":      e.Source,
			},
		})
	}

	return findings
}
