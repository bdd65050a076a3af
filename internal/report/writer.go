// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

// Package report implements the Report Writer: atomic JSON + HTML summary
// artifacts for a completed or cancelled replay run, submitted to a bounded
// queue so report I/O never blocks the next replay.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/replay-engine/internal/logging"
)

// Summary is the machine-readable record serialized for one run.
type Summary struct {
	ReplayID        string    `json:"replay_id"`
	Status          string    `json:"status"`
	EventsProcessed int64     `json:"events_processed"`
	TotalEvents     int64     `json:"total_events"`
	Progress        float64   `json:"progress"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	BugsDetected    int64     `json:"bugs_detected"`
	BugsByType      map[string]int64 `json:"bugs_by_type,omitempty"`
}

const htmlTemplateSrc = `<!DOCTYPE html>
<html><head><title>Replay {{.ReplayID}}</title></head>
<body>
<h1>Replay {{.ReplayID}}</h1>
<table>
<tr><td>Status</td><td>{{.Status}}</td></tr>
<tr><td>Events processed</td><td>{{.EventsProcessed}} / {{.TotalEvents}}</td></tr>
<tr><td>Progress</td><td>{{printf "%.1f" .ProgressPercent}}%</td></tr>
<tr><td>Bugs detected</td><td>{{.BugsDetected}}</td></tr>
<tr><td>Started</td><td>{{.StartedAt}}</td></tr>
<tr><td>Completed</td><td>{{.CompletedAt}}</td></tr>
</table>
</body></html>
`

type htmlView struct {
	Summary
	ProgressPercent float64
}

var htmlTemplate = template.Must(template.New("report").Parse(htmlTemplateSrc))

// writeJob is one queued report write.
type writeJob struct {
	dir     string
	summary Summary
}

// Writer owns the bounded write queue and a single worker goroutine.
type Writer struct {
	jobs chan writeJob
	done chan struct{}
}

// New starts a Writer with the given queue depth.
func New(queueDepth int) *Writer {
	if queueDepth <= 0 {
		queueDepth = 32
	}
	w := &Writer{
		jobs: make(chan writeJob, queueDepth),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for job := range w.jobs {
		if err := writeArtifacts(job.dir, job.summary); err != nil {
			logging.Warn().Err(err).Str("replay_id", job.summary.ReplayID).Msg("report: write failed")
		}
	}
}

// Submit enqueues a summary for writing. It never blocks the caller beyond
// the queue's configured depth; when the queue is full this write is logged
// and discarded rather than stalling the replay loop.
func (w *Writer) Submit(ctx context.Context, dir string, s Summary) {
	select {
	case w.jobs <- writeJob{dir: dir, summary: s}:
	default:
		logging.Warn().Str("replay_id", s.ReplayID).Msg("report: write queue full, dropping oldest is not supported, logging and discarding this write")
	}
}

// Close drains pending writes and stops the worker.
func (w *Writer) Close() {
	close(w.jobs)
	<-w.done
}

func writeArtifacts(dir string, s Summary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: mkdir: %w", err)
	}

	jsonPath := filepath.Join(dir, fmt.Sprintf("replay_%s.json", s.ReplayID))
	jsonBytes, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal json: %w", err)
	}
	if err := writeAtomic(jsonPath, jsonBytes); err != nil {
		return err
	}

	var buf bytes.Buffer
	percent := s.Progress * 100
	if err := htmlTemplate.Execute(&buf, htmlView{Summary: s, ProgressPercent: percent}); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	htmlPath := filepath.Join(dir, fmt.Sprintf("replay_%s.html", s.ReplayID))
	return writeAtomic(htmlPath, buf.Bytes())
}

// writeAtomic writes data to a temp file in the same directory, then
// renames it into place, so a reader never observes a partial artifact.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("report: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("report: rename: %w", err)
	}
	return nil
}
