// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

// Package config implements layered configuration: defaults → optional YAML
// file → environment overrides, via koanf.
package config

import "time"

// BrokerConfig configures the Stream Adapter.
type BrokerConfig struct {
	URL           string `koanf:"url"`
	StreamKey     string `koanf:"stream_key"`
	ConsumerGroup string `koanf:"consumer_group"`
	ConsumerName  string `koanf:"consumer_name"`
}

// ReplayConfig configures the Deterministic Replayer's defaults.
type ReplayConfig struct {
	CheckpointEvery   int     `koanf:"checkpoint_every"`
	MaxEventsPerBatch int     `koanf:"max_events_per_batch"`
	Speed             float64 `koanf:"speed"`
}

// BugDetectionConfig configures the Bug Detector's thresholds.
type BugDetectionConfig struct {
	ErrorLevels              []string `koanf:"error_levels"`
	GapThresholdSeconds      int      `koanf:"gap_threshold_seconds"`
	CorrelationTimeoutHours  int      `koanf:"correlation_timeout_hours"`
}

// SecurityConfig configures the control API's shared-token auth.
type SecurityConfig struct {
	EnableAuth  bool   `koanf:"enable_auth"`
	SharedToken string `koanf:"shared_token"`
}

// ReportConfig configures the Report Writer.
type ReportConfig struct {
	OutputDir string `koanf:"output_dir"`
}

// LoggingConfig configures the ambient zerolog stack.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// APIConfig configures the control HTTP server.
type APIConfig struct {
	ListenAddr      string        `koanf:"listen_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Config is the full, explicit configuration record threaded through every
// constructor — there is no process-wide mutable config singleton.
type Config struct {
	Broker       BrokerConfig       `koanf:"broker"`
	Replay       ReplayConfig       `koanf:"replay"`
	BugDetection BugDetectionConfig `koanf:"bug_detection"`
	Security     SecurityConfig     `koanf:"security"`
	Report       ReportConfig       `koanf:"report"`
	Logging      LoggingConfig      `koanf:"logging"`
	API          APIConfig          `koanf:"api"`
}

// Default returns the built-in configuration defaults, mirroring the
// original control_api.py fallback configuration.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			URL:           "redis://localhost:6379",
			StreamKey:     "logs:stream",
			ConsumerGroup: "replay_group",
			ConsumerName:  "replayer-1",
		},
		Replay: ReplayConfig{
			CheckpointEvery:   10,
			MaxEventsPerBatch: 1000,
			Speed:             1.0,
		},
		BugDetection: BugDetectionConfig{
			ErrorLevels:             []string{"ERROR", "FATAL", "CRITICAL"},
			GapThresholdSeconds:     300,
			CorrelationTimeoutHours: 24,
		},
		Security: SecurityConfig{
			EnableAuth:  true,
			SharedToken: "",
		},
		Report: ReportConfig{
			OutputDir: "./reports",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		API: APIConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}
