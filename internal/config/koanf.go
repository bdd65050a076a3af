// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// sliceFields lists the dotted config paths that environment providers
// deliver as a single comma-separated string but that the struct expects as
// a []string.
var sliceFields = []string{"bug_detection.error_levels"}

// envOverrides maps an environment variable name to the dotted koanf path
// it overrides.
var envOverrides = map[string]string{
	"BROKER_URL":          "broker.url",
	"STREAM_KEY":          "broker.stream_key",
	"REPLAY_SHARED_TOKEN": "security.shared_token",
	"LOG_LEVEL":           "logging.level",
	"LOG_FORMAT":          "logging.format",
}

// Load builds a Config by layering defaults, an optional YAML file at
// path (skipped silently if absent), and environment overrides.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
			}
		}
	}

	for envVar, kpath := range envOverrides {
		if v, ok := os.LookupEnv(envVar); ok && v != "" {
			if err := k.Set(kpath, v); err != nil {
				return Config{}, fmt.Errorf("config: set %s: %w", kpath, err)
			}
		}
	}

	if err := k.Load(env.Provider("REPLAY_", ".", func(s string) string {
		// The first segment names a top-level section (which may itself
		// contain underscores); the rest is the field name, kept as is.
		s = strings.ToLower(strings.TrimPrefix(s, "REPLAY_"))
		for _, section := range []string{"bug_detection", "broker", "replay", "security", "report", "logging", "api"} {
			if strings.HasPrefix(s, section+"_") {
				return section + "." + strings.TrimPrefix(s, section+"_")
			}
		}
		return strings.ReplaceAll(s, "_", ".")
	}), nil); err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	processSliceFields(k, sliceFields)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// processSliceFields rewrites any listed path whose current value is a
// single comma-separated string into a []string, so later Unmarshal sees
// the shape the struct tag expects regardless of whether the value came
// from YAML (already a list) or an environment string.
func processSliceFields(k *koanf.Koanf, paths []string) {
	for _, p := range paths {
		raw := k.Get(p)
		s, ok := raw.(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		_ = k.Set(p, parts)
	}
}

func validate(cfg Config) error {
	if cfg.Replay.CheckpointEvery <= 0 {
		return fmt.Errorf("config: replay.checkpoint_every must be > 0")
	}
	if cfg.Replay.Speed <= 0 {
		return fmt.Errorf("config: replay.speed must be > 0")
	}
	if cfg.Security.EnableAuth && cfg.Security.SharedToken == "" {
		return fmt.Errorf("config: security.shared_token required when security.enable_auth is true")
	}
	return nil
}
