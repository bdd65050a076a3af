// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().Broker.StreamKey, cfg.Broker.StreamKey)
	require.Equal(t, []string{"ERROR", "FATAL", "CRITICAL"}, cfg.BugDetection.ErrorLevels)
}

func TestLoadSilentlyIgnoresMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().API.ListenAddr, cfg.API.ListenAddr)
}

func TestLoadOverridesFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broker:\n  stream_key: custom:stream\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "custom:stream", cfg.Broker.StreamKey)
}

func TestLoadNamedEnvOverrideTakesPrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "replay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broker:\n  url: redis://file:6379\n"), 0o644))

	t.Setenv("BROKER_URL", "redis://env:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis://env:6379", cfg.Broker.URL)
}

func TestLoadPrefixedEnvOverridesNestedField(t *testing.T) {
	t.Setenv("REPLAY_REPLAY_SPEED", "4.5")

	cfg, err := Load("")
	require.NoError(t, err)
	require.InDelta(t, 4.5, cfg.Replay.Speed, 0.0001)
}

func TestLoadSplitsCommaSeparatedSliceFieldFromEnv(t *testing.T) {
	t.Setenv("REPLAY_BUG_DETECTION_ERROR_LEVELS", "WARNING, ERROR , FATAL")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, []string{"WARNING", "ERROR", "FATAL"}, cfg.BugDetection.ErrorLevels)
}

func TestLoadRejectsNonPositiveCheckpointEvery(t *testing.T) {
	t.Setenv("REPLAY_REPLAY_CHECKPOINT_EVERY", "0")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadRejectsAuthEnabledWithoutSharedToken(t *testing.T) {
	t.Setenv("REPLAY_SECURITY_ENABLE_AUTH", "true")
	t.Setenv("REPLAY_SHARED_TOKEN", "")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadAcceptsAuthEnabledWithSharedToken(t *testing.T) {
	t.Setenv("REPLAY_SHARED_TOKEN", "s3cret")
	cfg, err := Load("")
	require.NoError(t, err)
	require.True(t, cfg.Security.EnableAuth)
	require.Equal(t, "s3cret", cfg.Security.SharedToken)
}
