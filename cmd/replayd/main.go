// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

// Package main is the entry point for the replay engine daemon.
//
// replayd loads its configuration, wires the Stream Adapter, Checkpoint
// Store, Session Registry, Bug Detector, Report Writer and Deterministic
// Replayer together behind the control HTTP API, and runs them under a
// two-layer suture supervisor tree until SIGINT/SIGTERM.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: layered defaults → optional YAML file → environment (Koanf v2)
//  2. Logging: zerolog, configured from the loaded config
//  3. Stream Adapter: Redis Streams connection, consumer group ensured
//  4. Checkpoint Store, Session Registry, Report Writer
//  5. Deterministic Replayer: binds the above into one orchestrator
//  6. Control HTTP API: Chi router, bearer-token gated replay routes
//  7. Supervisor tree: control API + session reaper, supervised and restarted independently
//
// # Signal Handling
//
// SIGINT/SIGTERM trigger graceful shutdown: the HTTP server stops accepting
// new connections and drains in-flight requests within its configured
// timeout. In-flight replay runs are not signalled: they run on their own
// background context and end when the process exits, without their sessions
// being marked stopped or a final checkpoint being written.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/replay-engine/internal/api"
	"github.com/tomtom215/replay-engine/internal/broker"
	"github.com/tomtom215/replay-engine/internal/checkpoint"
	"github.com/tomtom215/replay-engine/internal/config"
	"github.com/tomtom215/replay-engine/internal/detect"
	"github.com/tomtom215/replay-engine/internal/events"
	"github.com/tomtom215/replay-engine/internal/logging"
	"github.com/tomtom215/replay-engine/internal/replay"
	"github.com/tomtom215/replay-engine/internal/report"
	"github.com/tomtom215/replay-engine/internal/session"
	"github.com/tomtom215/replay-engine/internal/supervisor"
	"github.com/tomtom215/replay-engine/internal/supervisor/services"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load(os.Getenv("REPLAY_CONFIG_FILE"))
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    false,
		Timestamp: true,
		Output:    os.Stderr,
	})

	logging.Info().
		Str("broker_url", cfg.Broker.URL).
		Str("stream_key", cfg.Broker.StreamKey).
		Str("listen_addr", cfg.API.ListenAddr).
		Bool("auth_enabled", cfg.Security.EnableAuth).
		Msg("starting replay engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter := broker.New(broker.Config{
		URL:           cfg.Broker.URL,
		StreamKey:     cfg.Broker.StreamKey,
		ConsumerGroup: cfg.Broker.ConsumerGroup,
		ConsumerName:  cfg.Broker.ConsumerName,
	})
	if err := adapter.Connect(ctx); err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to stream broker")
	}

	redisOpts, err := goredis.ParseURL(cfg.Broker.URL)
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid broker url")
	}
	checkpointClient := goredis.NewClient(redisOpts)
	defer func() {
		if cerr := checkpointClient.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("error closing checkpoint redis client")
		}
	}()

	cpStore := checkpoint.New(checkpointClient)
	registry := session.New(session.DefaultCapacity)
	reportWriter := report.New(32)
	defer reportWriter.Close()

	rp := &replay.Replayer{
		Broker:     adapter,
		Checkpoint: cpStore,
		Registry:   registry,
		Detect:     toDetectConfig(cfg),
		Reports:    reportWriter,
		ReportDir:  cfg.Report.OutputDir,
	}

	handler := api.NewHandler(rp, registry, replay.Config{
		Mode:              replay.ModeDryRun,
		Speed:             cfg.Replay.Speed,
		CheckpointEvery:   cfg.Replay.CheckpointEvery,
		MaxEventsPerBatch: cfg.Replay.MaxEventsPerBatch,
	})

	router := api.NewRouter(handler, cfg.Security.SharedToken, cfg.Security.EnableAuth)

	httpServer := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	tree.AddHTTPService(services.NewHTTPServerService(httpServer, cfg.API.ShutdownTimeout))
	tree.AddBackgroundService(services.NewSessionReaperService(registry, 5*time.Minute, 24*time.Hour))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
		}
	}

	_ = adapter.Disconnect(context.Background())
	logging.Info().Msg("replay engine stopped")
}

func toDetectConfig(cfg config.Config) detect.Config {
	levels := make([]events.Level, 0, len(cfg.BugDetection.ErrorLevels))
	for _, l := range cfg.BugDetection.ErrorLevels {
		levels = append(levels, events.Level(l))
	}
	return detect.Config{
		ErrorLevels:         levels,
		GapThresholdSeconds: float64(cfg.BugDetection.GapThresholdSeconds),
	}
}
