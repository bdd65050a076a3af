// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

/*
Package supervisor provides process supervision for the replay engine using
suture v4.

# Overview

The supervisor tree organizes services into two layers for failure isolation:

	RootSupervisor ("replay-engine")
	├── HTTPSupervisor ("http-layer")
	│   └── HTTPServerService
	└── BackgroundSupervisor ("background-layer")
	    └── SessionReaperService

A crash in the background reaper never takes the control API down with it,
and vice versa.

# Usage Example

	logger := slog.Default()
	config := supervisor.DefaultTreeConfig()

	tree, err := supervisor.NewSupervisorTree(logger, config)
	if err != nil {
	    log.Fatal(err)
	}

	tree.AddHTTPService(httpServerService)
	tree.AddBackgroundService(sessionReaperService)

	if err := tree.Serve(ctx); err != nil {
	    log.Printf("supervisor stopped: %v", err)
	}

# Configuration

Default values match suture's production-ready defaults:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

# Service Interface

All services must implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return nil for a clean stop (no restart); return an error to have the
supervisor restart the service; return promptly on context cancellation.

# Debugging Shutdown Issues

If services don't stop within the timeout, UnstoppedServiceReport lists them.
*/
package supervisor
