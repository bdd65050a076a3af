// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouterRequiresBearerTokenForReplayRoutes(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h, "secret-token", true)
	mux := router.Setup()

	req := httptest.NewRequest(http.MethodGet, "/replay/status?replay_id=r-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/replay/status?replay_id=r-1", nil)
	req2.Header.Set("Authorization", "Bearer secret-token")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestRouterHealthIsPublic(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h, "secret-token", true)
	mux := router.Setup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.NotEqual(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterAuthDisabledAllowsRequests(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h, "", false)
	mux := router.Setup()

	req := httptest.NewRequest(http.MethodGet, "/replay/status?replay_id=r-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
