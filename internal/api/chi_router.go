// Replay Engine - Deterministic event replay and anomaly detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/replay-engine

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires the control HTTP surface onto a Chi mux.
type Router struct {
	Handler    *Handler
	AuthToken  string
	EnableAuth bool
}

// NewRouter constructs a Router bound to the given handler and auth settings.
func NewRouter(h *Handler, authToken string, enableAuth bool) *Router {
	return &Router{Handler: h, AuthToken: authToken, EnableAuth: enableAuth}
}

// Setup builds the full route tree: health and metrics are always public,
// every /replay/* route is rate-limited and, when enabled, bearer-token
// gated.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		MaxAge:           300,
		AllowCredentials: false,
	}))

	r.Get("/health", router.Handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/replay", func(r chi.Router) {
		r.Use(httprate.LimitByIP(120, time.Minute))
		r.Use(router.authenticate)

		r.Post("/start", router.Handler.StartReplay)
		r.Post("/stop", router.Handler.StopReplay)
		r.Get("/status", router.Handler.Status)
		r.Get("/list", router.Handler.List)
	})

	return r
}

// authenticate enforces the shared-token bearer scheme. When
// auth is disabled (development/test), every request passes through.
func (router *Router) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !router.EnableAuth {
			next.ServeHTTP(w, r)
			return
		}
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != router.AuthToken {
			NewResponseWriter(w, r).Unauthorized("missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
