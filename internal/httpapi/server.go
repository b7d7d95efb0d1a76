// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi implements the public-facing HTTP surface of the proxy:
// a thin adapter that decodes requests, calls into the batcher, and encodes
// responses. It holds no batching state of its own.
package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"embedproxy/internal/batcher"
)

// Server wires the /embed endpoint (and /healthz, /metrics) to a Batcher.
type Server struct {
	batch          *batcher.Batcher
	logger         *zap.Logger
	metricsEnabled bool
}

// NewServer constructs a Server. batch must already be Start()-ed.
func NewServer(batch *batcher.Batcher, logger *zap.Logger, metricsEnabled bool) *Server {
	return &Server{batch: batch, logger: logger, metricsEnabled: metricsEnabled}
}

// RegisterRoutes sets up the HTTP routes for the server on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/embed", s.handleEmbed)
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
}

// NewHTTPServer builds the *http.Server wrapping this Server's mux, with
// timeouts sized for upstream calls that may legitimately take longer than a
// typical API request (the batch may wait up to MaxWaitTime before it even
// starts the upstream call).
func (s *Server) NewHTTPServer(addr string, upstreamTimeout time.Duration) *http.Server {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: upstreamTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}
