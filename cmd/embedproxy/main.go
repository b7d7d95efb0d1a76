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

// Package main runs the auto-batching embedding proxy: it accepts /embed
// requests from many concurrent clients, groups them into upstream batches
// bounded by size and wait time, and fans each upstream response back to
// its originating caller.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"embedproxy/internal/audit"
	"embedproxy/internal/batcher"
	"embedproxy/internal/config"
	"embedproxy/internal/httpapi"
	"embedproxy/internal/logging"
	"embedproxy/internal/telemetry/batchstats"
	"embedproxy/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	auditor, err := audit.Build(audit.Options{
		Sink:       cfg.AuditSink,
		RedisAddr:  cfg.AuditRedisAddr,
		KafkaTopic: cfg.AuditKafkaTopic,
	}, logger)
	if err != nil {
		logger.Fatal("audit", zap.Error(err))
	}
	defer auditor.Close()

	var observer batcher.Observer
	if cfg.MetricsEnabled {
		observer = batchstats.New(prometheus.DefaultRegisterer)
	}

	upstreamClient := upstream.New(cfg.UpstreamURL(), cfg.UpstreamTimeout())

	batch := batcher.New(upstreamClient, batcher.Options{
		MaxBatchSize:        cfg.MaxBatchSize,
		MaxWaitTime:         cfg.MaxWait(),
		SubmitQueueCapacity: cfg.SubmitQueueCapacity,
		Observer:            observer,
		Auditor:             auditor,
	})
	batch.Start()

	server := httpapi.NewServer(batch, logger, cfg.MetricsEnabled)
	httpServer := server.NewHTTPServer(cfg.BindAddr(), cfg.UpstreamTimeout())

	go func() {
		logger.Info("embedproxy listening",
			zap.String("addr", cfg.BindAddr()),
			zap.String("upstream", cfg.UpstreamURL()),
			zap.Int("max_batch_size", cfg.MaxBatchSize),
			zap.Duration("max_wait_time", cfg.MaxWait()),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}

	batch.Stop()
	logger.Info("shutdown complete")
}
