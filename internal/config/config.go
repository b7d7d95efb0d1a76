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

// Package config loads the proxy's runtime configuration from the
// environment. All knobs are immutable once the process has started.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config is the full set of environment-driven knobs for the proxy.
type Config struct {
	// Batching (spec-mandated).
	MaxBatchSize int `env:"MAX_BATCH_SIZE" envDefault:"8"`
	MaxWaitTime  int `env:"MAX_WAIT_TIME" envDefault:"100"` // milliseconds

	// Upstream.
	InferenceServiceHost string `env:"INFERENCE_SERVICE_HOST" envDefault:"127.0.0.1"`
	InferenceServicePort int    `env:"INFERENCE_SERVICE_PORT" envDefault:"8080"`
	UpstreamTimeoutMS    int    `env:"UPSTREAM_TIMEOUT_MS" envDefault:"10000"`

	// Bootstrap.
	AppPort  int    `env:"APP_PORT" envDefault:"3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Admission / back-pressure. 0 means unbounded.
	SubmitQueueCapacity int `env:"SUBMIT_QUEUE_CAPACITY" envDefault:"0"`

	// Observability.
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"false"`

	// Flush auditing. Sink is one of: none, log, redis, kafka.
	AuditSink       string `env:"AUDIT_SINK" envDefault:"none"`
	AuditRedisAddr  string `env:"AUDIT_REDIS_ADDR" envDefault:""`
	AuditKafkaTopic string `env:"AUDIT_KAFKA_TOPIC" envDefault:"embedproxy-flushes"`
}

// Load reads and validates the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that violate the invariants in the data
// model (§3): MAX_BATCH_SIZE must be positive, MAX_WAIT_TIME non-negative.
func (c Config) Validate() error {
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("config: MAX_BATCH_SIZE must be positive, got %d", c.MaxBatchSize)
	}
	if c.MaxWaitTime < 0 {
		return fmt.Errorf("config: MAX_WAIT_TIME must be non-negative, got %d", c.MaxWaitTime)
	}
	if c.SubmitQueueCapacity < 0 {
		return fmt.Errorf("config: SUBMIT_QUEUE_CAPACITY must be non-negative, got %d", c.SubmitQueueCapacity)
	}
	switch c.AuditSink {
	case "none", "log", "redis", "kafka":
	default:
		return fmt.Errorf("config: unknown AUDIT_SINK %q", c.AuditSink)
	}
	return nil
}

// MaxWait returns MaxWaitTime as a time.Duration.
func (c Config) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitTime) * time.Millisecond
}

// UpstreamTimeout returns UpstreamTimeoutMS as a time.Duration.
func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutMS) * time.Millisecond
}

// UpstreamURL composes the upstream base URL from host and port.
func (c Config) UpstreamURL() string {
	return fmt.Sprintf("http://%s:%d", c.InferenceServiceHost, c.InferenceServicePort)
}

// BindAddr is the address the HTTP server listens on.
func (c Config) BindAddr() string {
	return fmt.Sprintf(":%d", c.AppPort)
}
