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

// Package batchstats is the opt-in Prometheus Observer for the batcher: safe
// to call from the coordinator's hot path. It records from construction on;
// the process constructs it only when METRICS_ENABLED is set.
package batchstats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"embedproxy/internal/batcher"
)

// Recorder implements batcher.Observer against a fixed set of Prometheus
// collectors, registered once at construction.
type Recorder struct {
	queueDepth     prometheus.Gauge
	batchInputs    prometheus.Histogram
	batchItems     prometheus.Histogram
	flushLatency   prometheus.Histogram
	flushTriggers  *prometheus.CounterVec
	upstreamErrors prometheus.Counter
}

// New builds a Recorder and registers its collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the process-wide /metrics
// endpoint.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "embedproxy_queue_depth",
			Help: "Sum of queued input counts immediately after the last admission decision.",
		}),
		batchInputs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "embedproxy_batch_inputs",
			Help:    "Number of flat inputs carried by a completed flush.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
		}),
		batchItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "embedproxy_batch_items",
			Help:    "Number of distinct client requests carried by a completed flush.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
		flushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "embedproxy_flush_latency_seconds",
			Help:    "Upstream call latency for a single flush.",
			Buckets: prometheus.DefBuckets,
		}),
		flushTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedproxy_flush_trigger_total",
			Help: "Completed flushes by trigger reason (size, oversize, deadline, shutdown).",
		}, []string{"trigger"}),
		upstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "embedproxy_upstream_errors_total",
			Help: "Flushes that completed with an upstream error.",
		}),
	}
	reg.MustRegister(r.queueDepth, r.batchInputs, r.batchItems, r.flushLatency, r.flushTriggers, r.upstreamErrors)
	return r
}

func (r *Recorder) ObserveQueueDepth(sum int) {
	r.queueDepth.Set(float64(sum))
}

func (r *Recorder) ObserveFlush(items, inputs int, latency time.Duration, trigger batcher.FlushTrigger, err error) {
	r.batchItems.Observe(float64(items))
	r.batchInputs.Observe(float64(inputs))
	r.flushLatency.Observe(latency.Seconds())
	r.flushTriggers.WithLabelValues(string(trigger)).Inc()
	if err != nil {
		r.upstreamErrors.Inc()
	}
}

var _ batcher.Observer = (*Recorder)(nil)
