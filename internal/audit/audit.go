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

// Package audit records one observation per completed flush for operators,
// independent of the client-visible reply path. It never caches or returns
// embedding results; it is an observability trail, not a result cache.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Record is one flush's audit trail entry.
type Record struct {
	BatchID string
	Items   int
	Inputs  int
	Latency time.Duration
	Trigger string
	Err     error
}

// Sink applies a single Record. Implementations may block; Sink is always
// invoked from the async wrapper's dedicated goroutine, never from the
// batcher's coordinator or flush goroutines directly.
type Sink interface {
	ObserveFlush(ctx context.Context, rec Record) error
	Close() error
}

// Auditor is the batcher-facing surface: non-blocking by construction.
type Auditor interface {
	ObserveFlush(rec Record)
	Close() error
}

// noopAuditor discards every record. It is used when AUDIT_SINK=none.
type noopAuditor struct{}

func (noopAuditor) ObserveFlush(Record) {}
func (noopAuditor) Close() error        { return nil }

// NewNoop returns the no-op Auditor.
func NewNoop() Auditor { return noopAuditor{} }

// async wraps a Sink with a bounded buffer and a single consumer goroutine,
// so a slow or failing sink can never delay a flush's reply to its clients.
// Records are dropped, not queued unboundedly, when the buffer is full.
type async struct {
	sink   Sink
	ch     chan Record
	logger *zap.Logger
	done   chan struct{}
}

const defaultAsyncBuffer = 256

// NewAsync wraps sink so ObserveFlush never blocks the caller.
func NewAsync(sink Sink, logger *zap.Logger) Auditor {
	a := &async{
		sink:   sink,
		ch:     make(chan Record, defaultAsyncBuffer),
		logger: logger,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *async) ObserveFlush(rec Record) {
	select {
	case a.ch <- rec:
	default:
		if a.logger != nil {
			a.logger.Warn("audit buffer full, dropping flush record", zap.String("batch_id", rec.BatchID))
		}
	}
}

func (a *async) run() {
	defer close(a.done)
	for rec := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.sink.ObserveFlush(ctx, rec); err != nil && a.logger != nil {
			a.logger.Warn("audit sink failed", zap.Error(err))
		}
		cancel()
	}
}

func (a *async) Close() error {
	close(a.ch)
	<-a.done
	return a.sink.Close()
}
