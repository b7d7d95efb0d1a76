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

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeSink struct {
	mu      sync.Mutex
	seen    []Record
	failErr error
	closed  bool
}

func (f *fakeSink) ObserveFlush(ctx context.Context, rec Record) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.mu.Lock()
	f.seen = append(f.seen, rec)
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func TestNoopAuditor_DiscardsEverything(t *testing.T) {
	a := NewNoop()
	a.ObserveFlush(Record{BatchID: "x"})
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAsync_DeliversToSink(t *testing.T) {
	sink := &fakeSink{}
	a := NewAsync(sink, zap.NewNop())
	a.ObserveFlush(Record{BatchID: "a", Items: 2})
	a.ObserveFlush(Record{BatchID: "b", Items: 3})

	deadline := time.Now().Add(time.Second)
	for sink.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := sink.count(); got != 2 {
		t.Fatalf("expected 2 records delivered, got %d", got)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sink.closed {
		t.Fatal("expected sink.Close to be called")
	}
}

func TestAsync_ObserveFlushNeverBlocks(t *testing.T) {
	sink := &fakeSink{}
	a := NewAsync(sink, zap.NewNop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultAsyncBuffer*2; i++ {
			a.ObserveFlush(Record{BatchID: "flood"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ObserveFlush blocked under buffer pressure")
	}
	_ = a.Close()
}

func TestAsync_SinkErrorDoesNotPanic(t *testing.T) {
	sink := &fakeSink{failErr: errors.New("boom")}
	a := NewAsync(sink, zap.NewNop())
	a.ObserveFlush(Record{BatchID: "x"})
	time.Sleep(10 * time.Millisecond)
	_ = a.Close()
}
