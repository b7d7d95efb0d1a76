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
	"testing"
	"time"
)

type fakeRedisEvaler struct {
	calls []struct {
		script string
		keys   []string
	}
	returnErr error
}

func (f *fakeRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	f.calls = append(f.calls, struct {
		script string
		keys   []string
	}{script: script, keys: append([]string{}, keys...)})
	return int64(1), nil
}

func TestNewRedisSink_DefaultTTL(t *testing.T) {
	s := NewRedisSink(&fakeRedisEvaler{}, 0)
	if s.markerTTL != 24*time.Hour {
		t.Fatalf("expected default TTL 24h, got %v", s.markerTTL)
	}
}

func TestRedisSink_ObserveFlush(t *testing.T) {
	evaler := &fakeRedisEvaler{}
	s := NewRedisSink(evaler, time.Hour)
	if err := s.ObserveFlush(context.Background(), Record{BatchID: "abc"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evaler.calls) != 1 {
		t.Fatalf("expected 1 eval call, got %d", len(evaler.calls))
	}
	wantKeys := []string{flushCounterKey(), flushMarkerKey("abc")}
	got := evaler.calls[0].keys
	if len(got) != 2 || got[0] != wantKeys[0] || got[1] != wantKeys[1] {
		t.Fatalf("got keys %v, want %v", got, wantKeys)
	}
}

func TestRedisSink_ObserveFlush_PropagatesError(t *testing.T) {
	evaler := &fakeRedisEvaler{returnErr: context.DeadlineExceeded}
	s := NewRedisSink(evaler, time.Hour)
	if err := s.ObserveFlush(context.Background(), Record{BatchID: "abc"}); err == nil {
		t.Fatal("expected an error")
	}
}
