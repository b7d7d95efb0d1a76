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
	"fmt"
	"time"
)

// RedisSink records one idempotent marker per flush batch so a replayed
// audit stream (e.g. a retried exporter) cannot double-count a flush. It
// reuses the SETNX-then-expire pattern of an idempotent commit marker,
// applied here to flush observations instead of rate-limit commits.
type RedisSink struct {
	client    RedisEvaler
	markerTTL time.Duration
}

// NewRedisSink returns a sink using client, with markers expiring after ttl
// (defaults to 24h).
func NewRedisSink(client RedisEvaler, ttl time.Duration) *RedisSink {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSink{client: client, markerTTL: ttl}
}

// flushMarkerScript sets an idempotency marker for batch_id and, only the
// first time it is set, increments a counter of total audited flushes.
const flushMarkerScript = `
local counterKey = KEYS[1]
local markerKey = KEYS[2]
local ttlSeconds = tonumber(ARGV[1])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('INCR', counterKey)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

func flushCounterKey() string              { return "embedproxy:flushes:total" }
func flushMarkerKey(batchID string) string { return fmt.Sprintf("embedproxy:flush:%s", batchID) }

func (s *RedisSink) ObserveFlush(ctx context.Context, rec Record) error {
	keys := []string{flushCounterKey(), flushMarkerKey(rec.BatchID)}
	args := []interface{}{int(s.markerTTL.Seconds())}
	if _, err := s.client.Eval(ctx, flushMarkerScript, keys, args...); err != nil {
		return fmt.Errorf("audit: redis eval batch=%s: %w", rec.BatchID, err)
	}
	return nil
}

func (s *RedisSink) Close() error { return nil }
