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
	"crypto/rand"
	"encoding/hex"

	"go.uber.org/zap"

	redis "github.com/redis/go-redis/v9"
)

// RedisEvaler abstracts the minimal surface needed from a Redis client.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// GoRedisEvaler wraps github.com/redis/go-redis/v9 as a RedisEvaler.
type GoRedisEvaler struct{ c *redis.Client }

// NewGoRedisEvaler dials addr (e.g. "127.0.0.1:6379") lazily; redis.NewClient
// does not connect eagerly.
func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// LoggingRedisEvaler logs what it would have evaluated, for dependency-free
// operation when no AUDIT_REDIS_ADDR is configured.
type LoggingRedisEvaler struct{ logger *zap.Logger }

func (l LoggingRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	l.logger.Debug("redis-demo eval", zap.Int("script_len", len(script)), zap.Strings("keys", keys))
	return int64(1), nil
}

// KafkaProducer is a minimal abstraction over a Kafka client. No concrete
// Kafka client is wired: none of the retrieval pack's go.mod files import
// one, so this stays an interface with a logging implementation, exactly as
// the teacher's own KafkaProducer does (see DESIGN.md).
type KafkaProducer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// LoggingKafkaProducer logs each produced message instead of publishing it.
type LoggingKafkaProducer struct{ logger *zap.Logger }

func (p LoggingKafkaProducer) Produce(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	p.logger.Debug("kafka-demo produce", zap.String("topic", topic), zap.ByteString("key", key), zap.Int("value_len", len(value)))
	return nil
}

// NewBatchID returns a random identifier for tagging one flush's audit
// trail across ObserveFlush and, for the Redis sink, its idempotency marker.
func NewBatchID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	dst := make([]byte, 32)
	hex.Encode(dst, b[:])
	return string(dst)
}
