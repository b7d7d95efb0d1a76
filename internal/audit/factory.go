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
	"fmt"

	"go.uber.org/zap"
)

// Options selects and configures a flush auditor.
type Options struct {
	// Sink is one of: none, log, redis, kafka.
	Sink       string
	RedisAddr  string
	KafkaTopic string
}

// Build constructs the configured Auditor, always wrapped so ObserveFlush
// never blocks the batcher.
func Build(opts Options, logger *zap.Logger) (Auditor, error) {
	switch opts.Sink {
	case "", "none":
		return NewNoop(), nil
	case "log":
		return NewAsync(NewLogSink(logger), logger), nil
	case "redis":
		var evaler RedisEvaler
		if opts.RedisAddr != "" {
			evaler = NewGoRedisEvaler(opts.RedisAddr)
		} else {
			evaler = LoggingRedisEvaler{logger: logger}
		}
		return NewAsync(NewRedisSink(evaler, 0), logger), nil
	case "kafka":
		topic := opts.KafkaTopic
		if topic == "" {
			topic = "embedproxy-flushes"
		}
		return NewAsync(NewKafkaSink(LoggingKafkaProducer{logger: logger}, topic), logger), nil
	default:
		return nil, fmt.Errorf("audit: unknown sink %q", opts.Sink)
	}
}
