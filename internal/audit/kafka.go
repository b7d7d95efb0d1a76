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
	"encoding/json"
	"fmt"
	"time"
)

// KafkaSink publishes one JSON event per flush to a topic, for downstream
// stream consumers (dashboards, alerting) that want the flush trail as an
// event log rather than a request/response audit.
type KafkaSink struct {
	producer KafkaProducer
	topic    string
	timeout  time.Duration
}

// NewKafkaSink returns a sink publishing to topic via producer.
func NewKafkaSink(producer KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, timeout: 10 * time.Second}
}

type flushEvent struct {
	BatchID   string `json:"batch_id"`
	Items     int    `json:"items"`
	Inputs    int    `json:"inputs"`
	LatencyMS int64  `json:"latency_ms"`
	Trigger   string `json:"trigger"`
	Error     string `json:"error,omitempty"`
	TsUnixMs  int64  `json:"ts_unix_ms"`
}

func (s *KafkaSink) ObserveFlush(ctx context.Context, rec Record) error {
	if _, ok := ctx.Deadline(); !ok && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ev := flushEvent{
		BatchID:   rec.BatchID,
		Items:     rec.Items,
		Inputs:    rec.Inputs,
		LatencyMS: rec.Latency.Milliseconds(),
		Trigger:   rec.Trigger,
		TsUnixMs:  time.Now().UnixMilli(),
	}
	if rec.Err != nil {
		ev.Error = rec.Err.Error()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit: marshal flush event: %w", err)
	}
	headers := map[string]string{"content-type": "application/json"}
	if err := s.producer.Produce(ctx, s.topic, []byte(rec.BatchID), payload, headers); err != nil {
		return fmt.Errorf("audit: kafka produce batch=%s: %w", rec.BatchID, err)
	}
	return nil
}

func (s *KafkaSink) Close() error { return nil }
