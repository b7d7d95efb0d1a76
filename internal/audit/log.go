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

	"go.uber.org/zap"
)

// LogSink writes one structured zap line per flush. It is the sink used when
// AUDIT_SINK=log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink writing through logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) ObserveFlush(_ context.Context, rec Record) error {
	fields := []zap.Field{
		zap.String("batch_id", rec.BatchID),
		zap.Int("items", rec.Items),
		zap.Int("inputs", rec.Inputs),
		zap.Duration("latency", rec.Latency),
		zap.String("trigger", rec.Trigger),
	}
	if rec.Err != nil {
		s.logger.Warn("flush failed", append(fields, zap.Error(rec.Err))...)
	} else {
		s.logger.Info("flush completed", fields...)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
