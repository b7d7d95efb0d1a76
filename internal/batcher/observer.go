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

package batcher

import "time"

// FlushTrigger names the reason a flush occurred, for telemetry labeling
// only; it never affects batching semantics.
type FlushTrigger string

const (
	TriggerSize     FlushTrigger = "size"
	TriggerOversize FlushTrigger = "oversize"
	TriggerDeadline FlushTrigger = "deadline"
	TriggerShutdown FlushTrigger = "shutdown"
)

// Observer receives best-effort notifications about the batcher's internal
// state. Implementations must not block: the batcher calls Observer hooks
// synchronously from the coordinator goroutine (ObserveQueueDepth) or from a
// flush's own goroutine (ObserveFlush). A slow ObserveQueueDepth delays
// admission of new items; ObserveFlush runs after that flush's replies have
// been delivered, so a slow one delays Stop's drain of in-flight flushes.
type Observer interface {
	// ObserveQueueDepth reports the sum of queued input counts immediately
	// after an admission decision.
	ObserveQueueDepth(sum int)
	// ObserveFlush reports one completed flush: how many items and flat
	// inputs it carried, how long the upstream call took, what triggered
	// it, and its outcome (nil on success).
	ObserveFlush(items, inputs int, latency time.Duration, trigger FlushTrigger, err error)
}

// NoopObserver discards every observation. It is the default Observer.
type NoopObserver struct{}

func (NoopObserver) ObserveQueueDepth(int) {}
func (NoopObserver) ObserveFlush(int, int, time.Duration, FlushTrigger, error) {}
