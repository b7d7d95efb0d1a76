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

// Package batcher implements the auto-batching coordinator: the single
// goroutine that accumulates per-request embedding inputs into upstream
// batches bounded by size and first-item wait time, and fans the upstream
// response back to each originating caller.
package batcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"embedproxy/internal/audit"
)

// Embedding is one embedding vector, as returned by the upstream service.
type Embedding []float64

// UpstreamClient issues one HTTP call for a flat list of inputs and returns
// a flat, positionally-corresponding list of embeddings.
type UpstreamClient interface {
	Embed(ctx context.Context, inputs []string) ([]Embedding, error)
}

// item is one client request's contribution to a batch: its ordered inputs
// and the single-use reply handle owned by the Batcher from enqueue until a
// reply has been sent exactly once.
type item struct {
	inputs []string
	reply  chan replyMsg
}

type replyMsg struct {
	embeddings []Embedding
	err        error
}

// submission is what a caller hands to the coordinator goroutine.
type submission struct {
	inputs []string
	reply  chan replyMsg
}

// Options configures a Batcher. MaxBatchSize and MaxWaitTime mirror the
// config fields of the same name; SubmitQueueCapacity <= 0 means an
// unbounded (direct hand-off, never-rejecting) submission channel.
type Options struct {
	MaxBatchSize        int
	MaxWaitTime         time.Duration
	SubmitQueueCapacity int
	Observer            Observer
	Auditor             audit.Auditor
}

// Batcher owns the only copy of the pending queue and the deadline timer,
// and is the sole caller of the Upstream Client. All queue-mutating state is
// private to its coordinator goroutine, following the single-worker
// ingress-channel shape of a time-capped batching service.
type Batcher struct {
	upstream UpstreamClient
	opts     Options
	observer Observer
	auditor  audit.Auditor

	submitCh  chan submission
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	inflight  sync.WaitGroup
}

// New constructs a Batcher. Call Start before Submit.
func New(upstream UpstreamClient, opts Options) *Batcher {
	if opts.MaxBatchSize <= 0 {
		panic("batcher: MaxBatchSize must be positive")
	}
	if opts.Observer == nil {
		opts.Observer = NoopObserver{}
	}
	if opts.Auditor == nil {
		opts.Auditor = audit.NewNoop()
	}
	capacity := opts.SubmitQueueCapacity
	var ch chan submission
	if capacity > 0 {
		ch = make(chan submission, capacity)
	} else {
		ch = make(chan submission)
	}
	return &Batcher{
		upstream: upstream,
		opts:     opts,
		observer: opts.Observer,
		auditor:  opts.Auditor,
		submitCh: ch,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the coordinator goroutine. Safe to call once; subsequent
// calls are no-ops.
func (b *Batcher) Start() {
	b.startOnce.Do(func() {
		go b.run()
	})
}

// Stop requests a graceful shutdown: the current queue is flushed, all
// in-flight flushes are allowed to complete and deliver their replies, and
// then the coordinator exits. Stop blocks until shutdown is complete.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
}

// Submit suspends the caller until the batch containing inputs has been
// answered by the upstream (returning the contiguous, order-preserving
// slice of embeddings for inputs), or returns an error: UpstreamError on
// upstream failure, BatcherUnavailable if the coordinator has exited, or
// Overloaded if a bounded submission channel is full.
func (b *Batcher) Submit(ctx context.Context, inputs []string) ([]Embedding, error) {
	reply := make(chan replyMsg, 1)
	sub := submission{inputs: inputs, reply: reply}

	if b.opts.SubmitQueueCapacity > 0 {
		select {
		case b.submitCh <- sub:
		case <-b.doneCh:
			return nil, ErrBatcherUnavailable
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return nil, ErrOverloaded
		}
	} else {
		select {
		case b.submitCh <- sub:
		case <-b.doneCh:
			return nil, ErrBatcherUnavailable
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	select {
	case msg := <-reply:
		return msg.embeddings, msg.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.doneCh:
		// A flush drained by Stop delivers before doneCh closes.
		select {
		case msg := <-reply:
			return msg.embeddings, msg.err
		default:
		}
		return nil, ErrBatcherUnavailable
	}
}

// run is the coordinator's single-goroutine loop. It is the only mutator of
// queue, queuedSum, and the deadline timer, so every queue-mutating
// operation below is implicitly serialized.
func (b *Batcher) run() {
	defer close(b.doneCh)

	var queue []*item
	queuedSum := 0
	var timer *time.Timer
	var timerC <-chan time.Time

	armTimer := func() {
		timer = time.NewTimer(b.opts.MaxWaitTime)
		timerC = timer.C
	}
	disarmTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	flush := func(trigger FlushTrigger) {
		if len(queue) == 0 {
			return
		}
		flushed := queue
		queue = nil
		queuedSum = 0
		disarmTimer()
		b.inflight.Add(1)
		go b.processFlush(flushed, trigger)
	}
	admit := func(sub submission) {
		it := &item{inputs: sub.inputs, reply: sub.reply}
		size := len(sub.inputs)

		if len(queue) == 0 {
			queue = append(queue, it)
			queuedSum = size
			armTimer()
		} else if queuedSum+size <= b.opts.MaxBatchSize {
			queue = append(queue, it)
			queuedSum += size
		} else {
			flush(TriggerOversize)
			queue = append(queue, it)
			queuedSum = size
			armTimer()
		}

		switch {
		case queuedSum == b.opts.MaxBatchSize:
			flush(TriggerSize)
		case queuedSum > b.opts.MaxBatchSize:
			flush(TriggerOversize)
		}
		b.observer.ObserveQueueDepth(queuedSum)
	}

	for {
		select {
		case sub := <-b.submitCh:
			admit(sub)
		case <-timerC:
			flush(TriggerDeadline)
		case <-b.stopCh:
			flush(TriggerShutdown)
			b.inflight.Wait()
			return
		}
	}
}

// processFlush detaches a flush unit from the coordinator's perspective: it
// runs independently so further admissions are never blocked on an
// in-flight upstream call.
func (b *Batcher) processFlush(items []*item, trigger FlushTrigger) {
	defer b.inflight.Done()

	batchID := audit.NewBatchID()
	flat, offsets := flattenInputs(items)

	start := time.Now()
	embeddings, err := b.upstream.Embed(context.Background(), flat)
	latency := time.Since(start)

	if err == nil && len(embeddings) != len(flat) {
		err = &UpstreamError{Err: fmt.Errorf("%w: got %d, want %d", ErrShapeMismatch, len(embeddings), len(flat))}
	} else if err != nil {
		if _, ok := err.(*UpstreamError); !ok {
			err = &UpstreamError{Err: err}
		}
	}

	if err != nil {
		for _, it := range items {
			deliver(it, nil, err)
		}
	} else {
		for i, it := range items {
			deliver(it, embeddings[offsets[i]:offsets[i+1]], nil)
		}
	}

	b.observer.ObserveFlush(len(items), len(flat), latency, trigger, err)
	b.auditor.ObserveFlush(audit.Record{
		BatchID: batchID,
		Items:   len(items),
		Inputs:  len(flat),
		Latency: latency,
		Trigger: string(trigger),
		Err:     err,
	})
}

// deliver sends a reply on an item's single-use, capacity-1 channel. The
// send never blocks: if the submitting handler's context was cancelled and
// nobody will ever receive, the buffered send still succeeds and the value
// is simply discarded with the channel, which is cancellation-safe and
// never affects sibling items in the same flush.
func deliver(it *item, embeddings []Embedding, err error) {
	it.reply <- replyMsg{embeddings: embeddings, err: err}
}

// flattenInputs concatenates every item's inputs in queue order and returns
// the per-item offsets into that concatenation: item i's slice of the
// upstream response is flat[offsets[i]:offsets[i+1]].
func flattenInputs(items []*item) (flat []string, offsets []int) {
	offsets = make([]int, len(items)+1)
	total := 0
	for _, it := range items {
		total += len(it.inputs)
	}
	flat = make([]string, 0, total)
	for i, it := range items {
		offsets[i] = len(flat)
		flat = append(flat, it.inputs...)
	}
	offsets[len(items)] = len(flat)
	return flat, offsets
}
