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

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeUpstream records every call it receives and answers with one
// deterministic embedding per input, unless forced to fail.
type fakeUpstream struct {
	mu       sync.Mutex
	calls    [][]string
	failNext bool
	delay    time.Duration
}

func (f *fakeUpstream) Embed(ctx context.Context, inputs []string) ([]Embedding, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), inputs...))
	fail := f.failNext
	f.failNext = false
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		return nil, errors.New("upstream boom")
	}
	out := make([]Embedding, len(inputs))
	for i, in := range inputs {
		out[i] = Embedding{float64(len(in))}
	}
	return out, nil
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func submitAsync(t *testing.T, b *Batcher, input string) <-chan replyMsg {
	t.Helper()
	done := make(chan replyMsg, 1)
	go func() {
		embeddings, err := b.Submit(context.Background(), []string{input})
		done <- replyMsg{embeddings: embeddings, err: err}
	}()
	return done
}

func TestBatcher_FlushesOnSize(t *testing.T) {
	up := &fakeUpstream{}
	b := New(up, Options{MaxBatchSize: 2, MaxWaitTime: time.Hour})
	b.Start()
	defer b.Stop()

	r1 := submitAsync(t, b, "a")
	r2 := submitAsync(t, b, "bb")

	for _, r := range []<-chan replyMsg{r1, r2} {
		select {
		case msg := <-r:
			if msg.err != nil {
				t.Fatalf("unexpected error: %v", msg.err)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for reply")
		}
	}
	if got := up.callCount(); got != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", got)
	}
}

func TestBatcher_FlushesOnDeadline(t *testing.T) {
	up := &fakeUpstream{}
	b := New(up, Options{MaxBatchSize: 100, MaxWaitTime: 20 * time.Millisecond})
	b.Start()
	defer b.Stop()

	r := submitAsync(t, b, "solo")
	select {
	case msg := <-r:
		if msg.err != nil {
			t.Fatalf("unexpected error: %v", msg.err)
		}
	case <-time.After(time.Second):
		t.Fatal("deadline flush never happened")
	}
	if got := up.callCount(); got != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", got)
	}
}

func TestBatcher_OversizeItemAdmittedAlone(t *testing.T) {
	up := &fakeUpstream{}
	b := New(up, Options{MaxBatchSize: 2, MaxWaitTime: time.Hour})
	b.Start()
	defer b.Stop()

	embeddings, err := b.Submit(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(embeddings))
	}
}

func TestBatcher_OverflowFlushesExistingBeforeAdmittingNew(t *testing.T) {
	up := &fakeUpstream{}
	b := New(up, Options{MaxBatchSize: 2, MaxWaitTime: time.Hour})
	b.Start()
	defer b.Stop()

	r1 := submitAsync(t, b, "a")
	// Give the first submission a moment to be admitted and arm the timer.
	time.Sleep(20 * time.Millisecond)
	// Two inputs would overflow MaxBatchSize=2 (1+2>2): flush then admit alone.
	r2 := make(chan replyMsg, 1)
	go func() {
		embeddings, err := b.Submit(context.Background(), []string{"b", "c"})
		r2 <- replyMsg{embeddings: embeddings, err: err}
	}()

	for _, r := range []<-chan replyMsg{r1, r2} {
		select {
		case msg := <-r:
			if msg.err != nil {
				t.Fatalf("unexpected error: %v", msg.err)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for reply")
		}
	}
	if got := up.callCount(); got != 2 {
		t.Fatalf("expected two separate upstream calls, got %d", got)
	}
}

func TestBatcher_UpstreamErrorFansOutToWholeBatch(t *testing.T) {
	up := &fakeUpstream{failNext: true}
	b := New(up, Options{MaxBatchSize: 2, MaxWaitTime: time.Hour})
	b.Start()
	defer b.Stop()

	r1 := submitAsync(t, b, "a")
	r2 := submitAsync(t, b, "b")

	for _, r := range []<-chan replyMsg{r1, r2} {
		select {
		case msg := <-r:
			var upErr *UpstreamError
			if !errors.As(msg.err, &upErr) {
				t.Fatalf("expected *UpstreamError, got %v", msg.err)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for reply")
		}
	}
}

func TestBatcher_PreservesOrderUnderConcurrentSubmission(t *testing.T) {
	up := &fakeUpstream{}
	b := New(up, Options{MaxBatchSize: 16, MaxWaitTime: 10 * time.Millisecond})
	b.Start()
	defer b.Stop()

	const n = 50
	var wg sync.WaitGroup
	results := make([][]Embedding, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := strconv.Itoa(i)
			emb, err := b.Submit(context.Background(), []string{in})
			results[i] = emb
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("item %d: unexpected error: %v", i, errs[i])
		}
		if len(results[i]) != 1 {
			t.Fatalf("item %d: expected 1 embedding, got %d", i, len(results[i]))
		}
		want := Embedding{float64(len(strconv.Itoa(i)))}
		if results[i][0][0] != want[0] {
			t.Fatalf("item %d: got embedding %v, want %v", i, results[i], want)
		}
	}
}

func TestBatcher_StopDrainsInFlightFlushes(t *testing.T) {
	up := &fakeUpstream{delay: 50 * time.Millisecond}
	b := New(up, Options{MaxBatchSize: 1, MaxWaitTime: time.Hour})
	b.Start()

	r := submitAsync(t, b, "a")
	time.Sleep(10 * time.Millisecond) // let it be admitted and flushed (size==1)
	b.Stop()

	select {
	case msg := <-r:
		if msg.err != nil {
			t.Fatalf("unexpected error: %v", msg.err)
		}
	default:
		t.Fatal("Stop returned before in-flight flush delivered its reply")
	}
}

func TestBatcher_SubmitAfterStopReturnsUnavailable(t *testing.T) {
	up := &fakeUpstream{}
	b := New(up, Options{MaxBatchSize: 2, MaxWaitTime: time.Hour})
	b.Start()
	b.Stop()

	_, err := b.Submit(context.Background(), []string{"a"})
	if !errors.Is(err, ErrBatcherUnavailable) {
		t.Fatalf("expected ErrBatcherUnavailable, got %v", err)
	}
}

// blockingObserver stalls the coordinator goroutine inside
// ObserveQueueDepth until release is closed.
type blockingObserver struct {
	NoopObserver
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (o *blockingObserver) ObserveQueueDepth(int) {
	o.once.Do(func() { close(o.entered) })
	<-o.release
}

func TestBatcher_OverloadedWhenQueueFull(t *testing.T) {
	up := &fakeUpstream{}
	obs := &blockingObserver{entered: make(chan struct{}), release: make(chan struct{})}
	b := New(up, Options{MaxBatchSize: 1, MaxWaitTime: time.Hour, SubmitQueueCapacity: 1, Observer: obs})
	b.Start()
	defer b.Stop()

	// First submission is picked up by the coordinator, which then stalls in
	// ObserveQueueDepth and stops draining the submission channel.
	r1 := submitAsync(t, b, "a")
	<-obs.entered

	// Fill the bounded channel, then overflow it.
	r2 := submitAsync(t, b, "b")
	time.Sleep(10 * time.Millisecond)

	_, err := b.Submit(context.Background(), []string{"c"})
	close(obs.release)
	if !errors.Is(err, ErrOverloaded) {
		t.Fatalf("expected ErrOverloaded, got %v", err)
	}

	<-r1
	<-r2
}

func TestFlattenInputs(t *testing.T) {
	items := []*item{
		{inputs: []string{"a", "bb"}},
		{inputs: []string{"ccc"}},
		{inputs: nil},
	}
	flat, offsets := flattenInputs(items)
	want := []string{"a", "bb", "ccc"}
	if len(flat) != len(want) {
		t.Fatalf("got %v, want %v", flat, want)
	}
	for i := range want {
		if flat[i] != want[i] {
			t.Fatalf("got %v, want %v", flat, want)
		}
	}
	wantOffsets := []int{0, 2, 3, 3}
	if len(offsets) != len(wantOffsets) {
		t.Fatalf("got offsets %v, want %v", offsets, wantOffsets)
	}
	for i := range wantOffsets {
		if offsets[i] != wantOffsets[i] {
			t.Fatalf("got offsets %v, want %v", offsets, wantOffsets)
		}
	}
}
