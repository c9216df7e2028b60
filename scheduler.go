// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

import (
	"sync"

	"github.com/DataDog/dwarfcols/column"
)

// deliveredChunk is one entry of the scheduler's delivery queue (spec §4.F).
type deliveredChunk struct {
	chunk column.Chunk
}

// scheduler implements component F (spec §4.F): a fixed-size worker pool
// draining a unit queue into a bounded delivery queue. All mutable state is
// guarded by mu; wakeUp and deliverChunk are the two condition variables the
// spec names explicitly — condition variables, not channels, so the
// back-pressure and front-of-queue re-enqueue suspension points match the
// spec's description 1:1 (see DESIGN.md).
type scheduler struct {
	mu           sync.Mutex
	wakeUp       sync.Cond // signaled when the consumer drains a chunk, or on stop
	deliverChunk sync.Cond // signaled when a worker publishes a chunk, stops, or fails

	units           []*unitState
	delivered       []deliveredChunk
	unitsInProgress int
	stopped         bool
	backgroundErr   error

	env *decoderEnv
	need columnSet
	n    int // worker pool size / back-pressure bound N

	wg sync.WaitGroup
}

func newScheduler(env *decoderEnv, units []*unitState, need columnSet, n int) *scheduler {
	if n < 1 {
		n = 1
	}
	s := &scheduler{
		units: units,
		env:   env,
		need:  need,
		n:     n,
	}
	s.wakeUp.L = &s.mu
	s.deliverChunk.L = &s.mu
	return s
}

// start launches the worker pool. Must be called at most once.
func (s *scheduler) start() {
	s.wg.Add(s.n)
	for i := 0; i < s.n; i++ {
		go s.workerLoop()
	}
}

// workerLoop implements spec §4.F's worker body.
func (s *scheduler) workerLoop() {
	defer s.wg.Done()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.stopped || len(s.units) == 0 {
			return
		}
		if len(s.delivered) > s.n {
			s.wakeUp.Wait()
			continue
		}

		u := s.units[0]
		s.units = s.units[1:]
		s.unitsInProgress++
		s.mu.Unlock()

		chunk, _, err := s.decodeOne(u)

		s.mu.Lock()
		s.unitsInProgress--

		if err != nil {
			if s.backgroundErr == nil {
				s.backgroundErr = err
			}
			s.deliverChunk.Broadcast()
			continue
		}

		if chunk.NumRows > 0 {
			s.delivered = append(s.delivered, deliveredChunk{chunk: chunk})
			s.deliverChunk.Signal()
		}
		if !u.done() {
			// Re-enqueue at the front so the unit's remaining rows are
			// delivered before any other unit's, preserving the
			// same-unit byte-offset ordering spec §5 guarantees.
			s.units = append([]*unitState{u}, s.units...)
		}
	}
}

// decodeOne runs decodeUnit with panic capture, so a bug in the decoder
// surfaces as a background error rather than taking down the whole pool
// (spec §4.F: "On any exception inside a worker...").
func (s *scheduler) decodeOne(u *unitState) (chunk column.Chunk, bytesConsumed uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = internalErrorf("panic decoding unit at %#x: %v", u.header.Offset, r)
		}
	}()
	return decodeUnit(s.env, u, s.need)
}

// stop sets the cancellation flag and wakes every waiter, draining the pool
// quickly (spec §4.F "Cancellation", §4.G "scope guard").
func (s *scheduler) stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wakeUp.Broadcast()
	s.deliverChunk.Broadcast()
}

// wait blocks until every worker goroutine has returned. Call after stop.
func (s *scheduler) wait() {
	s.wg.Wait()
}
