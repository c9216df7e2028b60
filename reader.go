// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/DataDog/dwarfcols/column"
	"github.com/DataDog/dwarfcols/elfsrc"
)

// Chunk is one finished batch of rows; an alias of column.Chunk so callers
// that only use Reader never need to import package column directly.
type Chunk = column.Chunk

// Reader streams the DIEs of one ELF/DWARF input as a sequence of Chunks
// (component G, spec §4.G). The zero value is not usable; construct one via
// Open or OpenReader.
type Reader struct {
	openFn  func() (*elfsrc.Image, error)
	factory column.Factory
	need    columnSet
	cfg     Config

	warnRate *rate.Limiter

	mu      sync.Mutex // guards one-time lazy init only; the scheduler owns its own mutex thereafter
	started bool
	initErr error

	img   *elfsrc.Image
	sched *scheduler
}

// Open constructs a Reader over f (spec §4.A: a local regular file at offset
// zero is memory-mapped). Initialization — parsing the ELF image, the DWARF
// context, and the compilation-unit headers, and spawning the worker pool —
// is deferred to the first Next call (spec §4.G "Lazily initialize").
func Open(f *os.File, factory column.Factory, columns []string, opts ...Option) (*Reader, error) {
	return newReader(func() (*elfsrc.Image, error) { return elfsrc.Open(f) }, factory, columns, opts...)
}

// OpenReader constructs a Reader over an arbitrary byte stream, which is
// fully materialized in memory (spec §4.A, §6).
func OpenReader(src io.Reader, factory column.Factory, columns []string, opts ...Option) (*Reader, error) {
	return newReader(func() (*elfsrc.Image, error) { return elfsrc.OpenReader(src) }, factory, columns, opts...)
}

func newReader(openFn func() (*elfsrc.Image, error), factory column.Factory, columns []string, opts ...Option) (*Reader, error) {
	need, err := newColumnSet(columns)
	if err != nil {
		return nil, err
	}
	return &Reader{
		openFn:  openFn,
		factory: factory,
		need:    need,
		cfg:     newConfig(opts...),
		// Package-wide warning-volume throttle (spec §2.1), grounded
		// directly on the teacher's loclistErrorLogLimiter /
		// invalidGoRuntimeTypeLogLimiter pattern (pkg/dyninst/irgen.go):
		// one token per 10 minutes, burst of 10, so a pathological input
		// cannot flood the configured logger even though each unit's own
		// 10-warning cap (decode.go) is respected individually.
		warnRate: rate.NewLimiter(rate.Every(10*time.Minute), 10),
	}, nil
}

// ensureStarted performs the one-time lazy initialization spec §4.G
// describes, memoizing both success and failure.
func (r *Reader) ensureStarted() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return r.initErr
	}
	r.started = true

	img, err := r.openFn()
	if err != nil {
		r.initErr = &ElfError{Err: err}
		return r.initErr
	}

	ctx, err := newDwarfCtx(img)
	if err != nil {
		img.Close()
		r.initErr = err
		return r.initErr
	}

	headers, err := ctx.enumerateUnits()
	if err != nil {
		img.Close()
		r.initErr = err
		return r.initErr
	}

	// Abbreviation-table parsing is performed sequentially here, before any
	// worker goroutine starts, per spec §5: "All DWARF-context pre-work that
	// the underlying decoder library declares non-thread-safe... is
	// performed sequentially at init time, so that per-unit decoding is
	// thread-independent thereafter." Only the already-memoized abbrevTable
	// lookup is reachable from workers afterward.
	units := make([]*unitState, 0, len(headers))
	for _, h := range headers {
		abbrevs, err := ctx.abbrevTable(h.AbbrevOffset)
		if err != nil {
			img.Close()
			r.initErr = err
			return r.initErr
		}
		units = append(units, newUnitState(h, abbrevs))
	}

	reg := newDictRegistry(r.factory)
	env := &decoderEnv{
		ctx:      ctx,
		reg:      reg,
		factory:  r.factory,
		rowCap:   r.cfg.ChunkRowLimit,
		logger:   r.cfg.Logger,
		warnRate: r.warnRate,
	}

	sched := newScheduler(env, units, r.need, r.cfg.MaxParsingThreads)
	sched.start()

	r.img = img
	r.sched = sched
	return nil
}

// Next returns the next chunk of decoded rows, or io.EOF once the input is
// exhausted (component G, spec §4.G). It blocks until a chunk is available,
// the stream ends, a worker fails, or ctx is done.
func (r *Reader) Next(ctx context.Context) (Chunk, error) {
	if err := r.ensureStarted(); err != nil {
		return Chunk{}, err
	}
	s := r.sched

	var cancelWatch chan struct{}
	if ctx != nil && ctx.Done() != nil {
		cancelWatch = make(chan struct{})
		defer close(cancelWatch)
		go func() {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.deliverChunk.Broadcast()
				s.mu.Unlock()
			case <-cancelWatch:
			}
		}()
	}

	s.mu.Lock()
	// A scope guard: any abnormal return (error, or ctx cancellation) stops
	// the pool and wakes every worker, so a consumer that gives up shuts
	// decoding down cleanly (spec §4.G point 3) rather than leaking workers.
	abnormal := true
	defer func() {
		s.mu.Unlock()
		if abnormal {
			s.stop()
		}
	}()

	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return Chunk{}, ctx.Err()
			default:
			}
		}
		if s.stopped {
			abnormal = false
			return Chunk{}, io.EOF
		}
		if s.backgroundErr != nil {
			return Chunk{}, s.backgroundErr
		}
		if len(s.delivered) > 0 {
			d := s.delivered[0]
			s.delivered = s.delivered[1:]
			s.wakeUp.Signal()
			abnormal = false
			return d.chunk, nil
		}
		if len(s.units) == 0 && s.unitsInProgress == 0 {
			abnormal = false
			return Chunk{}, io.EOF
		}
		s.deliverChunk.Wait()
	}
}

// Close stops the worker pool, joins every worker, and releases the
// underlying ELF image (spec §4.G "Reset", §5: resources are released
// synchronously after joining all workers). A Reader that was never used is
// safe to Close.
func (r *Reader) Close() error {
	r.mu.Lock()
	started := r.started
	sched := r.sched
	img := r.img
	r.mu.Unlock()

	if !started {
		return nil
	}
	if sched != nil {
		sched.stop()
		sched.wait()
	}
	if img != nil {
		return img.Close()
	}
	return nil
}
