// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dwarfcols

import "log/slog"

// defaultChunkRowLimit is the 65536-row chunk cap from spec §4.E.
const defaultChunkRowLimit = 65536

// Config controls a Reader. Assembled via functional options, mirroring the
// teacher's irgen.NewGenerator(options ...Option) pattern.
type Config struct {
	// MaxParsingThreads is the worker pool size N (spec §6: max_parsing_threads).
	// Values less than 1 are treated as 1.
	MaxParsingThreads int

	// Logger receives structured diagnostics (recoverable filename-table
	// warnings). Worker errors are returned by Next, not logged. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// ChunkRowLimit overrides the 65536-row-per-chunk cap; used by tests that
	// want multi-chunk units without huge fixtures. Zero means the default.
	ChunkRowLimit int

	// ExtraSettings carries standard input/output format knobs that are
	// accepted, per spec §6, but have no effect on this core.
	ExtraSettings map[string]string
}

// Option configures a Config.
type Option func(*Config)

// WithMaxParsingThreads sets the worker pool size.
func WithMaxParsingThreads(n int) Option {
	return func(c *Config) { c.MaxParsingThreads = n }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithChunkRowLimit overrides the per-chunk row cap; for tests.
func WithChunkRowLimit(n int) Option {
	return func(c *Config) { c.ChunkRowLimit = n }
}

// WithExtraSettings attaches pass-through settings the core ignores.
func WithExtraSettings(m map[string]string) Option {
	return func(c *Config) { c.ExtraSettings = m }
}

func newConfig(opts ...Option) Config {
	cfg := Config{MaxParsingThreads: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxParsingThreads < 1 {
		cfg.MaxParsingThreads = 1
	}
	if cfg.ChunkRowLimit <= 0 {
		cfg.ChunkRowLimit = defaultChunkRowLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}
