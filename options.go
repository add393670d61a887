// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiberloop

import (
	"runtime"

	"github.com/joeycumines/logiface"
)

// defaultStackSize is used when WithStackSize is not supplied or is given
// a non-positive value. It matches the original implementation's default of
// leaving stack sizing to the platform by picking a generous but bounded
// value rather than an unbounded one.
const defaultStackSize = 256 * 1024

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	workerCount    int
	stackSize      int
	logger         *logiface.Logger[*textEvent]
	metricsEnabled bool
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithWorkerCount sets the number of worker threads in the Loop's
// ThreadPool. A value <= 0 falls back to runtime.NumCPU(), mirroring the
// original implementation's hardware_concurrency() default.
func WithWorkerCount(n int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.workerCount = n
		return nil
	}}
}

// WithStackSize records a stack size hint, in bytes, in the Loop's options.
// A value <= 0 selects defaultStackSize. The value is stored as given (not
// rounded) and Loop does not read it: each fiber's stack size hint is the
// stackSize argument passed to CreateFiber.
func WithStackSize(bytes int) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.stackSize = bytes
		return nil
	}}
}

// WithLogger sets the structured logger used by this Loop. A nil logger
// falls back to the package-level logger (disabled by default). The only
// event logged through it is NewLoop's "loop created"; Scheduler, Poller
// and ThreadPool do not log.
func WithLogger(l *logiface.Logger[*textEvent]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = l
		return nil
	}}
}

// WithMetrics records whether runtime metrics are enabled in the Loop's
// options (disabled by default). Loop keeps no counters, so the flag has no
// observable effect.
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		workerCount: runtime.NumCPU(),
		stackSize:   defaultStackSize,
		logger:      logger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.workerCount <= 0 {
		cfg.workerCount = runtime.NumCPU()
	}
	if cfg.stackSize <= 0 {
		cfg.stackSize = defaultStackSize
	}
	if cfg.logger == nil {
		cfg.logger = logger()
	}
	return cfg, nil
}
