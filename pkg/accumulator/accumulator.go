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

// Package accumulator provides a thread-safe, striped counter used to
// debounce writes of slowly-changing per-sensor state. A sensor's estimator
// tracks how much its offset_mean has moved (in nanoseconds) since the
// model was last persisted; once the accumulated movement crosses a high
// watermark the caller flushes the model to the shared store, and the
// accumulator is reset via Commit. This is the same write-amplification
// argument a vector-scalar accumulator makes for rate-limiter counters,
// applied here to time-offset model persistence instead of request
// admission.
package accumulator

import (
	"runtime"
	"sync/atomic"
)

// cache line size varies; we over-pad to 128 bytes to avoid false sharing.
const padSize = 128 - 8 // atomic.Int64 is 8 bytes; remainder to reach >=128

type stripe struct {
	val atomic.Int64
	_   [padSize]byte
}

// Accumulator tracks an unpersisted net delta (the "vector") against a
// flush threshold (the "scalar"), using striped atomics so concurrent
// Update calls from many goroutines don't serialize on a single counter.
type Accumulator struct {
	// threshold is the high watermark: |vector| >= threshold triggers a flush.
	threshold atomic.Int64

	// committedOffset accumulates amounts already flushed.
	committedOffset atomic.Int64

	stripes []stripe
	mask    int

	chooser atomic.Uint64

	// armed implements hysteresis: after a flush, the accumulator will not
	// re-arm until |vector| falls below the low watermark.
	armed        atomic.Bool
	lowWatermark int64
}

// Options configures Accumulator construction.
type Options struct {
	// Stripes sets the number of striped counters. 0 uses the default:
	// nextPow2(clamp(GOMAXPROCS, [4,32])).
	Stripes int
	// LowWatermark enables hysteresis: after a flush, re-arm only once
	// |vector| falls back below this value. 0 disables hysteresis (always armed).
	LowWatermark int64
}

// New creates an Accumulator with the given flush threshold and default options.
func New(threshold int64) *Accumulator {
	return NewWithOptions(threshold, Options{})
}

// NewWithOptions creates an Accumulator with explicit options.
func NewWithOptions(threshold int64, opts Options) *Accumulator {
	var s int
	if opts.Stripes > 0 {
		s = nextPow2(clampInt(opts.Stripes, 4, 32))
	} else {
		p := runtime.GOMAXPROCS(0)
		s = nextPow2(clampInt(p, 4, 32))
	}
	a := &Accumulator{stripes: make([]stripe, s), mask: s - 1}
	a.threshold.Store(threshold)
	a.lowWatermark = opts.LowWatermark
	a.armed.Store(true)
	return a
}

// Update records a signed delta (nanoseconds of offset movement) on a
// lock-free fast path.
func (a *Accumulator) Update(delta int64) {
	idx := int(a.chooser.Add(1)) & a.mask
	a.stripes[idx].val.Add(delta)
}

// Net returns the current unpersisted net delta: sum(stripes) - committedOffset.
func (a *Accumulator) Net() int64 {
	var sum int64
	for i := range a.stripes {
		sum += a.stripes[i].val.Load()
	}
	return sum - a.committedOffset.Load()
}

// ShouldFlush reports whether the accumulated movement has crossed the
// flush threshold, honoring the hysteresis low watermark: once a flush
// disarms the accumulator, it will not re-arm until the net magnitude falls
// back below LowWatermark.
func (a *Accumulator) ShouldFlush() (bool, int64) {
	net := a.Net()
	mag := abs(net)
	threshold := a.threshold.Load()

	if mag >= threshold {
		if a.lowWatermark <= 0 || a.armed.Load() {
			return true, net
		}
		return false, 0
	}
	if a.lowWatermark > 0 && !a.armed.Load() && mag <= a.lowWatermark {
		a.armed.Store(true)
	}
	return false, 0
}

// Commit reduces the tracked net by the amount that was successfully
// persisted, capped at the current net magnitude (read once via Net, without
// a lock) so it never overshoots past zero, and disarms hysteresis.
func (a *Accumulator) Commit(flushed int64) {
	if flushed == 0 {
		return
	}
	net := a.Net()
	if net == 0 {
		return
	}
	mag := abs(flushed)
	if mag > abs(net) {
		mag = abs(net)
	}
	var delta int64
	if net > 0 {
		delta = mag
	} else {
		delta = -mag
	}
	a.committedOffset.Add(delta)
	a.armed.Store(false)
}

// Threshold returns the configured flush threshold.
func (a *Accumulator) Threshold() int64 { return a.threshold.Load() }

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

func nextPow2(x int) int {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

func clampInt(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
