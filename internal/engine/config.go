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

package engine

import (
	"fmt"
	"time"

	"github.com/afeldman/sensorium/pkg/timesync"
)

// Config holds every tunable the engine accepts, per spec §6, plus the
// write-debounce and metrics knobs this module adds on top.
type Config struct {
	HeartbeatTTL      time.Duration
	ObservationTTL    time.Duration
	BucketMs          int64
	DriftLearningRate float64
	OffsetVarMin      float64
	OffsetVarMax      float64
	StoreTimeout      time.Duration

	// StateFlushThresholdNs is the drift accumulator's high watermark:
	// accumulated |offset_mean| movement, in nanoseconds, since the model
	// was last persisted.
	StateFlushThresholdNs int64
	// StateFlushLowWatermarkNs enables hysteresis on the flush accumulator.
	// 0 disables it (always armed once threshold is crossed).
	StateFlushLowWatermarkNs int64

	// MetricsAddr, when non-empty, starts a Prometheus /metrics listener.
	MetricsAddr string
}

// DefaultConfig returns the spec §6 defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatTTL:             5 * time.Second,
		ObservationTTL:           300 * time.Second,
		BucketMs:                 100,
		DriftLearningRate:        1e-4,
		OffsetVarMin:             1e-12,
		OffsetVarMax:             1e6,
		StoreTimeout:             time.Second,
		StateFlushThresholdNs:    1_000_000,
		StateFlushLowWatermarkNs: 0,
		MetricsAddr:              "",
	}
}

// Validate checks the invariants a Config must satisfy before an Engine can
// be built from it.
func (c Config) Validate() error {
	if c.HeartbeatTTL <= 0 {
		return fmt.Errorf("%w: heartbeat_ttl must be > 0", ErrConfig)
	}
	if c.BucketMs <= 0 {
		return fmt.Errorf("%w: bucket_ms must be > 0", ErrConfig)
	}
	if c.OffsetVarMin <= 0 || c.OffsetVarMax <= c.OffsetVarMin {
		return fmt.Errorf("%w: offset_var_bounds must satisfy 0 < min < max", ErrConfig)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("%w: store_timeout must be > 0", ErrConfig)
	}
	if c.StateFlushThresholdNs <= 0 {
		return fmt.Errorf("%w: state_flush_threshold_ns must be > 0", ErrConfig)
	}
	if c.StateFlushLowWatermarkNs < 0 {
		return fmt.Errorf("%w: state_flush_low_watermark_ns must be >= 0", ErrConfig)
	}
	return nil
}

func (c Config) estimatorOptions() timesync.Options {
	return timesync.Options{
		DriftLearningRate: c.DriftLearningRate,
		VarMin:            c.OffsetVarMin,
		VarMax:            c.OffsetVarMax,
	}
}

// Option mutates a Config at construction time.
type Option func(*Config)

// WithHeartbeatTTL overrides the election heartbeat TTL.
func WithHeartbeatTTL(d time.Duration) Option { return func(c *Config) { c.HeartbeatTTL = d } }

// WithObservationTTL overrides Config.ObservationTTL. The engine itself never
// writes observations, so nothing in this package reads the value.
func WithObservationTTL(d time.Duration) Option { return func(c *Config) { c.ObservationTTL = d } }

// WithBucketMs overrides the time-bucket width used by the clusterer and
// group-id generation.
func WithBucketMs(ms int64) Option { return func(c *Config) { c.BucketMs = ms } }

// WithDriftLearningRate overrides the Kalman drift term's learning rate.
func WithDriftLearningRate(alpha float64) Option {
	return func(c *Config) { c.DriftLearningRate = alpha }
}

// WithOffsetVarBounds overrides the [min, max] clamp applied to offset_var.
func WithOffsetVarBounds(min, max float64) Option {
	return func(c *Config) { c.OffsetVarMin, c.OffsetVarMax = min, max }
}

// WithStoreTimeout overrides the store timeout. Step applies it as a single
// deadline shared by every store call of one tick; individual store calls
// get no separate timeout of their own.
func WithStoreTimeout(d time.Duration) Option { return func(c *Config) { c.StoreTimeout = d } }

// WithStateFlushThresholdNs overrides the write-debounce high watermark.
func WithStateFlushThresholdNs(n int64) Option {
	return func(c *Config) { c.StateFlushThresholdNs = n }
}

// WithStateFlushLowWatermarkNs overrides the write-debounce hysteresis low
// watermark.
func WithStateFlushLowWatermarkNs(n int64) Option {
	return func(c *Config) { c.StateFlushLowWatermarkNs = n }
}

// WithMetricsAddr starts a Prometheus /metrics listener at addr.
func WithMetricsAddr(addr string) Option { return func(c *Config) { c.MetricsAddr = addr } }
