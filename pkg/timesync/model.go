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

// Package timesync implements the per-sensor time-offset estimator: a
// scalar Kalman filter mapping a sensor's local clock onto global time.
package timesync

import (
	"errors"
	"math"
)

// ErrInvalidInput is returned when Update is given non-finite numbers. The
// model is left unchanged on this error.
var ErrInvalidInput = errors.New("timesync: invalid input")

const (
	// varMin and varMax bound offset_var after every update.
	varMin = 1e-12
	varMax = 1e6

	// driftEpsilon guards the drift update's division by local_timestamp.
	driftEpsilon = 1e-9

	// defaultDriftLearningRate is alpha in the damped proportional drift term.
	defaultDriftLearningRate = 1e-4
)

// Model is a sensor's Gaussian belief over its offset from global time:
//
//	t_global = local_timestamp + offset_mean + drift * local_timestamp
type Model struct {
	OffsetMean float64 `json:"offset_mean"`
	OffsetVar  float64 `json:"offset_var"`
	Drift      float64 `json:"drift"`
}

// NewPrior returns the first-sighting prior: mean 0, var 1.0, drift 0.
func NewPrior() Model {
	return Model{OffsetMean: 0, OffsetVar: 1.0, Drift: 0}
}

// Options tune the estimator's non-default parameters.
type Options struct {
	// DriftLearningRate is alpha in the damped proportional drift update.
	// Zero uses the default (1e-4).
	DriftLearningRate float64
	// VarMin/VarMax override the [1e-12, 1e6] clamp. Zero values use defaults.
	VarMin, VarMax float64
}

func (o Options) resolve() (alpha, lo, hi float64) {
	alpha = o.DriftLearningRate
	if alpha == 0 {
		alpha = defaultDriftLearningRate
	}
	lo, hi = o.VarMin, o.VarMax
	if lo == 0 {
		lo = varMin
	}
	if hi == 0 {
		hi = varMax
	}
	return alpha, lo, hi
}

// GlobalTime projects a local timestamp through the model onto global time.
func (m Model) GlobalTime(localTimestamp float64) float64 {
	return localTimestamp + m.OffsetMean + m.Drift*localTimestamp
}

// Update applies one Kalman correction given an observation's local
// timestamp and covariance, and a reference global-time estimate (obtained
// by the clusterer as the precision-weighted mean of a group). It returns
// the updated model, leaving m unchanged on error.
//
// Non-finite inputs fail with ErrInvalidInput and the model is returned
// unmodified.
func (m Model) Update(localTimestamp, covariance, tRef float64, opts Options) (Model, error) {
	if !finite(localTimestamp) || !finite(covariance) || !finite(tRef) || !finite(m.OffsetMean) || !finite(m.OffsetVar) || !finite(m.Drift) {
		return m, ErrInvalidInput
	}
	if covariance < 0 {
		return m, ErrInvalidInput
	}

	alpha, lo, hi := opts.resolve()

	y := tRef - (localTimestamp + m.OffsetMean)
	s := m.OffsetVar + covariance
	if s <= 0 {
		return m, ErrInvalidInput
	}
	k := m.OffsetVar / s

	updated := m
	updated.OffsetMean = m.OffsetMean + k*y
	updated.OffsetVar = clamp((1-k)*m.OffsetVar, lo, hi)

	if math.Abs(localTimestamp) >= driftEpsilon {
		updated.Drift = m.Drift + alpha*y/localTimestamp
	}
	if !finite(updated.OffsetMean) || !finite(updated.OffsetVar) || !finite(updated.Drift) {
		return m, ErrInvalidInput
	}
	return updated, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
