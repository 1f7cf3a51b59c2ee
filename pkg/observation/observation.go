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

// Package observation provides the value object for a single raw sensor
// reading. It is sensor-agnostic: any source that can produce an Observation
// is a valid input to the rest of the engine, so there is no sensor class
// hierarchy here, only the shape every downstream component consumes.
package observation

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"math"
)

// Observation is a single timestamped reading from one sensor.
type Observation struct {
	SensorID       string          `json:"sensor_id"`
	SensorType     string          `json:"sensor_type"`
	LocalTimestamp float64         `json:"local_timestamp"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Covariance     float64         `json:"covariance"`
}

// ErrInvalid is returned by Validate when an Observation violates its
// invariants (covariance < 0, non-finite local_timestamp).
var ErrInvalid = errors.New("observation: invalid")

// Validate checks the invariants from the data model: covariance must be
// non-negative and local_timestamp must be finite.
func (o Observation) Validate() error {
	if o.Covariance < 0 {
		return errors.Join(ErrInvalid, errors.New("covariance must be >= 0"))
	}
	if math.IsNaN(o.LocalTimestamp) || math.IsInf(o.LocalTimestamp, 0) {
		return errors.Join(ErrInvalid, errors.New("local_timestamp must be finite"))
	}
	if math.IsNaN(o.Covariance) || math.IsInf(o.Covariance, 0) {
		return errors.Join(ErrInvalid, errors.New("covariance must be finite"))
	}
	return nil
}

// BucketID is the optional prefilter from spec §4.2: floor(local_timestamp *
// 1000 / bucketMs). It is never used as a hard matching decision, only to
// narrow candidate sets before the association kernel runs.
func (o Observation) BucketID(bucketMs int64) int64 {
	if bucketMs <= 0 {
		bucketMs = 100
	}
	return int64(math.Floor(o.LocalTimestamp * 1000.0 / float64(bucketMs)))
}

// HashKey returns a stable 64-bit FNV-1a id for a sensor id. Group-id
// generation and the store shard picker do their own hashing and do not
// call it.
func HashKey(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
