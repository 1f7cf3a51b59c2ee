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

// Package cluster turns a batch of observations plus per-sensor offset
// models into one or more SyncGroups with normalized membership.
package cluster

import (
	"encoding/hex"
	"hash/fnv"
	"sort"

	"github.com/afeldman/sensorium/pkg/assoc"
	"github.com/afeldman/sensorium/pkg/observation"
	"github.com/afeldman/sensorium/pkg/timesync"
)

// Member is one sensor's contribution to a Group.
type Member struct {
	SensorID       string  `json:"sensor_id"`
	LocalTimestamp float64 `json:"local_timestamp"`
	Probability    float64 `json:"probability"`
}

// Group is a SyncGroup: a set of observations believed to share a global
// timestamp, with normalized membership probabilities.
type Group struct {
	GroupID string   `json:"group_id"`
	TGlobal float64  `json:"t_global"`
	Members []Member `json:"members"`
}

// Clusterer is the seam spec §9 OQ1 asks for: a pluggable grouping
// procedure. SingleGroup is the baseline implementation shipped here; a
// future multi-group implementation (e.g. agglomerative clustering with a
// likelihood-ratio stop rule) is a drop-in replacement.
type Clusterer interface {
	Cluster(obs []observation.Observation, models map[string]timesync.Model) ([]Group, error)
}

// SingleGroup implements the baseline procedure from spec §4.3: one group
// per tick, covering every observation in the batch.
type SingleGroup struct {
	// BucketMs controls the time-bucketing used for group-id generation
	// (spec §9 OQ3). Zero uses the default of 100ms.
	BucketMs int64
}

var _ Clusterer = SingleGroup{}

// Cluster implements Clusterer. Given an empty batch it returns no groups.
// A single observation yields a singleton group with probability 1. Larger
// batches are weighted by the association kernel against the
// precision-weighted mean and normalized; ties fall back to uniform
// weights on numerical underflow.
func (c SingleGroup) Cluster(obs []observation.Observation, models map[string]timesync.Model) ([]Group, error) {
	if len(obs) == 0 {
		return nil, nil
	}

	ordered := append([]observation.Observation(nil), obs...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].SensorID != ordered[j].SensorID {
			return ordered[i].SensorID < ordered[j].SensorID
		}
		return ordered[i].LocalTimestamp < ordered[j].LocalTimestamp
	})

	type projected struct {
		obs observation.Observation
		tg  float64
		v   float64
	}
	proj := make([]projected, len(ordered))
	for i, o := range ordered {
		m, ok := models[o.SensorID]
		if !ok {
			m = timesync.NewPrior()
		}
		proj[i] = projected{
			obs: o,
			tg:  m.GlobalTime(o.LocalTimestamp),
			v:   m.OffsetVar + o.Covariance,
		}
	}

	if len(proj) == 1 {
		p := proj[0]
		return []Group{{
			GroupID: groupID([]string{p.obs.SensorID}, p.tg, c.bucketMs()),
			TGlobal: p.tg,
			Members: []Member{{SensorID: p.obs.SensorID, LocalTimestamp: p.obs.LocalTimestamp, Probability: 1.0}},
		}}, nil
	}

	var weightedSum, weightSum float64
	for _, p := range proj {
		if p.v <= 0 {
			continue
		}
		w := 1.0 / p.v
		weightedSum += p.tg * w
		weightSum += w
	}
	if weightSum == 0 {
		// Degenerate case: every combined variance is non-positive. Fall
		// back to the unweighted mean so the tick still produces a group.
		var sum float64
		for _, p := range proj {
			sum += p.tg
		}
		weightedSum, weightSum = sum, float64(len(proj))
	}
	tGlobal := weightedSum / weightSum

	weights := make([]float64, len(proj))
	var totalWeight float64
	for i, p := range proj {
		delta := p.tg - tGlobal
		w := assoc.Likelihood(delta, p.v)
		weights[i] = w
		totalWeight += w
	}

	members := make([]Member, len(proj))
	sensorIDs := make([]string, len(proj))
	if totalWeight == 0 {
		uniform := 1.0 / float64(len(proj))
		for i, p := range proj {
			members[i] = Member{SensorID: p.obs.SensorID, LocalTimestamp: p.obs.LocalTimestamp, Probability: uniform}
			sensorIDs[i] = p.obs.SensorID
		}
	} else {
		for i, p := range proj {
			members[i] = Member{SensorID: p.obs.SensorID, LocalTimestamp: p.obs.LocalTimestamp, Probability: weights[i] / totalWeight}
			sensorIDs[i] = p.obs.SensorID
		}
	}

	return []Group{{
		GroupID: groupID(sensorIDs, tGlobal, c.bucketMs()),
		TGlobal: tGlobal,
		Members: members,
	}}, nil
}

func (c SingleGroup) bucketMs() int64 {
	if c.BucketMs <= 0 {
		return 100
	}
	return c.BucketMs
}

// groupID implements spec §9 OQ3: a hash of the sorted member sensor ids
// plus the bucketed t_global, making writes for the same bucket idempotent.
// sensorIDs is assumed already sorted by the caller (Cluster always passes
// ordered members).
func groupID(sensorIDs []string, tGlobal float64, bucketMs int64) string {
	h := fnv.New64a()
	for _, id := range sensorIDs {
		_, _ = h.Write([]byte(id))
		_, _ = h.Write([]byte{0})
	}
	bucket := assoc.BucketID(tGlobal, bucketMs)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(bucket >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
