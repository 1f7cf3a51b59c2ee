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

package cluster

import (
	"math"
	"math/rand"
	"testing"

	"github.com/afeldman/sensorium/pkg/observation"
	"github.com/afeldman/sensorium/pkg/timesync"
)

func sumProb(g Group) float64 {
	var s float64
	for _, m := range g.Members {
		s += m.Probability
	}
	return s
}

// TestEmptyBatch covers the "empty store" scenario from spec §8.
func TestEmptyBatch(t *testing.T) {
	groups, err := SingleGroup{}.Cluster(nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

// TestSingletonIdempotence proves invariant 6 from spec §8.
func TestSingletonIdempotence(t *testing.T) {
	obs := []observation.Observation{{SensorID: "cam-1", LocalTimestamp: 10.0, Covariance: 0.01}}
	models := map[string]timesync.Model{"cam-1": timesync.NewPrior()}

	groups, err := SingleGroup{}.Cluster(obs, models)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if len(g.Members) != 1 || g.Members[0].Probability != 1.0 {
		t.Fatalf("expected singleton with probability 1: %+v", g)
	}
	if math.Abs(g.TGlobal-10.0) > 1e-12 {
		t.Fatalf("expected t_global == local + offset_mean == 10.0, got %v", g.TGlobal)
	}
}

// TestNormalization proves invariant 2 from spec §8: member probabilities
// always sum to 1 within 1e-9, across randomized batches.
func TestNormalization(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(8)
		obs := make([]observation.Observation, n)
		models := map[string]timesync.Model{}
		for i := 0; i < n; i++ {
			id := string(rune('a' + i))
			obs[i] = observation.Observation{
				SensorID:       id,
				LocalTimestamp: rng.Float64()*20 - 10,
				Covariance:     rng.Float64()*0.1 + 1e-6,
			}
			models[id] = timesync.Model{OffsetMean: rng.Float64()*2 - 1, OffsetVar: rng.Float64()*2 + 1e-6}
		}
		groups, err := SingleGroup{}.Cluster(obs, models)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(groups) != 1 {
			t.Fatalf("expected exactly one group (baseline single-group-per-tick), got %d", len(groups))
		}
		if diff := math.Abs(sumProb(groups[0]) - 1.0); diff > 1e-9 {
			t.Fatalf("probabilities did not sum to 1: sum=%v diff=%v", sumProb(groups[0]), diff)
		}
	}
}

// TestTwoCoincidentSensors is the literal scenario from spec §8.
func TestTwoCoincidentSensors(t *testing.T) {
	obs := []observation.Observation{
		{SensorID: "cam-1", LocalTimestamp: 10.000, Covariance: 0.01},
		{SensorID: "cam-2", LocalTimestamp: 10.005, Covariance: 0.01},
	}
	models := map[string]timesync.Model{
		"cam-1": timesync.NewPrior(),
		"cam-2": timesync.NewPrior(),
	}
	groups, err := SingleGroup{}.Cluster(obs, models)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Members) != 2 {
		t.Fatalf("expected one group with two members: %+v", groups)
	}
	for _, m := range groups[0].Members {
		if math.Abs(m.Probability-0.5) > 1e-3 {
			t.Fatalf("expected ~0.5 probability for each coincident sensor, got %v for %s", m.Probability, m.SensorID)
		}
	}
	if math.Abs(groups[0].TGlobal-10.0025) > 1e-3 {
		t.Fatalf("expected t_global ~= 10.0025, got %v", groups[0].TGlobal)
	}
}

// TestDeterminism proves invariant 4 from spec §8: identical inputs and
// prior state produce byte-identical output across repeated calls.
func TestDeterminism(t *testing.T) {
	obs := []observation.Observation{
		{SensorID: "b-sensor", LocalTimestamp: 3.0, Covariance: 0.02},
		{SensorID: "a-sensor", LocalTimestamp: 3.1, Covariance: 0.015},
		{SensorID: "c-sensor", LocalTimestamp: 2.9, Covariance: 0.03},
	}
	models := map[string]timesync.Model{
		"a-sensor": {OffsetMean: 0.01, OffsetVar: 0.5},
		"b-sensor": {OffsetMean: -0.02, OffsetVar: 0.4},
		"c-sensor": {OffsetMean: 0.0, OffsetVar: 0.6},
	}

	first, err := SingleGroup{}.Cluster(obs, models)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := SingleGroup{}.Cluster(obs, models)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) || len(first) != 1 {
		t.Fatalf("mismatched group counts")
	}
	if first[0].GroupID != second[0].GroupID || first[0].TGlobal != second[0].TGlobal {
		t.Fatalf("non-deterministic output: %+v vs %+v", first[0], second[0])
	}
	for i := range first[0].Members {
		if first[0].Members[i] != second[0].Members[i] {
			t.Fatalf("member %d differs: %+v vs %+v", i, first[0].Members[i], second[0].Members[i])
		}
	}
}
