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

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/afeldman/sensorium/pkg/cluster"
	"github.com/afeldman/sensorium/pkg/observation"
	"github.com/afeldman/sensorium/pkg/timesync"
)

// Heartbeat is the election liveness marker from spec §3. Expiry is
// enforced by the store's TTL, not by the struct itself; NodeID and Epoch
// are the only fields a reader needs.
type Heartbeat struct {
	NodeID string `json:"node_id"`
	Epoch  int64  `json:"epoch"`
}

// PutObservation writes an observation with the configured TTL.
func PutObservation(ctx context.Context, s Store, o observation.Observation, timestampNs int64, ttl time.Duration) error {
	b, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}
	return s.Set(ctx, ObservationKey(o.SensorID, timestampNs), b, ttl)
}

// ListObservations scans and decodes every obs:* entry currently in the
// store. A single malformed entry is skipped (spec §7: Decode errors are
// non-fatal) rather than failing the whole load; skipped keys are returned
// alongside the successfully decoded observations so the caller can log them.
func ListObservations(ctx context.Context, s Store) ([]observation.Observation, []string, error) {
	keys, err := s.ScanPrefix(ctx, ObservationPrefix())
	if err != nil {
		return nil, nil, fmt.Errorf("scan observations: %w", err)
	}
	obs := make([]observation.Observation, 0, len(keys))
	var skipped []string
	for _, k := range keys {
		raw, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, nil, fmt.Errorf("get %s: %w", k, err)
		}
		if !ok {
			continue // evicted between scan and get
		}
		var o observation.Observation
		if err := json.Unmarshal(raw, &o); err != nil {
			skipped = append(skipped, k)
			continue
		}
		if err := o.Validate(); err != nil {
			skipped = append(skipped, k)
			continue
		}
		obs = append(obs, o)
	}
	return obs, skipped, nil
}

// GetModel loads a sensor's persisted TimeOffsetModel, or the first-sighting
// prior if no state key exists yet.
func GetModel(ctx context.Context, s Store, sensorID string) (timesync.Model, error) {
	raw, ok, err := s.Get(ctx, StateKey(sensorID))
	if err != nil {
		return timesync.Model{}, fmt.Errorf("get state(%s): %w", sensorID, err)
	}
	if !ok {
		return timesync.NewPrior(), nil
	}
	var m timesync.Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return timesync.NewPrior(), nil
	}
	return m, nil
}

// PutModel persists a sensor's TimeOffsetModel. sync:state:* has no TTL
// per spec §3.
func PutModel(ctx context.Context, s Store, sensorID string, m timesync.Model) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode model(%s): %w", sensorID, err)
	}
	return s.Set(ctx, StateKey(sensorID), b, 0)
}

// PutGroup publishes a SyncGroup. Only the leader election master may call
// this in practice (enforced by the caller, not by the store).
func PutGroup(ctx context.Context, s Store, g cluster.Group) error {
	b, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode group(%s): %w", g.GroupID, err)
	}
	return s.Set(ctx, GroupKey(g.GroupID), b, 0)
}

// PutHeartbeat writes a node's liveness marker with the given TTL.
func PutHeartbeat(ctx context.Context, s Store, nodeID string, epoch int64, ttl time.Duration) error {
	b, err := json.Marshal(Heartbeat{NodeID: nodeID, Epoch: epoch})
	if err != nil {
		return fmt.Errorf("encode heartbeat(%s): %w", nodeID, err)
	}
	return s.Set(ctx, HeartbeatKey(nodeID), b, ttl)
}

// ListHeartbeats scans the active heartbeat keyspace. Entries with a
// decode error are skipped (a malformed heartbeat must not crash election).
func ListHeartbeats(ctx context.Context, s Store) ([]Heartbeat, error) {
	keys, err := s.ScanPrefix(ctx, HeartbeatPrefix())
	if err != nil {
		return nil, fmt.Errorf("scan heartbeats: %w", err)
	}
	out := make([]Heartbeat, 0, len(keys))
	for _, k := range keys {
		raw, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", k, err)
		}
		if !ok {
			continue
		}
		var hb Heartbeat
		if err := json.Unmarshal(raw, &hb); err != nil {
			continue
		}
		out = append(out, hb)
	}
	return out, nil
}
