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

// Package election implements the bully protocol over the shared store:
// nodes compete solely through TTL'd heartbeats, with no explicit election
// messages. The current master is the lexicographically maximum node_id
// present in the live heartbeat keyspace; a node is master iff its own id
// equals that maximum.
package election

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/afeldman/sensorium/internal/store"
)

// Role is a node's position in the state machine from spec §4.4:
// Joining -> Follower | Master.
type Role int

const (
	Joining Role = iota
	Follower
	Master
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Master:
		return "master"
	default:
		return "joining"
	}
}

// Elector runs one node's side of the bully protocol against a shared
// Store. It is not safe for concurrent use by multiple goroutines; the
// engine that owns it ticks it sequentially, matching the single-threaded
// cooperative concurrency model.
type Elector struct {
	nodeID string
	ttl    time.Duration
	store  store.Store

	// epoch is this node's own fencing-token counter (the "fencing token"
	// from the teacher's CommitEntry.FencingToken): 1 on the tick this node
	// becomes master, incremented on every further tick it stays master, and
	// 0 while it is a follower, so a group write can be tagged with the epoch
	// under which it was produced.
	epoch atomic.Int64

	role Role
}

// New constructs an Elector. ttl is the heartbeat TTL (spec default 5s).
func New(nodeID string, ttl time.Duration, s store.Store) *Elector {
	return &Elector{nodeID: nodeID, ttl: ttl, store: s, role: Joining}
}

// NodeID returns this elector's node id.
func (e *Elector) NodeID() string { return e.nodeID }

// Role returns the role determined by the most recent Tick call.
func (e *Elector) Role() Role { return e.role }

// IsMaster reports whether the most recent Tick determined this node to be
// master.
func (e *Elector) IsMaster() bool { return e.role == Master }

// Epoch returns the fencing token to tag a group write with. It is only
// meaningful when IsMaster() is true; it increments on every tick this node
// holds mastership and restarts at 1 with each new stint as master, so it
// orders writes within one stint but does not distinguish separate stints.
func (e *Elector) Epoch() int64 { return e.epoch.Load() }

// Tick performs one election round: write this node's heartbeat, scan the
// live heartbeat keyspace, and determine mastership by the lexicographic-max
// rule. It returns the current role.
func (e *Elector) Tick(ctx context.Context) (Role, error) {
	nextEpoch := e.epoch.Load()
	if e.role == Master {
		nextEpoch++
	} else {
		nextEpoch = 1
	}

	if err := store.PutHeartbeat(ctx, e.store, e.nodeID, nextEpoch, e.ttl); err != nil {
		return e.role, fmt.Errorf("election: write heartbeat: %w", err)
	}

	heartbeats, err := store.ListHeartbeats(ctx, e.store)
	if err != nil {
		return e.role, fmt.Errorf("election: scan heartbeats: %w", err)
	}
	if len(heartbeats) == 0 {
		// Our own write raced an eviction sweep; treat as the sole member.
		heartbeats = []store.Heartbeat{{NodeID: e.nodeID, Epoch: nextEpoch}}
	}

	max := heartbeats[0].NodeID
	for _, hb := range heartbeats[1:] {
		if hb.NodeID > max {
			max = hb.NodeID
		}
	}

	if max == e.nodeID {
		e.role = Master
		e.epoch.Store(nextEpoch)
	} else {
		e.role = Follower
		e.epoch.Store(0)
	}
	return e.role, nil
}
