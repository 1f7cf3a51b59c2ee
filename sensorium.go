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

// Package sensorium is a probabilistic synchronization engine for
// heterogeneous, independently-clocked sensors: a per-sensor time-offset
// estimator, a pairwise association kernel, a soft clusterer, and a
// heartbeat-based leader election protocol, all coordinated through a
// shared key-value store. This file is the public facade over
// internal/engine, mirroring the root-package/internal-package split the
// rest of this stack uses for its own core logic.
package sensorium

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/afeldman/sensorium/internal/engine"
	"github.com/afeldman/sensorium/internal/store"
	"github.com/afeldman/sensorium/pkg/cluster"

	redis "github.com/redis/go-redis/v9"
)

// Option configures an Engine at construction time.
type Option = engine.Option

// Re-export the Option constructors so callers never need to import
// internal/engine directly.
var (
	WithObservationTTL           = engine.WithObservationTTL
	WithBucketMs                 = engine.WithBucketMs
	WithDriftLearningRate        = engine.WithDriftLearningRate
	WithOffsetVarBounds          = engine.WithOffsetVarBounds
	WithStoreTimeout             = engine.WithStoreTimeout
	WithStateFlushThresholdNs    = engine.WithStateFlushThresholdNs
	WithStateFlushLowWatermarkNs = engine.WithStateFlushLowWatermarkNs
	WithMetricsAddr              = engine.WithMetricsAddr
)

// Engine is one node's synchronization engine instance.
type Engine struct {
	inner *engine.Engine
	close func() error
}

// NewEngine builds an Engine against the store addressed by storeURL:
//
//   - "memory://" selects an in-process MemoryStore, for tests and the
//     single-node demo path without external infrastructure.
//   - "redis://host:port[,host2:port2,...]" selects a RedisStore, sharded
//     via rendezvous hashing across every listed endpoint.
//
// heartbeatTTLSeconds is the election heartbeat TTL (spec default 5).
func NewEngine(storeURL, nodeID string, heartbeatTTLSeconds uint32, opts ...Option) (*Engine, error) {
	s, closeFn, err := openStore(storeURL)
	if err != nil {
		return nil, err
	}

	cfg := engine.DefaultConfig()
	if heartbeatTTLSeconds > 0 {
		cfg.HeartbeatTTL = time.Duration(heartbeatTTLSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	e, err := engine.New(nodeID, s, cfg)
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, err
	}
	return &Engine{inner: e, close: closeFn}, nil
}

// Step performs one tick: heartbeat, read, estimate, cluster, conditional
// publish. It returns the groups produced this tick regardless of whether
// this node held mastership.
func (e *Engine) Step(ctx context.Context) ([]cluster.Group, error) {
	return e.inner.Step(ctx)
}

// IsMaster reports whether this node held mastership as of the most recent
// Step call.
func (e *Engine) IsMaster() bool { return e.inner.IsMaster() }

// Close releases the underlying store connection, if any.
func (e *Engine) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

func openStore(storeURL string) (store.Store, func() error, error) {
	switch {
	case storeURL == "memory://" || storeURL == "memory":
		return store.NewMemoryStore(), nil, nil
	case strings.HasPrefix(storeURL, "redis://"):
		addrs := strings.Split(strings.TrimPrefix(storeURL, "redis://"), ",")
		if len(addrs) == 1 {
			rs := store.NewRedisStore(addrs[0])
			return rs, rs.Close, nil
		}
		shards := make(map[string]store.Store, len(addrs))
		clients := make([]*redis.Client, 0, len(addrs))
		for _, addr := range addrs {
			c := redis.NewClient(&redis.Options{Addr: addr})
			clients = append(clients, c)
			shards[addr] = store.NewRedisStoreFromClient(c)
		}
		sharded := store.NewShardedStore(shards)
		closeAll := func() error {
			var firstErr error
			for _, c := range clients {
				if err := c.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		}
		return sharded, closeAll, nil
	default:
		return nil, nil, fmt.Errorf("sensorium: unrecognized store url %q (want memory:// or redis://host:port[,...])", storeURL)
	}
}
