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

// Package engine implements the per-tick orchestration described in spec
// §4.5: heartbeat, read, estimate, cluster, conditional publish. It is the
// one place that sequences the otherwise-independent pkg/timesync,
// pkg/assoc, pkg/cluster, and internal/election packages against a shared
// internal/store.Store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/afeldman/sensorium/internal/election"
	"github.com/afeldman/sensorium/internal/store"
	"github.com/afeldman/sensorium/internal/telemetry/syncmetrics"
	"github.com/afeldman/sensorium/pkg/accumulator"
	"github.com/afeldman/sensorium/pkg/cluster"
	"github.com/afeldman/sensorium/pkg/timesync"
)

// Engine runs one node's tick loop against a shared Store. Concurrent Step
// calls are serialized by an internal mutex, so each tick runs to completion
// before the next begins, matching the single-threaded-cooperative-per-node
// model of spec §5.
type Engine struct {
	nodeID    string
	store     store.Store
	elector   *election.Elector
	clusterer cluster.Clusterer
	cfg       Config

	mu          sync.Mutex
	models      map[string]timesync.Model
	accumulated map[string]*accumulator.Accumulator
}

// New builds an Engine. cfg is validated; an invalid Config returns
// ErrConfig wrapped with the specific violation.
func New(nodeID string, s store.Store, cfg Config) (*Engine, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("%w: node id must be non-empty", ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MetricsAddr != "" {
		syncmetrics.Serve(cfg.MetricsAddr)
	}
	return &Engine{
		nodeID:      nodeID,
		store:       s,
		elector:     election.New(nodeID, cfg.HeartbeatTTL, s),
		clusterer:   cluster.SingleGroup{BucketMs: cfg.BucketMs},
		cfg:         cfg,
		models:      make(map[string]timesync.Model),
		accumulated: make(map[string]*accumulator.Accumulator),
	}, nil
}

// NodeID returns this engine's node id.
func (e *Engine) NodeID() string { return e.nodeID }

// IsMaster reports whether this node held mastership as of the most recent
// Step call.
func (e *Engine) IsMaster() bool { return e.elector.IsMaster() }

// Step performs exactly one tick in the fixed order from spec §4.5:
// heartbeat, read observations, load models, cluster (which also drives the
// estimator update for every contributing sensor), determine mastership,
// conditionally publish, and return the produced groups regardless of
// mastership.
func (e *Engine) Step(ctx context.Context) ([]cluster.Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	syncmetrics.RecordTick()

	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	wasMaster := e.elector.IsMaster()
	role, err := e.elector.Tick(storeCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if (role == election.Master) != wasMaster {
		syncmetrics.RecordRoleChange(role == election.Master)
	}

	obs, skipped, err := store.ListObservations(storeCtx, e.store)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	for _, k := range skipped {
		sensorID := store.SensorIDFromObservationKey(k)
		log.Printf("engine: skipping malformed observation for sensor %q (key %s): %v", sensorID, k, ErrDecode)
	}

	if len(obs) == 0 {
		return nil, nil
	}

	batchModels := make(map[string]timesync.Model, len(obs))
	covarianceBySensor := make(map[string]float64, len(obs))
	for _, o := range obs {
		sensorID := o.SensorID
		covarianceBySensor[sensorID] = o.Covariance
		if m, ok := e.models[sensorID]; ok {
			batchModels[sensorID] = m
			continue
		}
		m, err := store.GetModel(storeCtx, e.store, sensorID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		e.models[sensorID] = m
		batchModels[sensorID] = m
	}

	groups, err := e.clusterer.Cluster(obs, batchModels)
	if err != nil {
		return nil, fmt.Errorf("engine: cluster: %w", err)
	}

	for _, g := range groups {
		for _, member := range g.Members {
			if err := e.applyEstimatorUpdate(storeCtx, member.SensorID, member.LocalTimestamp, covarianceBySensor[member.SensorID], g.TGlobal); err != nil {
				if errors.Is(err, ErrStore) {
					return nil, err
				}
				log.Printf("engine: estimator update skipped for sensor %s: %v", member.SensorID, err)
				syncmetrics.RecordEstimatorRejection()
				continue
			}
			syncmetrics.RecordEstimatorUpdate()
		}
	}

	if role == election.Master {
		for _, g := range groups {
			if err := store.PutGroup(storeCtx, e.store, g); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStore, err)
			}
		}
		syncmetrics.RecordGroupsPublished(len(groups))
	} else if len(groups) > 0 {
		log.Printf("debug: %v (node %s is follower, epoch held by another node)", ErrNotMaster, e.nodeID)
	}

	return groups, nil
}

// applyEstimatorUpdate runs one Kalman correction for sensorID against
// tGlobal, then routes the resulting offset_mean movement through that
// sensor's write-debounce accumulator, flushing to the store only once the
// accumulated movement crosses the configured threshold.
func (e *Engine) applyEstimatorUpdate(ctx context.Context, sensorID string, localTimestamp, covariance, tGlobal float64) error {
	prior, ok := e.models[sensorID]
	if !ok {
		prior = timesync.NewPrior()
	}
	updated, err := prior.Update(localTimestamp, covariance, tGlobal, e.cfg.estimatorOptions())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEstimatorInvalidInput, err)
	}

	movedNs := int64((updated.OffsetMean - prior.OffsetMean) * 1e9)
	e.models[sensorID] = updated

	acc, ok := e.accumulated[sensorID]
	if !ok {
		acc = accumulator.NewWithOptions(e.cfg.StateFlushThresholdNs, accumulator.Options{LowWatermark: e.cfg.StateFlushLowWatermarkNs})
		e.accumulated[sensorID] = acc
	}
	acc.Update(movedNs)

	if should, net := acc.ShouldFlush(); should {
		if err := store.PutModel(ctx, e.store, sensorID, updated); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		acc.Commit(net)
		syncmetrics.RecordStateFlush()
	}
	return nil
}

