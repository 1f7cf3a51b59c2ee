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

// Package syncmetrics provides opt-in Prometheus telemetry for the sync
// engine: tick counts, groups published, estimator updates, and election
// role transitions. Modeled on the teacher's telemetry/churn package, pared
// to the counters this engine's tick loop actually produces.
package syncmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensorium_ticks_total",
		Help: "Total number of engine Step() calls.",
	})
	groupsPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensorium_groups_published_total",
		Help: "Total SyncGroups written to sync:group:* while this node was master.",
	})
	estimatorUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensorium_estimator_updates_total",
		Help: "Total successful per-sensor Kalman updates across all ticks.",
	})
	estimatorRejectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensorium_estimator_rejections_total",
		Help: "Total per-sensor updates rejected for non-finite input.",
	})
	electionTransitionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensorium_election_transitions_total",
		Help: "Total role changes (follower<->master) observed by this node.",
	})
	masterGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sensorium_is_master",
		Help: "1 if this node currently holds mastership, 0 otherwise.",
	})
	stateFlushesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sensorium_state_flushes_total",
		Help: "Total sync:state:* writes performed (post write-debounce).",
	})
)

func init() {
	prometheus.MustRegister(
		ticksTotal,
		groupsPublishedTotal,
		estimatorUpdatesTotal,
		estimatorRejectionsTotal,
		electionTransitionsTotal,
		masterGauge,
		stateFlushesTotal,
	)
}

// RecordTick increments the tick counter. Call once per Step().
func RecordTick() { ticksTotal.Inc() }

// RecordGroupsPublished adds n to the published-groups counter.
func RecordGroupsPublished(n int) {
	if n > 0 {
		groupsPublishedTotal.Add(float64(n))
	}
}

// RecordEstimatorUpdate increments the successful-update counter.
func RecordEstimatorUpdate() { estimatorUpdatesTotal.Inc() }

// RecordEstimatorRejection increments the rejected-update counter.
func RecordEstimatorRejection() { estimatorRejectionsTotal.Inc() }

// RecordRoleChange increments the transition counter and sets the
// mastership gauge to reflect isMaster.
func RecordRoleChange(isMaster bool) {
	electionTransitionsTotal.Inc()
	if isMaster {
		masterGauge.Set(1)
	} else {
		masterGauge.Set(0)
	}
}

// RecordStateFlush increments the state-flush counter.
func RecordStateFlush() { stateFlushesTotal.Inc() }

// Serve starts a dedicated /metrics HTTP server at addr in the background.
// Mirrors the teacher's startMetricsEndpoint: best-effort, not deduplicated.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
