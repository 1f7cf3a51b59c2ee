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

// Package main provides the entry point for syncd, a host process that
// runs one sensorium Engine against a shared store on a fixed tick
// interval and prints a one-line summary (mastership and group count) per
// tick.
//
// This binary is a thin demonstration shell: the interesting work all
// happens in the sensorium package. It exists to give the engine a runnable
// home the way cmd/ratelimiter-api does for the rate limiter core, with the
// same flag-driven config and signal-based graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afeldman/sensorium"
)

func main() {
	storeURL := flag.String("store_url", "memory://", "Store URL: memory:// or redis://host:port[,host2:port2,...]")
	nodeID := flag.String("node_id", "", "This node's election identifier (required, must be unique per process)")
	heartbeatTTL := flag.Duration("heartbeat_ttl", 5*time.Second, "Election heartbeat TTL")
	tickInterval := flag.Duration("tick_interval", time.Second, "How often to call Step()")
	bucketMs := flag.Int64("bucket_ms", 100, "Time-bucket width (ms) used by group-id generation")
	driftLearningRate := flag.Float64("drift_learning_rate", 1e-4, "Damped proportional drift learning rate")
	storeTimeout := flag.Duration("store_timeout", time.Second, "Store timeout shared by all store calls of one tick")
	stateFlushThresholdNs := flag.Int64("state_flush_threshold_ns", 1_000_000, "Accumulated offset-mean movement (ns) before a sensor's model is re-persisted")
	stateFlushLowWatermarkNs := flag.Int64("state_flush_low_watermark_ns", 0, "Hysteresis low watermark (ns) for state flush; 0 disables hysteresis")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	flag.Parse()

	if *nodeID == "" {
		log.Fatalf("syncd: -node_id is required")
	}

	engine, err := sensorium.NewEngine(*storeURL, *nodeID, uint32(heartbeatTTL.Seconds()),
		sensorium.WithBucketMs(*bucketMs),
		sensorium.WithDriftLearningRate(*driftLearningRate),
		sensorium.WithStoreTimeout(*storeTimeout),
		sensorium.WithStateFlushThresholdNs(*stateFlushThresholdNs),
		sensorium.WithStateFlushLowWatermarkNs(*stateFlushLowWatermarkNs),
		sensorium.WithMetricsAddr(*metricsAddr),
	)
	if err != nil {
		log.Fatalf("syncd: could not build engine: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()

	fmt.Printf("syncd: node %q ticking every %s against %s\n", *nodeID, *tickInterval, *storeURL)

runLoop:
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), *storeTimeout+*tickInterval)
			groups, err := engine.Step(ctx)
			cancel()
			if err != nil {
				log.Printf("syncd: tick error: %v", err)
				continue
			}
			fmt.Printf("tick: master=%v groups=%d\n", engine.IsMaster(), len(groups))
		case <-stop:
			break runLoop
		}
	}

	fmt.Println("\nShutting down syncd...")
	if err := engine.Close(); err != nil {
		log.Fatalf("syncd: shutdown failed: %v", err)
	}
	fmt.Println("syncd stopped.")
}
