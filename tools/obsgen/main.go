// obsgen is a tiny, dependency-light synthetic observation generator for
// exercising a sensorium engine without real sensor hardware. It writes
// obs:* entries directly into a store at a fixed rate, simulating a
// configurable number of sensors whose local clocks sit at a fixed, random
// per-sensor offset from a shared ground-truth global time.
//
// Usage examples:
//
//	obsgen -store_url=memory:// -sensors=5 -n=200 -rate=50ms
//	obsgen -store_url=redis://127.0.0.1:6379 -sensors=20 -n=1000 -rate=10ms -drift_ns=500000
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/afeldman/sensorium/internal/store"
	"github.com/afeldman/sensorium/pkg/observation"
)

func main() {
	var (
		storeURL   = flag.String("store_url", "memory://", "Store URL: memory:// or redis://host:port")
		sensors    = flag.Int("sensors", 5, "Number of simulated sensors")
		n          = flag.Int("n", 100, "Total observations to write per sensor")
		rate       = flag.Duration("rate", 50*time.Millisecond, "Delay between writes")
		driftNs    = flag.Int64("drift_ns", 200_000, "Max per-sensor clock offset magnitude, in nanoseconds")
		covariance = flag.Float64("covariance", 0.01, "Covariance to attach to every observation")
		seed       = flag.Int64("seed", 1, "PRNG seed for reproducible runs")
		ttl        = flag.Duration("ttl", 5*time.Minute, "Observation TTL")
	)
	flag.Parse()

	if *sensors <= 0 || *n <= 0 {
		fmt.Fprintln(os.Stderr, "-sensors and -n must be > 0")
		os.Exit(2)
	}

	s, closeFn, err := openStore(*storeURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "obsgen: %v\n", err)
		os.Exit(1)
	}
	if closeFn != nil {
		defer closeFn()
	}

	rng := rand.New(rand.NewSource(*seed))
	offsets := make([]float64, *sensors)
	for i := range offsets {
		offsets[i] = (rng.Float64()*2 - 1) * float64(*driftNs) / 1e9
	}

	ctx := context.Background()
	start := time.Now()
	written := 0
	for tick := 0; tick < *n; tick++ {
		groundTruth := float64(tick) * rate.Seconds()
		for sensorIdx := 0; sensorIdx < *sensors; sensorIdx++ {
			o := observation.Observation{
				SensorID:       "sensor-" + strconv.Itoa(sensorIdx),
				LocalTimestamp: groundTruth + offsets[sensorIdx],
				Covariance:     *covariance,
			}
			if err := store.PutObservation(ctx, s, o, time.Now().UnixNano(), *ttl); err != nil {
				fmt.Fprintf(os.Stderr, "obsgen: write failed for %s: %v\n", o.SensorID, err)
				continue
			}
			written++
		}
		time.Sleep(*rate)
	}

	fmt.Printf("obsgen: wrote %d observations across %d sensors in %s\n", written, *sensors, time.Since(start))
}

func openStore(storeURL string) (store.Store, func() error, error) {
	switch {
	case storeURL == "memory://" || storeURL == "memory":
		return store.NewMemoryStore(), nil, nil
	case len(storeURL) > len("redis://") && storeURL[:len("redis://")] == "redis://":
		rs := store.NewRedisStore(storeURL[len("redis://"):])
		return rs, rs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unrecognized store url %q (want memory:// or redis://host:port)", storeURL)
	}
}
