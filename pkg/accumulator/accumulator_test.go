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

package accumulator

import (
	"sync"
	"testing"
)

func TestUpdateAndNet(t *testing.T) {
	a := New(1000)
	a.Update(100)
	a.Update(-30)
	a.Update(50)
	if got := a.Net(); got != 120 {
		t.Fatalf("got %d want 120", got)
	}
}

func TestShouldFlushThreshold(t *testing.T) {
	a := New(100)
	a.Update(50)
	if should, _ := a.ShouldFlush(); should {
		t.Fatalf("should not flush below threshold")
	}
	a.Update(60)
	should, net := a.ShouldFlush()
	if !should {
		t.Fatalf("expected flush once net crosses threshold")
	}
	if net != 110 {
		t.Fatalf("got net %d want 110", net)
	}
}

func TestCommitReducesNet(t *testing.T) {
	a := New(100)
	a.Update(150)
	a.Commit(150)
	if got := a.Net(); got != 0 {
		t.Fatalf("expected net 0 after full commit, got %d", got)
	}
}

func TestHysteresisLowWatermark(t *testing.T) {
	a := NewWithOptions(100, Options{LowWatermark: 20})
	a.Update(100)
	should, net := a.ShouldFlush()
	if !should {
		t.Fatalf("expected initial flush")
	}
	a.Commit(net)

	// Still above the low watermark: must not re-arm yet.
	a.Update(30)
	if should, _ := a.ShouldFlush(); should {
		t.Fatalf("should not flush again before crossing threshold post-disarm")
	}

	// Drop below the low watermark by committing further, then build back up.
	a.Commit(a.Net())
	a.Update(15)
	if should, _ := a.ShouldFlush(); should {
		t.Fatalf("should not flush below threshold")
	}
}

func TestConcurrentUpdates(t *testing.T) {
	a := New(1 << 30)
	var wg sync.WaitGroup
	const goroutines = 32
	const perGoroutine = 1000
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				a.Update(1)
			}
		}()
	}
	wg.Wait()
	if got := a.Net(); got != goroutines*perGoroutine {
		t.Fatalf("got %d want %d", got, goroutines*perGoroutine)
	}
}
