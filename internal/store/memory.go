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
	"strings"
	"sync"
	"time"
)

// entry pairs a stored value with its absolute expiry. expiresAt is the
// zero Time for keys with no TTL (sync:state:*, sync:group:*).
type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process Store backed by a sync.Map, for tests and the
// single-node demo path. Expired entries are evicted lazily on access rather
// than by a background sweep.
type MemoryStore struct {
	data sync.Map // string -> entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.data.Store(key, e)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	e := v.(entry)
	if e.expired(time.Now()) {
		m.data.Delete(key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *MemoryStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	now := time.Now()
	var keys []string
	m.data.Range(func(k, v interface{}) bool {
		key := k.(string)
		if !strings.HasPrefix(key, prefix) {
			return true
		}
		if v.(entry).expired(now) {
			m.data.Delete(key)
			return true
		}
		keys = append(keys, key)
		return true
	})
	return keys, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.data.Delete(key)
	return nil
}
