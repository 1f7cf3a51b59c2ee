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
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"
)

// ShardedStore distributes keys across multiple backing Store endpoints
// using rendezvous (highest random weight) hashing, so that adding or
// removing an endpoint only remaps the keys owned by that endpoint instead
// of reshuffling the whole keyspace. Every key an operation touches is
// self-contained (no multi-key transactions span shards), so each method
// simply routes to the single shard that owns its key.
type ShardedStore struct {
	shards map[string]Store
	picker *rendezvous.Rendezvous
}

// NewShardedStore builds a ShardedStore over the given named endpoints.
// Names are also rendezvous node ids; they need not be addresses (e.g. the
// caller may key them "shard-0", "shard-1", ... or use the addresses
// directly).
func NewShardedStore(shards map[string]Store) *ShardedStore {
	names := make([]string, 0, len(shards))
	for name := range shards {
		names = append(names, name)
	}
	return &ShardedStore{
		shards: shards,
		picker: rendezvous.New(names, xxhashString),
	}
}

func xxhashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

func (s *ShardedStore) shardFor(key string) (Store, error) {
	name := s.picker.Lookup(key)
	store, ok := s.shards[name]
	if !ok {
		return nil, fmt.Errorf("shard: no store registered for node %q", name)
	}
	return store, nil
}

func (s *ShardedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	shard, err := s.shardFor(key)
	if err != nil {
		return err
	}
	return shard.Set(ctx, key, value, ttl)
}

func (s *ShardedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	shard, err := s.shardFor(key)
	if err != nil {
		return nil, false, err
	}
	return shard.Get(ctx, key)
}

// ScanPrefix fans out to every shard, since a prefix scan has no single
// owning node. Per-shard errors abort the whole scan: a partial observation
// or heartbeat keyspace would silently corrupt clustering or election.
func (s *ShardedStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var all []string
	for name, shard := range s.shards {
		keys, err := shard.ScanPrefix(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("shard %q scan %s*: %w", name, prefix, err)
		}
		all = append(all, keys...)
	}
	return all, nil
}

func (s *ShardedStore) Delete(ctx context.Context, key string) error {
	shard, err := s.shardFor(key)
	if err != nil {
		return err
	}
	return shard.Delete(ctx, key)
}
