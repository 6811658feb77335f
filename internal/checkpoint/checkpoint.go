// Copyright (c) 2026 The Wrapped Authors
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

// Package checkpoint tracks the last successful fetch date so the capture
// collaborators can skip sweeps that already ran today. The state is
// passed in explicitly — the merge/dedup core never sees it.
package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// dateLayout is the stored form of a fetch date, local-day granularity.
const dateLayout = "2006-01-02"

// Store persists the last-fetch date. Implementations must tolerate an
// empty value (no fetch has ever run).
type Store interface {
	LastFetchDate(ctx context.Context) (string, error)
	SetLastFetchDate(ctx context.Context, date string) error
}

// Today formats t as a checkpoint date string.
func Today(t time.Time) string {
	return t.Format(dateLayout)
}

// ShouldSkip reports whether a sweep already ran on the day of now.
func ShouldSkip(ctx context.Context, s Store, now time.Time) (bool, error) {
	last, err := s.LastFetchDate(ctx)
	if err != nil {
		return false, err
	}
	return last == Today(now), nil
}

// RedisStore keeps the checkpoint in Redis so it survives restarts.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore creates a Redis-backed checkpoint store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, key: "wrapped:last_fetch_date"}
}

func (s *RedisStore) LastFetchDate(ctx context.Context) (string, error) {
	v, err := s.rdb.Get(ctx, s.key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("checkpoint GET: %w", err)
	}
	return v, nil
}

func (s *RedisStore) SetLastFetchDate(ctx context.Context, date string) error {
	if err := s.rdb.Set(ctx, s.key, date, 0).Err(); err != nil {
		return fmt.Errorf("checkpoint SET: %w", err)
	}
	return nil
}

// MemoryStore is an in-process checkpoint for tests and one-shot runs.
type MemoryStore struct {
	mu   sync.Mutex
	date string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LastFetchDate(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.date, nil
}

func (s *MemoryStore) SetLastFetchDate(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.date = date
	return nil
}
