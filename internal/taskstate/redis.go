// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package taskstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// taskTTL bounds how long an abandoned task survives in Redis. Tasks that end
// normally are removed by cleanup.
const taskTTL = 24 * time.Hour

// Redis implements Registry on a Redis key space so that task state survives
// process restarts. Mutations are serialized with a process-local lock; the
// registry targets a single backend instance, not a distributed scheduler.
type Redis struct {
	mu  sync.Mutex
	rdb *redis.Client
}

// NewRedis returns a Redis-backed registry.
func NewRedis(rdb *redis.Client) (*Redis, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Redis{rdb: rdb}, nil
}

func redisKeyForTask(taskID string) string {
	return fmt.Sprintf("xiaoshubao:task:%s", taskID)
}

// Put implements Registry.
func (r *Redis) Put(ctx context.Context, taskID string, state *State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set(ctx, taskID, state)
}

// Get implements Registry.
func (r *Redis) Get(ctx context.Context, taskID string) (*State, bool, error) {
	raw, err := r.rdb.Get(ctx, redisKeyForTask(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read task state: %w", err)
	}
	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, false, fmt.Errorf("failed to decode task state: %w", err)
	}
	return &state, true, nil
}

// Update implements Registry with a read-modify-write under the local lock.
func (r *Redis) Update(ctx context.Context, taskID string, fn func(*State)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok, err := r.Get(ctx, taskID)
	if err != nil || !ok {
		return false, err
	}
	fn(state)
	if err := r.set(ctx, taskID, state); err != nil {
		return false, err
	}
	return true, nil
}

// Delete implements Registry.
func (r *Redis) Delete(ctx context.Context, taskID string) error {
	if err := r.rdb.Del(ctx, redisKeyForTask(taskID)).Err(); err != nil {
		return fmt.Errorf("failed to delete task state: %w", err)
	}
	return nil
}

func (r *Redis) set(ctx context.Context, taskID string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode task state: %w", err)
	}
	if err := r.rdb.Set(ctx, redisKeyForTask(taskID), raw, taskTTL).Err(); err != nil {
		return fmt.Errorf("failed to store task state: %w", err)
	}
	return nil
}
