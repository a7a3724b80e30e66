// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package taskstate

import (
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to the Redis instance named by TEST_REDIS_ADDR, or
// skips the test when the variable is unset.
func newTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis registry test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, rdb.Ping(t.Context()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNewRedisRequiresClient(t *testing.T) {
	_, err := NewRedis(nil)
	require.EqualError(t, err, "redis client is required")
}

func TestRedisRegistry(t *testing.T) {
	reg, err := NewRedis(newTestRedis(t))
	require.NoError(t, err)
	ctx := t.Context()

	const taskID = "task_deadbeef"
	t.Cleanup(func() { _ = reg.Delete(ctx, taskID) })

	_, ok, err := reg.Get(ctx, taskID)
	require.NoError(t, err)
	require.False(t, ok)

	state := NewState(testPages(), `{"title":"t"}`, [][]byte{[]byte("ref")}, "topic")
	state.CoverImage = []byte{0x89, 0x50, 0x4e, 0x47}
	require.NoError(t, reg.Put(ctx, taskID, state))

	ok, err = reg.Update(ctx, taskID, func(s *State) {
		s.Generated[1] = "1.png"
		s.Failed[2] = "boom"
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, ok, err := reg.Get(ctx, taskID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testPages(), got.Pages)
	require.Equal(t, "1.png", got.Generated[1])
	require.Equal(t, "boom", got.Failed[2])
	// Binary fields round-trip through the JSON encoding.
	require.Equal(t, state.CoverImage, got.CoverImage)
	require.Equal(t, [][]byte{[]byte("ref")}, got.UserImages)

	require.NoError(t, reg.Delete(ctx, taskID))
	_, ok, err = reg.Get(ctx, taskID)
	require.NoError(t, err)
	require.False(t, ok)
}
