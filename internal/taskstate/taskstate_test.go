// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package taskstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testPages() []Page {
	return []Page{
		{Index: 1, Type: PageTypeCover, Content: "封面"},
		{Index: 2, Type: PageTypeContent, Content: "第一页"},
		{Index: 3, Type: PageTypeContent, Content: "第二页"},
	}
}

func TestStateSnapshot(t *testing.T) {
	state := NewState(testPages(), `{"title":"t"}`, [][]byte{[]byte("ref")}, "一只小猫")
	state.Generated[1] = "1.png"
	state.Failed[2] = "boom"
	state.CoverImage = []byte("cover")

	snap := state.Snapshot("task_01234567")
	require.Equal(t, "task_01234567", snap.TaskID)
	require.Equal(t, testPages(), snap.Pages)
	require.Equal(t, map[int]string{1: "1.png"}, snap.Generated)
	require.Equal(t, map[int]string{2: "boom"}, snap.Failed)
	require.True(t, snap.HasCover)
	require.Equal(t, `{"title":"t"}`, snap.FullOutline)
	require.Equal(t, "一只小猫", snap.UserTopic)

	// The snapshot maps are copies.
	snap.Generated[3] = "3.png"
	require.NotContains(t, state.Generated, 3)
}

func TestInMemoryRegistry(t *testing.T) {
	reg := NewInMemory()
	ctx := t.Context()

	_, ok, err := reg.Get(ctx, "task_unknown")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = reg.Update(ctx, "task_unknown", func(*State) { t.Fatal("must not be called") })
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, reg.Put(ctx, "task_01234567", NewState(testPages(), "", nil, "")))

	ok, err = reg.Update(ctx, "task_01234567", func(s *State) {
		s.Generated[1] = "1.png"
		s.CoverImage = []byte("cover")
	})
	require.NoError(t, err)
	require.True(t, ok)

	state, ok, err := reg.Get(ctx, "task_01234567")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1.png", state.Generated[1])
	require.Equal(t, []byte("cover"), state.CoverImage)

	// Mutating the returned copy does not leak into the registry.
	state.Generated[2] = "2.png"
	fresh, _, err := reg.Get(ctx, "task_01234567")
	require.NoError(t, err)
	require.NotContains(t, fresh.Generated, 2)

	require.NoError(t, reg.Delete(ctx, "task_01234567"))
	_, ok, err = reg.Get(ctx, "task_01234567")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInMemoryRegistryConcurrentUpdates(t *testing.T) {
	reg := NewInMemory()
	ctx := t.Context()
	require.NoError(t, reg.Put(ctx, "task_01234567", NewState(nil, "", nil, "")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Update(ctx, "task_01234567", func(s *State) {
				s.Generated[i] = "x.png"
			})
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state, ok, err := reg.Get(ctx, "task_01234567")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, state.Generated, 50)
}
