// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package taskstate

import (
	"context"
	"sync"
)

// Registry stores task states keyed by task id. Update serializes all
// mutations of a task so that concurrent page workers never lose writes.
type Registry interface {
	// Put stores the initial state for a task, replacing any previous one.
	Put(ctx context.Context, taskID string, state *State) error
	// Get returns a copy of the task state, or false when the task is
	// unknown.
	Get(ctx context.Context, taskID string) (*State, bool, error)
	// Update applies fn to the task state under the registry's lock and
	// persists the result. It reports false when the task is unknown, in
	// which case fn is not called.
	Update(ctx context.Context, taskID string, fn func(*State)) (bool, error)
	// Delete removes the task state.
	Delete(ctx context.Context, taskID string) error
}

// InMemory implements Registry with a process-local map. It is the default
// registry; state is lost when the process exits.
type InMemory struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewInMemory returns an empty in-memory registry.
func NewInMemory() *InMemory {
	return &InMemory{states: make(map[string]*State)}
}

// Put implements Registry.
func (r *InMemory) Put(_ context.Context, taskID string, state *State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[taskID] = state.clone()
	return nil
}

// Get implements Registry. The returned state is a copy; mutating it does not
// affect the stored one.
func (r *InMemory) Get(_ context.Context, taskID string) (*State, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[taskID]
	if !ok {
		return nil, false, nil
	}
	return state.clone(), true, nil
}

// Update implements Registry.
func (r *InMemory) Update(_ context.Context, taskID string, fn func(*State)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[taskID]
	if !ok {
		return false, nil
	}
	fn(state)
	return true, nil
}

// Delete implements Registry.
func (r *InMemory) Delete(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, taskID)
	return nil
}
