// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package objectstore

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Store used in tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string]Object
}

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

// Upload implements Store.
func (m *Memory) Upload(_ context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = Object{Data: cp, ContentType: contentType}
	return m.URL(key), nil
}

// URL implements Store.
func (m *Memory) URL(key string) string { return "memory://" + key }

// Object returns the stored object for key.
func (m *Memory) Object(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
