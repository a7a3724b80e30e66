// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package catalog

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemory implements Store with a process-local map. It is the default
// backend when no Mongo URI is configured and the double used in tests.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*Record
	// now is swapped in tests to control timestamps.
	now func() time.Time
}

// NewInMemory returns an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{records: make(map[string]*Record), now: time.Now}
}

// Create implements Store.
func (s *InMemory) Create(_ context.Context, title string, outline json.RawMessage, taskID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	rec := &Record{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Outline:   outline,
		Images:    Images{TaskID: taskID, Generated: []string{}},
		Status:    StatusDraft,
		PageCount: pageCount(outline),
		TaskID:    taskID,
	}
	s.records[rec.ID] = rec
	cp := *rec
	return &cp, nil
}

// Get implements Store.
func (s *InMemory) Get(_ context.Context, id string) (*Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

// Update implements Store.
func (s *InMemory) Update(_ context.Context, id string, upd Update) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	upd.apply(rec, s.now())
	return true, nil
}

// Delete implements Store.
func (s *InMemory) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

// List implements Store.
func (s *InMemory) List(_ context.Context, page, pageSize int, status string) (*List, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	s.mu.RLock()
	all := s.sorted(status)
	s.mu.RUnlock()

	total := len(all)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return &List{
		Records:    all[start:end],
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// Search implements Store.
func (s *InMemory) Search(_ context.Context, keyword string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(keyword)
	out := make([]Record, 0)
	for _, rec := range s.sorted("") {
		if strings.Contains(strings.ToLower(rec.Title), needle) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Statistics implements Store.
func (s *InMemory) Statistics(_ context.Context) (*Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &Statistics{ByStatus: make(map[Status]int)}
	for _, rec := range s.records {
		stats.Total++
		stats.ByStatus[rec.Status]++
	}
	return stats, nil
}

// FindByTask implements Store.
func (s *InMemory) FindByTask(_ context.Context, taskID string) (*Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.TaskID == taskID {
			cp := *rec
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

// sorted returns copies of the matching records ordered by update time,
// newest first. Callers hold at least the read lock.
func (s *InMemory) sorted(status string) []Record {
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if status != "" && status != "all" && string(rec.Status) != status {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}
