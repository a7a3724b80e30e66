// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/n1n-api/xiaoshubao/internal/taskstate"
)

// SyncResult reports what a task synchronization changed.
type SyncResult struct {
	Success    bool     `json:"success"`
	RecordID   string   `json:"record_id"`
	TaskID     string   `json:"task_id"`
	ImageCount int      `json:"image_count"`
	Status     Status   `json:"status"`
	Images     []string `json:"images"`
}

// SyncTask projects the live task state of a record's task onto the record:
// generated filenames ordered by page index, status derived from the page
// count, thumbnail set to the first image. It is the recovery path when a
// generation stream was lost mid-flight.
func SyncTask(ctx context.Context, store Store, registry taskstate.Registry, recordID string) (*SyncResult, error) {
	rec, ok, err := store.Get(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("record %q not found", recordID)
	}
	if rec.TaskID == "" {
		return nil, fmt.Errorf("record %q has no generation task", recordID)
	}
	state, ok, err := registry.Get(ctx, rec.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task state: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("task %q not found", rec.TaskID)
	}

	indices := make([]int, 0, len(state.Generated))
	for idx := range state.Generated {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	images := make([]string, 0, len(indices))
	for _, idx := range indices {
		images = append(images, state.Generated[idx])
	}

	pages := rec.PageCount
	if pages == 0 {
		pages = len(state.Pages)
	}
	status := DeriveStatus(len(images), pages)
	upd := Update{
		Images: &Images{TaskID: rec.TaskID, Generated: images},
		Status: &status,
	}
	if len(images) > 0 {
		upd.Thumbnail = &images[0]
	}
	if _, err := store.Update(ctx, rec.ID, upd); err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return &SyncResult{
		Success:    true,
		RecordID:   rec.ID,
		TaskID:     rec.TaskID,
		ImageCount: len(images),
		Status:     status,
		Images:     images,
	}, nil
}
