// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package catalog keeps the persistent record of picture-book generations so
// that finished and half-finished books survive the in-process task state.
// Records are keyed by a UUID independent of the task id; the task id links a
// record to the live task state for synchronization.
package catalog

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the completion state of a record, derived from how many of its
// pages have a stored image.
type Status string

// Record statuses.
const (
	// StatusDraft means no page image has been generated yet.
	StatusDraft Status = "draft"
	// StatusPartial means some but not all page images exist.
	StatusPartial Status = "partial"
	// StatusCompleted means every page has an image.
	StatusCompleted Status = "completed"
)

// DeriveStatus returns the status for a record with generated images out of
// pageCount pages.
func DeriveStatus(generated, pageCount int) Status {
	switch {
	case generated == 0:
		return StatusDraft
	case generated >= pageCount:
		return StatusCompleted
	default:
		return StatusPartial
	}
}

// Images links a record to its generation task and the stored filenames.
type Images struct {
	TaskID    string   `json:"task_id" bson:"task_id"`
	Generated []string `json:"generated" bson:"generated"`
}

// Record is one catalog entry.
type Record struct {
	ID        string    `json:"id" bson:"id"`
	Title     string    `json:"title" bson:"title"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
	// Outline is the outline JSON as produced by the outline service. The
	// catalog stores it opaquely; only the page count is derived from it.
	Outline json.RawMessage `json:"outline" bson:"outline"`
	Images  Images          `json:"images" bson:"images"`
	Status  Status          `json:"status" bson:"status"`
	// Thumbnail is the filename of the image shown in list views.
	Thumbnail string `json:"thumbnail,omitempty" bson:"thumbnail,omitempty"`
	PageCount int    `json:"page_count" bson:"page_count"`
	TaskID    string `json:"task_id,omitempty" bson:"task_id,omitempty"`
}

// Update is a partial update of a record. Nil fields keep the stored value.
// Updating the outline recomputes the page count.
type Update struct {
	Outline   json.RawMessage
	Images    *Images
	Status    *Status
	Thumbnail *string
}

// List is one page of records ordered by update time, newest first.
type List struct {
	Records    []Record `json:"records"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// Statistics summarizes the catalog for the dashboard.
type Statistics struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}

// Store persists catalog records. Implementations are safe for concurrent
// use.
type Store interface {
	// Create inserts a new draft record and returns it with a minted id.
	Create(ctx context.Context, title string, outline json.RawMessage, taskID string) (*Record, error)
	// Get returns the record, or false when the id is unknown.
	Get(ctx context.Context, id string) (*Record, bool, error)
	// Update applies a partial update. It reports false when the id is
	// unknown.
	Update(ctx context.Context, id string, upd Update) (bool, error)
	// Delete removes the record. It reports false when the id is unknown.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns one page of records, optionally filtered by status
	// ("" or "all" disables the filter).
	List(ctx context.Context, page, pageSize int, status string) (*List, error)
	// Search returns the records whose title contains keyword,
	// case-insensitively, newest first.
	Search(ctx context.Context, keyword string) ([]Record, error)
	// Statistics returns record counts overall and per status.
	Statistics(ctx context.Context) (*Statistics, error)
	// FindByTask returns the record linked to the given task id, or false
	// when no record references it.
	FindByTask(ctx context.Context, taskID string) (*Record, bool, error)
}

// pageCount extracts the number of pages from an outline JSON document.
// Malformed or empty outlines count as zero pages.
func pageCount(outline json.RawMessage) int {
	if len(outline) == 0 {
		return 0
	}
	var o struct {
		Pages []json.RawMessage `json:"pages"`
	}
	if err := json.Unmarshal(outline, &o); err != nil {
		return 0
	}
	return len(o.Pages)
}

// apply merges upd into rec and bumps the update time.
func (u Update) apply(rec *Record, now time.Time) {
	if u.Outline != nil {
		rec.Outline = u.Outline
		rec.PageCount = pageCount(u.Outline)
	}
	if u.Images != nil {
		if u.Images.TaskID != "" {
			rec.Images.TaskID = u.Images.TaskID
			rec.TaskID = u.Images.TaskID
		}
		if u.Images.Generated != nil {
			rec.Images.Generated = u.Images.Generated
		}
	}
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.Thumbnail != nil {
		rec.Thumbnail = *u.Thumbnail
	}
	rec.UpdatedAt = now
}
