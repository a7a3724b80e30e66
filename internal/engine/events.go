// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package engine

// EventKind is the SSE event name of a stream frame.
type EventKind string

// Event kinds emitted by Generate and RetryFailed.
const (
	EventProgress    EventKind = "progress"
	EventComplete    EventKind = "complete"
	EventError       EventKind = "error"
	EventFinish      EventKind = "finish"
	EventRetryStart  EventKind = "retry_start"
	EventRetryFinish EventKind = "retry_finish"
)

// Event is one frame of a generation stream. Data marshals to the wire
// payload of the frame.
type Event struct {
	Kind EventKind
	Data any
}

// Page statuses carried in progress, complete and error payloads.
const (
	statusGenerating = "generating"
	statusBatchStart = "batch_start"
	statusDone       = "done"
	statusError      = "error"
)

// Generation phases. The cover is generated first and becomes the style
// reference for the content pages.
const (
	PhaseCover   = "cover"
	PhaseContent = "content"
)

// PageProgress announces that work on one page started. Message is only set
// for the cover page.
type PageProgress struct {
	Index   int    `json:"index"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Phase   string `json:"phase"`
}

// BatchProgress announces the start of the content phase.
type BatchProgress struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Phase   string `json:"phase"`
}

// PageComplete reports a stored page image. Phase is empty in batch retry
// streams.
type PageComplete struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	ImageURL string `json:"image_url"`
	Phase    string `json:"phase,omitempty"`
}

// PageError reports a page whose generation attempts were exhausted. Phase is
// empty in batch retry streams.
type PageError struct {
	Index     int    `json:"index"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Phase     string `json:"phase,omitempty"`
}

// Finish summarizes a generation run. Images holds stored filenames in
// completion order; FailedIndices is sorted ascending.
type Finish struct {
	Success       bool     `json:"success"`
	TaskID        string   `json:"task_id"`
	Images        []string `json:"images"`
	Total         int      `json:"total"`
	Completed     int      `json:"completed"`
	Failed        int      `json:"failed"`
	FailedIndices []int    `json:"failed_indices"`
}

// RetryStart announces a batch retry run.
type RetryStart struct {
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// RetryFinish summarizes a batch retry run.
type RetryFinish struct {
	Success   bool `json:"success"`
	Total     int  `json:"total"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
}
