// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/n1n-api/xiaoshubao/internal/catalog"
)

// createHistoryRequest is the JSON body of POST /api/history.
type createHistoryRequest struct {
	Topic   string          `json:"topic"`
	Outline json.RawMessage `json:"outline"`
	TaskID  string          `json:"task_id"`
}

func (s *Server) handleCreateHistory(w http.ResponseWriter, r *http.Request) {
	var req createHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": fmt.Sprintf("failed to parse request body: %v", err)})
		return
	}
	if req.Topic == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "topic is required"})
		return
	}
	rec, err := s.catalog.Create(r.Context(), req.Topic, req.Outline, req.TaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": rec.ID, "record": rec})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := queryInt(q.Get("page"), 1)
	pageSize := queryInt(q.Get("page_size"), 20)
	list, err := s.catalog.List(r.Context(), page, pageSize, q.Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": list})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": fmt.Sprintf("record %q not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "record": rec})
}

// updateHistoryRequest is the JSON body of PUT /api/history/{id}. Absent
// fields keep their stored values.
type updateHistoryRequest struct {
	Outline   json.RawMessage `json:"outline"`
	Images    *catalog.Images `json:"images"`
	Status    *catalog.Status `json:"status"`
	Thumbnail *string         `json:"thumbnail"`
}

func (s *Server) handleUpdateHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": fmt.Sprintf("failed to parse request body: %v", err)})
		return
	}
	ok, err := s.catalog.Update(r.Context(), id, catalog.Update{
		Outline:   req.Outline,
		Images:    req.Images,
		Status:    req.Status,
		Thumbnail: req.Thumbnail,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": fmt.Sprintf("record %q not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := s.catalog.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": fmt.Sprintf("record %q not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSearchHistory(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "q is required"})
		return
	}
	records, err := s.catalog.Search(r.Context(), keyword)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "records": records})
}

func (s *Server) handleHistoryStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.Statistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "statistics": stats})
}

// handleSyncHistory reconciles a record with the live task state, recovering
// records whose generation stream was interrupted.
func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	result, err := catalog.SyncTask(r.Context(), s.catalog, s.registry, id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queryInt parses a positive integer query parameter, falling back to def.
func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
