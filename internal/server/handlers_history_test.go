// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/n1n-api/xiaoshubao/internal/catalog"
	"github.com/n1n-api/xiaoshubao/internal/taskstate"
)

// createRecord posts a history record and returns its id.
func createRecord(t *testing.T, s *Server, topic, taskID string) string {
	t.Helper()
	body := fmt.Sprintf(`{"topic":%q,"outline":{"title":%q,"pages":[{"index":1},{"index":2},{"index":3}]},"task_id":%q}`, topic, topic, taskID)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/history", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestHistoryCreateRequiresTopic(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/history", strings.NewReader(`{"outline":{}}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "topic is required")
}

func TestHistoryCRUD(t *testing.T) {
	s := newTestServer(t)
	id := createRecord(t, s, "小猫的一天", "task_cat")

	// Get.
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var getResp struct {
		Success bool           `json:"success"`
		Record  catalog.Record `json:"record"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &getResp))
	require.Equal(t, "小猫的一天", getResp.Record.Title)
	require.Equal(t, catalog.StatusDraft, getResp.Record.Status)
	require.Equal(t, 3, getResp.Record.PageCount)
	require.Equal(t, "task_cat", getResp.Record.TaskID)

	// Update: attach generated images and flip the status.
	update := `{"images":{"task_id":"task_cat","generated":["1.png","2.png"]},"status":"partial","thumbnail":"/api/images/task_cat/1.png"}`
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/history/"+id, strings.NewReader(update)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/"+id, nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &getResp))
	require.Equal(t, catalog.StatusPartial, getResp.Record.Status)
	require.Equal(t, []string{"1.png", "2.png"}, getResp.Record.Images.Generated)
	require.Equal(t, "/api/images/task_cat/1.png", getResp.Record.Thumbnail)

	// Delete.
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/history/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/"+id, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryNotFound(t *testing.T) {
	s := newTestServer(t)
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/history/missing", nil),
		httptest.NewRequest(http.MethodPut, "/api/history/missing", strings.NewReader(`{}`)),
		httptest.NewRequest(http.MethodDelete, "/api/history/missing", nil),
	} {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusNotFound, rec.Code, "%s %s", req.Method, req.URL)
		require.Contains(t, rec.Body.String(), "not found")
	}
}

func TestHistoryListPagination(t *testing.T) {
	s := newTestServer(t)
	for i := range 5 {
		createRecord(t, s, fmt.Sprintf("story %d", i), "")
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?page=2&page_size=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool         `json:"success"`
		Data    catalog.List `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 5, resp.Data.Total)
	require.Equal(t, 2, resp.Data.Page)
	require.Equal(t, 2, resp.Data.PageSize)
	require.Equal(t, 3, resp.Data.TotalPages)
	require.Len(t, resp.Data.Records, 2)

	// Bogus pagination values fall back to the defaults.
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?page=-3&page_size=zero", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Data.Page)
	require.Equal(t, 20, resp.Data.PageSize)
}

func TestHistorySearch(t *testing.T) {
	s := newTestServer(t)
	createRecord(t, s, "勇敢的小恐龙", "")
	createRecord(t, s, "月亮上的兔子", "")

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/search?q=恐龙", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success bool             `json:"success"`
		Records []catalog.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	require.Equal(t, "勇敢的小恐龙", resp.Records[0].Title)

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/search", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryStatistics(t *testing.T) {
	s := newTestServer(t)
	createRecord(t, s, "a", "")
	createRecord(t, s, "b", "")

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/statistics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Success    bool               `json:"success"`
		Statistics catalog.Statistics `json:"statistics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Statistics.Total)
	require.Equal(t, 2, resp.Statistics.ByStatus[catalog.StatusDraft])
}

// TestHistorySync reconciles a record with the live task state, the recovery
// path for interrupted generation streams.
func TestHistorySync(t *testing.T) {
	s := newTestServer(t)
	id := createRecord(t, s, "小猫的一天", "task_cat")

	state := taskstate.NewState([]taskstate.Page{{Index: 1}, {Index: 2}, {Index: 3}}, "", nil, "")
	state.Generated[1] = "1.png"
	state.Generated[2] = "2.png"
	require.NoError(t, s.registry.Put(t.Context(), "task_cat", state))

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/history/"+id+"/sync", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result catalog.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)
	require.Equal(t, 2, result.ImageCount)
	require.Equal(t, catalog.StatusPartial, result.Status)

	// The record itself was updated.
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/"+id, nil))
	var getResp struct {
		Record catalog.Record `json:"record"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &getResp))
	require.Equal(t, catalog.StatusPartial, getResp.Record.Status)
	require.Equal(t, []string{"1.png", "2.png"}, getResp.Record.Images.Generated)
}

func TestHistorySyncWithoutTask(t *testing.T) {
	s := newTestServer(t)
	id := createRecord(t, s, "no task", "")

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/history/"+id+"/sync", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "no generation task")
}
