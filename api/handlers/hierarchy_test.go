package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/agentfleet/api"
	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

type stubGraphSource struct {
	graph    hierarchy.Graph
	err      error
	calls []bool
}

func (s *stubGraphSource) Graph(ctx context.Context, refresh bool) (hierarchy.Graph, error) {
	s.calls = append(s.calls, refresh)
	return s.graph, s.err
}

func sampleGraph() hierarchy.Graph {
	return hierarchy.Build(hierarchy.Input{
		ConfigRecords: []hierarchy.AgentRelationshipRecord{
			{ID: "Lead", DelegatesTo: []string{"Worker"}},
		},
		Sources: hierarchy.SourceStatus{
			Runtime: hierarchy.RuntimeSourceState{Command: "fleetctl agents list --json"},
		},
	})
}

// =============================================================================
// 🧪 HierarchyHandler 测试
// =============================================================================

func TestHierarchyHandler_Get(t *testing.T) {
	src := &stubGraphSource{graph: sampleGraph()}
	h := NewHierarchyHandler(src, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleHierarchy(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents/hierarchy", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var payload api.AgentHierarchyPayload
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))
	assert.Len(t, payload.Data.Nodes, 2)
	assert.Equal(t, "Lead", payload.Data.Nodes[0].DisplayID)
	assert.Equal(t, "fleetctl agents list --json", payload.Data.Meta.Sources.Runtime.Command)
	assert.Equal(t, []bool{false}, src.calls)
}

func TestHierarchyHandler_Refresh(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantCalls  []bool
	}{
		{"?refresh=true", http.StatusOK, []bool{true}},
		{"?refresh=0", http.StatusOK, []bool{false}},
		{"?refresh=maybe", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			src := &stubGraphSource{graph: sampleGraph()}
			h := NewHierarchyHandler(src, nil)

			w := httptest.NewRecorder()
			h.HandleHierarchy(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents/hierarchy"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalls, src.calls)
		})
	}
}

func TestHierarchyHandler_MethodNotAllowed(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			src := &stubGraphSource{}
			h := NewHierarchyHandler(src, zap.NewNop())

			w := httptest.NewRecorder()
			h.HandleHierarchy(w, httptest.NewRequest(method, "/api/v1/agents/hierarchy", nil))

			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
			assert.Empty(t, src.calls)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, string(types.ErrMethodNotAllowed), resp.Error.Code)
		})
	}
}

func TestHierarchyHandler_LoadFailure(t *testing.T) {
	src := &stubGraphSource{err: errors.New("context store offline")}
	h := NewHierarchyHandler(src, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleHierarchy(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents/hierarchy", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrHierarchyBuildFailed), resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestHierarchyHandler_TypedErrorPassesThrough(t *testing.T) {
	src := &stubGraphSource{err: types.NewSourceUnavailableError("database", errors.New("dial tcp"))}
	h := NewHierarchyHandler(src, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleHierarchy(w, httptest.NewRequest(http.MethodGet, "/api/v1/agents/hierarchy", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrSourceUnavailable), resp.Error.Code)
	assert.Equal(t, "database", resp.Error.Source)
}
