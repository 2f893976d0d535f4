package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentfleet/api"
	"github.com/BaSui01/agentfleet/api/handlers"
	"github.com/BaSui01/agentfleet/config"
	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/internal/metrics"
)

type stubSource struct {
	graph hierarchy.Graph
	err   error
}

func (s stubSource) Graph(context.Context, bool) (hierarchy.Graph, error) {
	return s.graph, s.err
}

func testGraph() hierarchy.Graph {
	return hierarchy.Build(hierarchy.Input{
		ConfigRecords: []hierarchy.AgentRelationshipRecord{
			{ID: "lead", DelegatesTo: []string{"scout"}},
		},
	})
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	return cfg
}

func TestServer_Routes(t *testing.T) {
	cfg := testConfig()
	s := NewServer(cfg, stubSource{graph: testGraph()}, nil, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Handler(context.Background()))
	defer ts.Close()

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz", "/version", HierarchyPath} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"), path)
	}

	resp, err := http.Get(ts.URL + HierarchyPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload api.AgentHierarchyPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Len(t, payload.Data.Nodes, 2)
	assert.Equal(t, []hierarchy.GraphEdge{{From: "lead", To: "scout", Type: hierarchy.EdgeDelegatesTo}}, payload.Data.Edges)
}

func TestServer_HierarchyFailureIsUnavailable(t *testing.T) {
	s := NewServer(testConfig(), stubSource{err: errors.New("sources down")}, nil, nil)
	ts := httptest.NewServer(s.Handler(context.Background()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + HierarchyPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_APIKeyProtectsHierarchyOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKeys = []string{"secret"}
	s := NewServer(cfg, stubSource{graph: testGraph()}, nil, nil)
	ts := httptest.NewServer(s.Handler(context.Background()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + HierarchyPath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+HierarchyPath, nil)
	req.Header.Set("X-API-Key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ReadinessReflectsChecks(t *testing.T) {
	failing := handlers.NewPingCheck("database", func(context.Context) error { return errors.New("down") })
	s := NewServer(testConfig(), stubSource{}, nil, nil, failing)
	ts := httptest.NewServer(s.Handler(context.Background()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "database")
}

func TestServer_RecordsMetrics(t *testing.T) {
	collector := metrics.NewCollector("agentfleet_cmd_test", nil)
	s := NewServer(testConfig(), stubSource{graph: testGraph()}, collector, nil)
	ts := httptest.NewServer(s.Handler(context.Background()))
	defer ts.Close()

	for _, path := range []string{HierarchyPath, "/no/such/route"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "agentfleet_cmd_test_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "path" {
					paths[l.GetValue()] = true
				}
			}
		}
	}
	assert.Equal(t, map[string]bool{HierarchyPath: true, "other": true}, paths)
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := NewServer(testConfig(), stubSource{graph: testGraph()}, nil, zaptest.NewLogger(t))
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	assert.Nil(t, s.metricsManager, "metrics listener is disabled with port 0")

	_, port, err := net.SplitHostPort(s.httpManager.Addr())
	require.NoError(t, err)

	resp, err := http.Get("http://127.0.0.1:" + port + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Wait(ctx))

	s.Shutdown(context.Background())
	assert.False(t, s.httpManager.IsRunning())
}
