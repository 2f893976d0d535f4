package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentfleet/api"
	"github.com/BaSui01/agentfleet/api/handlers"
	"github.com/BaSui01/agentfleet/config"
	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/internal/cache"
	"github.com/BaSui01/agentfleet/internal/database"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// fleetConfig writes a service config whose only source is a configuration document.
func fleetConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	agents := filepath.Join(dir, "agents.yaml")
	writeFile(t, agents, `
agents:
  Lead:
    delegates_to: [scout, forge]
  scout:
    reports_to: lead
`)
	path := filepath.Join(dir, "fleet.yaml")
	writeFile(t, path, "sources:\n  config_path: "+agents+"\nlog:\n  level: error\n")
	return path
}

func TestRunGraph(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runGraph([]string{"--config", fleetConfig(t), "--pretty"}, &out))

	assert.Contains(t, out.String(), "\n  \"data\"", "pretty output is indented")

	var payload api.AgentHierarchyPayload
	require.NoError(t, json.Unmarshal(out.Bytes(), &payload))

	g := payload.Data
	assert.Len(t, g.Nodes, 3)
	lead, ok := g.Node("lead")
	require.True(t, ok)
	assert.Equal(t, "Lead", lead.DisplayID)
	assert.Len(t, g.EdgesOf("lead", hierarchy.EdgeDelegatesTo), 2)
	assert.Len(t, g.EdgesOf("scout", hierarchy.EdgeReportsTo), 1)

	assert.True(t, g.Meta.Sources.Config.Available)
	assert.False(t, g.Meta.Sources.Runtime.Available)
	assert.False(t, g.Meta.Sources.Fallback.Used)
}

func TestRunGraph_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	writeFile(t, path, "hierarchy:\n  reports_to_precedence: loudest\n")

	err := runGraph([]string{"--config", path}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reports_to_precedence")
}

func TestWritePayload_Compact(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writePayload(&out, api.AgentHierarchyPayload{Data: hierarchy.Build(hierarchy.Input{})}, false))
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("\n")))
}

func TestNewApp_DisabledBackends(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sources.Watch = true
	cfg.Sources.WorkspaceRoot = t.TempDir()

	app, err := newApp(context.Background(), cfg, zaptest.NewLogger(t), appOptions{watch: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.Nil(t, app.pool)
	assert.Nil(t, app.cache)
	assert.Nil(t, app.collector)
	assert.NotNil(t, app.watcher)
	assert.Empty(t, app.HealthChecks())

	g, err := app.service.Graph(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)
	assert.Equal(t, "not configured", g.Meta.Sources.Config.Error)
}

func TestNewApp_SQLiteStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Enabled = true
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = ":memory:"

	app, err := newApp(context.Background(), cfg, zap.NewNop(), appOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.NotNil(t, app.store)
	require.NoError(t, app.store.Save(context.Background(), hierarchy.PersistedAgent{ID: "Archivist", Name: "Archivist"}))
	assert.Len(t, app.HealthChecks(), 1)

	health := handlers.NewHealthHandler(nil)
	for _, check := range app.HealthChecks() {
		health.RegisterCheck(check)
	}
	ready := health.Evaluate(context.Background())
	assert.Equal(t, "healthy", ready.Status)
	assert.IsType(t, database.PoolStats{}, ready.Checks["database"].Details)

	g, err := app.service.Graph(context.Background(), true)
	require.NoError(t, err)
	node, ok := g.Node("archivist")
	require.True(t, ok)
	assert.Equal(t, hierarchy.NodeAgent, node.Kind)
	assert.True(t, g.Meta.Sources.Database.Available)
}

func TestNewApp_CacheReadinessDetails(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = mr.Addr()

	app, err := newApp(context.Background(), cfg, zap.NewNop(), appOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	require.NotNil(t, app.cache)

	_, err = app.service.Graph(context.Background(), false)
	require.NoError(t, err)

	checks := app.HealthChecks()
	require.Len(t, checks, 1)
	require.Equal(t, "cache", checks[0].Name())
	require.NoError(t, checks[0].Check(context.Background()))

	details, ok := checks[0].(handlers.DetailedCheck).Details(context.Background()).(cacheStatus)
	require.True(t, ok)
	assert.Equal(t, cache.Stats{Hits: 0, Misses: 1}, details.Stats)
	assert.Equal(t, "30s", details.GraphTTL)
}

func TestNewApp_UnreachableCacheIsSkipped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = "127.0.0.1:1"

	app, err := newApp(context.Background(), cfg, zap.NewNop(), appOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	assert.Nil(t, app.cache)
}

func TestCheckHealth(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
	}))
	defer ok.Close()

	var out bytes.Buffer
	require.NoError(t, checkHealth(ok.URL, time.Second, false, &out))
	assert.Equal(t, "OK\n", out.String())

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	err := checkHealth(down.URL, time.Second, false, &bytes.Buffer{})
	assert.ErrorContains(t, err, "status 503")
}

func TestCheckHealth_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	assert.Error(t, checkHealth(srv.URL, time.Second, false, &bytes.Buffer{}), "self-signed certificate is rejected")
	assert.NoError(t, checkHealth(srv.URL, time.Second, true, &bytes.Buffer{}))
}

func TestInitLogger(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	fallback := initLogger(config.LogConfig{Level: "chatty"})
	assert.True(t, fallback.Core().Enabled(zap.InfoLevel))
	assert.False(t, fallback.Core().Enabled(zap.DebugLevel))
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	printVersion(&out)
	assert.Contains(t, out.String(), "AgentFleet "+Version)
	assert.Contains(t, out.String(), "Git Commit")
}
