package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentfleet/api"
	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/types"
)

// storeConfig writes a service config backed by a file sqlite store.
func storeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.yaml")
	writeFile(t, path, "database:\n  enabled: true\n  driver: sqlite\n  name: "+
		filepath.Join(dir, "fleet.db")+"\nlog:\n  level: error\n")
	return path
}

func TestRunAgents_ImportListDelete(t *testing.T) {
	cfg := storeConfig(t)
	file := filepath.Join(t.TempDir(), "agents.yaml")
	writeFile(t, file, `
agents:
  - id: Archivist
    name: Archivist
    status: active
  - id: scout
`)

	var out bytes.Buffer
	require.NoError(t, runAgents([]string{"--config", cfg, "import", file}, nil, &out))
	assert.Equal(t, "imported 2 agents\n", out.String())

	out.Reset()
	require.NoError(t, runAgents([]string{"--config", cfg, "import", "-"}, strings.NewReader(`[{"id": "forge", "status": "idle"}]`), &out))
	assert.Equal(t, "imported 1 agents\n", out.String())

	out.Reset()
	require.NoError(t, runAgents([]string{"--config", cfg, "list"}, nil, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"ID", "NAME", "STATUS"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"Archivist", "Archivist", "active"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"forge", "idle"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"scout"}, strings.Fields(lines[3]))

	// 导入的 agent 成为层级图节点
	out.Reset()
	require.NoError(t, runGraph([]string{"--config", cfg}, &out))
	var payload api.AgentHierarchyPayload
	require.NoError(t, json.Unmarshal(out.Bytes(), &payload))
	for _, id := range []string{"archivist", "forge", "scout"} {
		node, ok := payload.Data.Node(id)
		require.True(t, ok, id)
		assert.Equal(t, hierarchy.NodeAgent, node.Kind)
	}

	out.Reset()
	require.NoError(t, runAgents([]string{"--config", cfg, "delete", "scout", "unknown"}, nil, &out))
	assert.Equal(t, "deleted 2 agents\n", out.String())

	out.Reset()
	require.NoError(t, runAgents([]string{"--config", cfg, "list"}, nil, &out))
	assert.NotContains(t, out.String(), "scout")
	assert.Contains(t, out.String(), "forge")
}

func TestRunAgents_Errors(t *testing.T) {
	cfg := storeConfig(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing action", []string{"--config", cfg}, "missing action"},
		{"unknown action", []string{"--config", cfg, "rename"}, `unknown action "rename"`},
		{"import without file", []string{"--config", cfg, "import"}, "expected one file"},
		{"delete without id", []string{"--config", cfg, "delete"}, "at least one agent id"},
		{"missing file", []string{"--config", cfg, "import", filepath.Join(t.TempDir(), "none.yaml")}, "read agents file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runAgents(tt.args, nil, &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunAgents_StoreDisabled(t *testing.T) {
	err := runAgents([]string{"--config", fleetConfig(t), "list"}, nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, types.ErrStoreUnavailable, types.GetErrorCode(err))
}

func TestRunAgents_BlankIDRejected(t *testing.T) {
	err := runAgents([]string{"--config", storeConfig(t), "import", "-"}, strings.NewReader("- id: ' '\n"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestParseAgentsFile(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []hierarchy.PersistedAgent
	}{
		{"list", "- id: a\n  name: Alpha\n- id: b\n", []hierarchy.PersistedAgent{{ID: "a", Name: "Alpha"}, {ID: "b"}}},
		{"mapping", "agents:\n  - id: a\n    status: active\n", []hierarchy.PersistedAgent{{ID: "a", Status: "active"}}},
		{"json", `{"agents": [{"id": "a"}]}`, []hierarchy.PersistedAgent{{ID: "a"}}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAgentsFile([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseAgentsFile([]byte("agents: [unclosed"))
	assert.Error(t, err)
}
