package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentfleet/api"
	"github.com/BaSui01/agentfleet/config"
	"github.com/BaSui01/agentfleet/hierarchy"
)

type stubSource struct {
	graph    hierarchy.Graph
	err      error
	refreshes []bool
}

func (s *stubSource) Graph(_ context.Context, refresh bool) (hierarchy.Graph, error) {
	s.refreshes = append(s.refreshes, refresh)
	return s.graph, s.err
}

func sampleGraph() hierarchy.Graph {
	return hierarchy.Build(hierarchy.Input{
		ConfigRecords: []hierarchy.AgentRelationshipRecord{
			{ID: "Lead", DelegatesTo: []string{"scout", "forge"}},
			{ID: "scout", ReportsTo: "lead"},
		},
	})
}

func callReq(args map[string]interface{}) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = HierarchyToolName
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, r *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotNil(t, r)
	for _, c := range r.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

func decode(t *testing.T, text string) api.AgentHierarchyPayload {
	t.Helper()
	var p api.AgentHierarchyPayload
	require.NoError(t, json.Unmarshal([]byte(text), &p))
	return p
}

func TestHierarchyTool_Definition(t *testing.T) {
	def := NewHandler(&stubSource{}, nil).HierarchyTool()
	assert.Equal(t, HierarchyToolName, def.Name)
	assert.Contains(t, def.InputSchema.Properties, "refresh")
	assert.Contains(t, def.InputSchema.Properties, "node")
}

func TestHierarchyTool_FullGraph(t *testing.T) {
	src := &stubSource{graph: sampleGraph()}
	h := NewHandler(src, zaptest.NewLogger(t))

	res, err := h.HandleHierarchyTool(context.Background(), callReq(nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	p := decode(t, resultText(t, res))
	assert.Len(t, p.Data.Nodes, 3)
	assert.Equal(t, []bool{false}, src.refreshes)
}

func TestHierarchyTool_RefreshAndNodeFilter(t *testing.T) {
	src := &stubSource{graph: sampleGraph()}
	h := NewHandler(src, nil)

	res, err := h.HandleHierarchyTool(context.Background(), callReq(map[string]interface{}{
		"refresh": true,
		"node":    " FORGE ",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	p := decode(t, resultText(t, res))
	assert.Equal(t, []bool{true}, src.refreshes)
	require.Len(t, p.Data.Edges, 1)
	assert.Equal(t, hierarchy.GraphEdge{From: "lead", To: "forge", Type: hierarchy.EdgeDelegatesTo}, p.Data.Edges[0])
	assert.Len(t, p.Data.Nodes, 2)
}

func TestHierarchyTool_UnknownNode(t *testing.T) {
	h := NewHandler(&stubSource{graph: sampleGraph()}, nil)

	res, err := h.HandleHierarchyTool(context.Background(), callReq(map[string]interface{}{"node": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "unknown agent")
}

func TestHierarchyTool_SourceError(t *testing.T) {
	h := NewHandler(&stubSource{err: errors.New("sources down")}, nil)

	res, err := h.HandleHierarchyTool(context.Background(), callReq(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "sources down")
}

func TestHierarchyResource(t *testing.T) {
	src := &stubSource{graph: hierarchy.Graph{}}
	h := NewHandler(src, nil)

	res := h.HierarchyResource()
	assert.Equal(t, HierarchyResourceURI, res.URI)
	assert.Equal(t, "application/json", res.MIMEType)

	req := mcpgo.ReadResourceRequest{}
	req.Params.URI = HierarchyResourceURI
	contents, err := h.HandleHierarchyResource(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcpgo.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, HierarchyResourceURI, text.URI)
	assert.JSONEq(t, `{"data":{"nodes":[],"edges":[],"meta":{"warnings":[],"sources":{
		"config":{"available":false},"runtime":{"available":false,"command":""},
		"fallback":{"available":false,"used":false},"workspace":{"available":false},
		"database":{"available":false}}}}}`, text.Text)
	assert.Equal(t, []bool{false}, src.refreshes)
}

func TestHierarchyResource_Error(t *testing.T) {
	h := NewHandler(&stubSource{err: errors.New("boom")}, nil)
	req := mcpgo.ReadResourceRequest{}
	req.Params.URI = HierarchyResourceURI
	_, err := h.HandleHierarchyResource(context.Background(), req)
	assert.ErrorContains(t, err, "boom")
}

func TestNewServer_RegistersToolAndResource(t *testing.T) {
	s := NewServer(config.DefaultMCPConfig(), "test", &stubSource{graph: sampleGraph()}, nil)
	ctx := context.Background()

	for _, msg := range []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`,
	} {
		require.NotNil(t, s.HandleMessage(ctx, json.RawMessage(msg)))
	}

	tools, err := json.Marshal(s.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)))
	require.NoError(t, err)
	assert.Contains(t, string(tools), HierarchyToolName)

	resources, err := json.Marshal(s.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`)))
	require.NoError(t, err)
	assert.Contains(t, string(resources), HierarchyResourceURI)
}
