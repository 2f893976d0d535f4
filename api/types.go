package api

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentfleet/hierarchy"
)

// =============================================================================
// 🕸️ Agent 层级图载荷
// =============================================================================

// AgentHierarchyPayload is the response envelope of the hierarchy endpoint.
// @Description Agent 层级图响应结构
type AgentHierarchyPayload struct {
	// 层级图（nodes、edges、meta）
	Data hierarchy.Graph `json:"data"`
}

// GraphFunc produces a hierarchy graph; it is the only suspension point of
// the payload wrapper.
type GraphFunc func(ctx context.Context) (hierarchy.Graph, error)

// BuildAgentHierarchyAPIPayload awaits fn and wraps its graph in the response
// envelope. Nil collections are normalized to empty arrays so the wire shape
// never carries null. It neither caches nor retries.
func BuildAgentHierarchyAPIPayload(ctx context.Context, fn GraphFunc) (AgentHierarchyPayload, error) {
	if fn == nil {
		return AgentHierarchyPayload{}, fmt.Errorf("build hierarchy payload: nil graph function")
	}
	g, err := fn(ctx)
	if err != nil {
		return AgentHierarchyPayload{}, fmt.Errorf("build hierarchy payload: %w", err)
	}
	return AgentHierarchyPayload{Data: normalizeGraph(g)}, nil
}

func normalizeGraph(g hierarchy.Graph) hierarchy.Graph {
	if g.Nodes == nil {
		g.Nodes = []hierarchy.GraphNode{}
	}
	if g.Edges == nil {
		g.Edges = []hierarchy.GraphEdge{}
	}
	if g.Meta.Warnings == nil {
		g.Meta.Warnings = []hierarchy.Warning{}
	}
	return g
}
