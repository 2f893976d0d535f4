package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/BaSui01/agentfleet/api"
	"github.com/BaSui01/agentfleet/config"
	"github.com/BaSui01/agentfleet/hierarchy"
)

const (
	// HierarchyResourceURI addresses the full hierarchy graph.
	HierarchyResourceURI = "agentfleet://hierarchy"
	// HierarchyToolName is the tool returning the graph or one node's neighborhood.
	HierarchyToolName = "agent_hierarchy"

	mimeJSON = "application/json"
)

// GraphSource yields the reconciled hierarchy. *fleet.Service implements it.
type GraphSource interface {
	Graph(ctx context.Context, refresh bool) (hierarchy.Graph, error)
}

// Handler exposes the hierarchy as an MCP resource and tool.
type Handler struct {
	source GraphSource
	logger *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(source GraphSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{source: source, logger: logger.With(zap.String("component", "mcp"))}
}

// NewServer builds an MCP server with the hierarchy resource and tool registered.
func NewServer(cfg config.MCPConfig, version string, source GraphSource, logger *zap.Logger) *server.MCPServer {
	h := NewHandler(source, logger)
	s := server.NewMCPServer(
		cfg.ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithInstructions(cfg.Instructions),
	)
	s.AddResource(h.HierarchyResource(), h.HandleHierarchyResource)
	s.AddTool(h.HierarchyTool(), h.HandleHierarchyTool)
	return s
}

// ServeStdio serves s over standard input and output until EOF.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// =============================================================================
// 📄 资源
// =============================================================================

// HierarchyResource describes the hierarchy resource.
func (h *Handler) HierarchyResource() mcpgo.Resource {
	return mcpgo.NewResource(
		HierarchyResourceURI,
		"Agent hierarchy",
		mcpgo.WithResourceDescription("Reconciled agent hierarchy graph: nodes, edges and source diagnostics"),
		mcpgo.WithMIMEType(mimeJSON),
	)
}

// HandleHierarchyResource returns the cached graph in the API envelope.
func (h *Handler) HandleHierarchyResource(ctx context.Context, req mcpgo.ReadResourceRequest) ([]mcpgo.ResourceContents, error) {
	data, err := h.payload(ctx, false, "")
	if err != nil {
		return nil, err
	}
	return []mcpgo.ResourceContents{
		mcpgo.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: mimeJSON,
			Text:     string(data),
		},
	}, nil
}

// =============================================================================
// 🔧 工具
// =============================================================================

// HierarchyTool describes the agent_hierarchy tool.
func (h *Handler) HierarchyTool() mcpgo.Tool {
	return mcpgo.NewTool(HierarchyToolName,
		mcpgo.WithDescription(
			"Return the agent hierarchy graph. Pass node to get only the edges touching that agent "+
				"and the agents they connect.",
		),
		mcpgo.WithBoolean("refresh",
			mcpgo.Description("Rebuild from the sources instead of using the cached graph (default: false)"),
		),
		mcpgo.WithString("node",
			mcpgo.Description("Agent id (case-insensitive) to focus on"),
		),
	)
}

// HandleHierarchyTool processes an agent_hierarchy call. Build failures and
// unknown nodes are reported as tool errors.
func (h *Handler) HandleHierarchyTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	refresh := req.GetBool("refresh", false)
	node := strings.TrimSpace(req.GetString("node", ""))

	data, err := h.payload(ctx, refresh, node)
	if err != nil {
		h.logger.Warn("agent_hierarchy failed", zap.Bool("refresh", refresh), zap.String("node", node), zap.Error(err))
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	return mcpgo.NewToolResultText(string(data)), nil
}

func (h *Handler) payload(ctx context.Context, refresh bool, node string) ([]byte, error) {
	payload, err := api.BuildAgentHierarchyAPIPayload(ctx, func(ctx context.Context) (hierarchy.Graph, error) {
		g, err := h.source.Graph(ctx, refresh)
		if err != nil || node == "" {
			return g, err
		}
		sub, ok := g.Neighborhood(node)
		if !ok {
			return hierarchy.Graph{}, fmt.Errorf("unknown agent %q", node)
		}
		return sub, nil
	})
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(payload, "", "  ")
}
