// Package mcp serves the agent hierarchy over the Model Context Protocol.
//
// The resource agentfleet://hierarchy returns the cached graph; the
// agent_hierarchy tool can force a rebuild and narrow the graph to one
// agent's neighborhood. Both use the same {"data": ...} envelope as the
// HTTP API.
package mcp
