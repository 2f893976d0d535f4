// Package api defines the HTTP wire contract of the AgentFleet service.
//
// # API Overview
//
// AgentFleet exposes a read-only RESTful API for:
//   - The reconciled agent hierarchy graph (nodes, edges, warnings, source status)
//   - Health monitoring and version information
//
// Prometheus metrics are served on a separate port.
//
// # Endpoints
//
//	GET /api/v1/agents/hierarchy[?refresh=true]
//	GET /health, /healthz, /ready, /version
//
// # Authentication
//
// When API keys are configured, requests must carry the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// When JWT auth is enabled, an HS256 bearer token is required as well:
//
//	Authorization: Bearer <token>
//
// # Envelope
//
// The hierarchy endpoint answers with AgentHierarchyPayload, a {"data": graph}
// envelope whose arrays are never null. Errors use the handlers.Response shape.
package api
