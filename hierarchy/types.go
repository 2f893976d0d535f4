package hierarchy

// =============================================================================
// 📦 中间记录类型
// =============================================================================

// Capabilities is the set of permissions resolved for an agent.
type Capabilities struct {
	Delegate bool `json:"delegate" yaml:"delegate"`
	Message  bool `json:"message" yaml:"message"`
	Exec     bool `json:"exec" yaml:"exec"`
	Write    bool `json:"write" yaml:"write"`
}

// AgentRelationshipRecord is the shape shared by the configuration-document
// and free-text extractors. ID keeps the declared casing.
type AgentRelationshipRecord struct {
	ID           string       `json:"id"`
	ReportsTo    string       `json:"reportsTo,omitempty"`
	DelegatesTo  []string     `json:"delegatesTo"`
	ReceivesFrom []string     `json:"receivesFrom"`
	Capabilities Capabilities `json:"capabilities"`
}

// ToolOverlayRecord carries an agent's tool allow/deny lists.
// Messaging is only set by the legacy extractor, where agent-to-agent
// messaging is governed by a global toggle instead of the tool lists.
type ToolOverlayRecord struct {
	ID        string   `json:"id"`
	Allow     []string `json:"allow"`
	Deny      []string `json:"deny"`
	Messaging *bool    `json:"messaging,omitempty"`
}

// Overlay is one capability source. MessagingEnabled and MessagingAllow are
// only meaningful for the legacy overlay, where they decide messaging for
// records that carry no Messaging flag of their own.
type Overlay struct {
	Records          []ToolOverlayRecord `json:"records"`
	MessagingEnabled bool                `json:"messagingEnabled,omitempty"`
	MessagingAllow   []string            `json:"messagingAllow,omitempty"`
}

// PersistedAgent is an agent known to the system of record.
type PersistedAgent struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// =============================================================================
// 📡 来源状态
// =============================================================================

// SourceState describes the availability of a file-backed or store-backed source.
type SourceState struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Count     int    `json:"count,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RuntimeSourceState describes the live runtime snapshot query.
type RuntimeSourceState struct {
	Available bool   `json:"available"`
	Command   string `json:"command"`
	Error     string `json:"error,omitempty"`
}

// FallbackSourceState describes the legacy configuration. Used is true only
// when the legacy overlay was consulted because the runtime was unavailable.
type FallbackSourceState struct {
	Available bool   `json:"available"`
	Used      bool   `json:"used"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SourceStatus is supplied by the caller and echoed back unchanged in Meta.
type SourceStatus struct {
	Config    SourceState         `json:"config"`
	Runtime   RuntimeSourceState  `json:"runtime"`
	Fallback  FallbackSourceState `json:"fallback"`
	Workspace SourceState         `json:"workspace"`
	Database  SourceState         `json:"database"`
}

// =============================================================================
// 🕸️ 输出图
// =============================================================================

// NodeKind classifies graph nodes.
type NodeKind string

const (
	NodeAgent    NodeKind = "agent"
	NodeExternal NodeKind = "external"
)

// EdgeType classifies graph edges.
type EdgeType string

const (
	EdgeReportsTo    EdgeType = "reports_to"
	EdgeDelegatesTo  EdgeType = "delegates_to"
	EdgeReceivesFrom EdgeType = "receives_from"
	EdgeCanMessage   EdgeType = "can_message"
)

// Warning codes. They are part of the wire contract and must stay stable.
const (
	WarnSelfLoopDropped           = "self_loop_dropped"
	WarnMessagingTargetsAmbiguous = "messaging_targets_ambiguous"
	WarnDuplicateEdgeMerged       = "duplicate_edge_merged"
	WarnRecordMissingID           = "record_missing_id"
	WarnReportsToConflict         = "reports_to_conflict"
	WarnIdentifierCaseVariant     = "identifier_case_variant"
)

// GraphNode is a vertex keyed by its normalized identifier. External nodes
// carry no capability information.
type GraphNode struct {
	ID           string        `json:"id"`
	DisplayID    string        `json:"displayId"`
	Kind         NodeKind      `json:"kind"`
	Capabilities *Capabilities `json:"capabilities,omitempty"`
}

// GraphEdge is a directed relation between two normalized keys.
type GraphEdge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Type EdgeType `json:"type"`
}

// Warning reports one anomaly or resolution decision.
type Warning struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	RelatedNodeID string `json:"relatedNodeId,omitempty"`
}

// Meta carries diagnostics alongside the graph.
type Meta struct {
	Warnings []Warning    `json:"warnings"`
	Sources  SourceStatus `json:"sources"`
}

// Graph is the reconciled hierarchy.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	Meta  Meta        `json:"meta"`
}

// Node returns the node with the given identifier, matched case-insensitively.
func (g *Graph) Node(id string) (GraphNode, bool) {
	key := NormalizeKey(id)
	for _, n := range g.Nodes {
		if n.ID == key {
			return n, true
		}
	}
	return GraphNode{}, false
}

// EdgesOf returns the edges of type t leaving from, or every type when t is empty.
func (g *Graph) EdgesOf(from string, t EdgeType) []GraphEdge {
	key := NormalizeKey(from)
	var out []GraphEdge
	for _, e := range g.Edges {
		if e.From == key && (t == "" || e.Type == t) {
			out = append(out, e)
		}
	}
	return out
}

// Neighborhood returns the subgraph of edges touching id together with the
// nodes they connect. Meta is carried over unchanged. ok is false when id is
// not a node of g.
func (g *Graph) Neighborhood(id string) (sub Graph, ok bool) {
	center, ok := g.Node(id)
	if !ok {
		return Graph{}, false
	}
	keep := map[string]bool{center.ID: true}
	sub.Edges = []GraphEdge{}
	for _, e := range g.Edges {
		if e.From == center.ID || e.To == center.ID {
			sub.Edges = append(sub.Edges, e)
			keep[e.From] = true
			keep[e.To] = true
		}
	}
	sub.Nodes = make([]GraphNode, 0, len(keep))
	for _, n := range g.Nodes {
		if keep[n.ID] {
			sub.Nodes = append(sub.Nodes, n)
		}
	}
	sub.Meta = g.Meta
	return sub, true
}

// WarningsWithCode returns the warnings carrying code.
func (g *Graph) WarningsWithCode(code string) []Warning {
	var out []Warning
	for _, w := range g.Meta.Warnings {
		if w.Code == code {
			out = append(out, w)
		}
	}
	return out
}

// =============================================================================
// ⚙️ 构建输入
// =============================================================================

// ReportsToPrecedence selects which text source wins when the configuration
// document and the free-text documents name different managers for one agent.
type ReportsToPrecedence string

const (
	// PreferConfigDocument keeps the configuration document's value (default).
	PreferConfigDocument ReportsToPrecedence = "config_document"
	// PreferFreeText keeps the free-text value.
	PreferFreeText ReportsToPrecedence = "free_text"
)

// Options tune conflict resolution. The zero value is valid.
type Options struct {
	ReportsToPrecedence ReportsToPrecedence `json:"reportsToPrecedence,omitempty" yaml:"reports_to_precedence"`
}

// Input is everything Build consumes. Runtime and Legacy are nil when the
// corresponding source could not be read.
type Input struct {
	PersistedAgents []PersistedAgent
	ConfigRecords   []AgentRelationshipRecord
	FreeTextRecords []AgentRelationshipRecord
	Runtime         *Overlay
	Legacy          *Overlay
	Sources         SourceStatus
	Options         Options
}
