package hierarchy

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// 🕸️ 图构建器
// =============================================================================

// Build reconciles every source in the input into one canonical graph.
// It never fails: malformed records and structural anomalies are reported
// as warnings and the rest of the input is still used.
func Build(in Input) Graph {
	b := &builder{
		in:      in,
		keys:    newKeyTable(),
		records: make(map[string]*AgentRelationshipRecord),
		persist: make(map[string]struct{}),
		edgeSet: make(map[edgeKey]struct{}),
	}

	b.collectPersisted()
	b.mergeRecords()
	b.collectTargets()
	chain := newResolverChain(in, b.records)
	b.classify(chain)
	b.emitStructuralEdges()
	b.inferMessaging()
	b.reportCaseVariants()

	return b.graph()
}

type edgeKey struct {
	from, to string
	typ      EdgeType
}

type builder struct {
	in   Input
	keys *keyTable

	records    map[string]*AgentRelationshipRecord
	recordKeys []string
	persist    map[string]struct{}

	nodes    []GraphNode
	caps     map[string]Capabilities
	edges    []GraphEdge
	edgeSet  map[edgeKey]struct{}
	warnings []Warning
}

func (b *builder) warn(code, nodeID, format string, args ...any) {
	b.warnings = append(b.warnings, Warning{
		Code:          code,
		Message:       fmt.Sprintf(format, args...),
		RelatedNodeID: nodeID,
	})
}

// collectPersisted seeds the key table with the system of record first so
// its spelling wins the DisplayID.
func (b *builder) collectPersisted() {
	for _, a := range b.in.PersistedAgents {
		key := b.keys.observe(a.ID)
		if key == "" {
			b.warn(WarnRecordMissingID, "", "persisted agent without id skipped")
			continue
		}
		b.persist[key] = struct{}{}
	}
}

// mergeRecords folds configuration-document and free-text records into one
// record per key. The configuration document takes precedence; free text
// only fills empty fields, except ReportsTo which follows Options.
func (b *builder) mergeRecords() {
	for _, rec := range b.in.ConfigRecords {
		key := b.keys.observe(rec.ID)
		if key == "" {
			b.warn(WarnRecordMissingID, "", "configuration document record without id skipped")
			continue
		}
		if existing, ok := b.records[key]; ok {
			fillGaps(existing, rec)
			continue
		}
		b.addRecord(key, rec)
	}

	for _, rec := range b.in.FreeTextRecords {
		key := b.keys.observe(rec.ID)
		if key == "" {
			b.warn(WarnRecordMissingID, "", "free-text record without id skipped")
			continue
		}
		existing, ok := b.records[key]
		if !ok {
			b.addRecord(key, rec)
			continue
		}
		b.resolveReportsTo(key, existing, rec)
		fillGaps(existing, rec)
	}

	sort.Strings(b.recordKeys)
}

func (b *builder) addRecord(key string, rec AgentRelationshipRecord) {
	cp := rec
	cp.ReportsTo = strings.TrimSpace(rec.ReportsTo)
	cp.DelegatesTo = append([]string(nil), rec.DelegatesTo...)
	cp.ReceivesFrom = append([]string(nil), rec.ReceivesFrom...)
	b.records[key] = &cp
	b.recordKeys = append(b.recordKeys, key)
}

func (b *builder) resolveReportsTo(key string, existing *AgentRelationshipRecord, incoming AgentRelationshipRecord) {
	current := NormalizeKey(existing.ReportsTo)
	proposed := NormalizeKey(incoming.ReportsTo)
	if current == "" || proposed == "" || current == proposed {
		return
	}
	kept := existing.ReportsTo
	if b.in.Options.ReportsToPrecedence == PreferFreeText {
		kept = strings.TrimSpace(incoming.ReportsTo)
		existing.ReportsTo = kept
	}
	b.warn(WarnReportsToConflict, key,
		"agent %q reports to %q in the configuration document but %q in free text; kept %q",
		key, current, proposed, NormalizeKey(kept))
}

// fillGaps copies fields from src into dst only where dst is empty.
func fillGaps(dst *AgentRelationshipRecord, src AgentRelationshipRecord) {
	if strings.TrimSpace(dst.ReportsTo) == "" {
		dst.ReportsTo = strings.TrimSpace(src.ReportsTo)
	}
	if len(dst.DelegatesTo) == 0 {
		dst.DelegatesTo = append([]string(nil), src.DelegatesTo...)
	}
	if len(dst.ReceivesFrom) == 0 {
		dst.ReceivesFrom = append([]string(nil), src.ReceivesFrom...)
	}
}

// collectTargets registers every relationship target so referenced but
// undeclared actors still get a node.
func (b *builder) collectTargets() {
	for _, key := range b.recordKeys {
		rec := b.records[key]
		b.keys.observe(rec.ReportsTo)
		for _, id := range rec.DelegatesTo {
			b.keys.observe(id)
		}
		for _, id := range rec.ReceivesFrom {
			b.keys.observe(id)
		}
	}
}

func (b *builder) classify(chain []capabilityResolver) {
	keys := make([]string, 0, len(b.keys.display))
	for key := range b.keys.display {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	b.caps = make(map[string]Capabilities, len(keys))
	b.nodes = make([]GraphNode, 0, len(keys))
	for _, key := range keys {
		rec := b.records[key]
		_, persisted := b.persist[key]
		node := GraphNode{ID: key, DisplayID: b.keys.display[key], Kind: NodeExternal}
		if rec != nil || persisted || hasActiveOverlay(chain, key) {
			caps, _ := resolve(chain, key, rec)
			node.Kind = NodeAgent
			node.Capabilities = &caps
			b.caps[key] = caps
		}
		b.nodes = append(b.nodes, node)
	}
}

// addEdge applies self-loop removal and deduplication before emitting.
func (b *builder) addEdge(from, target string, typ EdgeType) {
	to := NormalizeKey(target)
	if to == "" {
		return
	}
	if to == from {
		b.warn(WarnSelfLoopDropped, from, "dropped %s self-loop on %q", typ, from)
		return
	}
	k := edgeKey{from: from, to: to, typ: typ}
	if _, dup := b.edgeSet[k]; dup {
		b.warn(WarnDuplicateEdgeMerged, from, "merged duplicate %s edge %q -> %q", typ, from, to)
		return
	}
	b.edgeSet[k] = struct{}{}
	b.edges = append(b.edges, GraphEdge{From: from, To: to, Type: typ})
}

func (b *builder) emitStructuralEdges() {
	for _, key := range b.recordKeys {
		rec := b.records[key]
		b.addEdge(key, rec.ReportsTo, EdgeReportsTo)
		for _, id := range rec.DelegatesTo {
			b.addEdge(key, id, EdgeDelegatesTo)
		}
		for _, id := range rec.ReceivesFrom {
			b.addEdge(key, id, EdgeReceivesFrom)
		}
	}
}

// inferMessaging adds can_message edges toward an agent's structural
// targets. With no structural target it refuses to guess.
func (b *builder) inferMessaging() {
	for _, node := range b.nodes {
		caps, ok := b.caps[node.ID]
		if !ok || !caps.Message {
			continue
		}
		targets := structuralTargets(node.ID, b.records[node.ID])
		if len(targets) == 0 {
			b.warn(WarnMessagingTargetsAmbiguous, node.ID,
				"agent %q can send messages but has no delegates_to/receives_from targets; no can_message edge inferred", node.ID)
			continue
		}
		for _, target := range targets {
			b.addEdge(node.ID, target, EdgeCanMessage)
		}
	}
}

// structuralTargets is the case-insensitive union of DelegatesTo and
// ReceivesFrom, excluding the agent itself.
func structuralTargets(key string, rec *AgentRelationshipRecord) []string {
	if rec == nil {
		return nil
	}
	all := make([]string, 0, len(rec.DelegatesTo)+len(rec.ReceivesFrom))
	all = append(all, rec.DelegatesTo...)
	all = append(all, rec.ReceivesFrom...)

	out := make([]string, 0, len(all))
	for _, id := range uniqueByKey(all) {
		if NormalizeKey(id) != key {
			out = append(out, id)
		}
	}
	return out
}

func (b *builder) reportCaseVariants() {
	for _, node := range b.nodes {
		variants := b.keys.variants[node.ID]
		if len(variants) == 0 {
			continue
		}
		b.warn(WarnIdentifierCaseVariant, node.ID,
			"identifier %q also spelled %s; displaying %q",
			node.ID, quoteAll(variants), node.DisplayID)
	}
}

func quoteAll(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	quoted := make([]string, len(sorted))
	for i, id := range sorted {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return strings.Join(quoted, ", ")
}

// graph sorts every collection so the output depends only on content.
func (b *builder) graph() Graph {
	edges := b.edges
	if edges == nil {
		edges = []GraphEdge{}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Type < edges[j].Type
	})

	warnings := b.warnings
	if warnings == nil {
		warnings = []Warning{}
	}
	sort.SliceStable(warnings, func(i, j int) bool {
		if warnings[i].RelatedNodeID != warnings[j].RelatedNodeID {
			return warnings[i].RelatedNodeID < warnings[j].RelatedNodeID
		}
		if warnings[i].Code != warnings[j].Code {
			return warnings[i].Code < warnings[j].Code
		}
		return warnings[i].Message < warnings[j].Message
	})

	return Graph{
		Nodes: b.nodes,
		Edges: edges,
		Meta: Meta{
			Warnings: warnings,
			Sources:  b.in.Sources,
		},
	}
}
