package extract

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentfleet/hierarchy"
)

// ConfigDocument is the parsed configuration document, keyed by agent id.
// Values are left untyped so malformed entries can be skipped one by one.
type ConfigDocument map[string]any

// ParseConfigDocument decodes a YAML or JSON configuration document.
// A top-level "agents" mapping is descended into.
func ParseConfigDocument(data []byte) (ConfigDocument, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse configuration document: %w", err)
	}
	if raw == nil {
		return ConfigDocument{}, nil
	}
	if nested, ok := asMap(raw["agents"]); ok {
		return ConfigDocument(nested), nil
	}
	return ConfigDocument(raw), nil
}

// ExtractConfigDocument emits one record per mapping-valued entry, in key order.
func ExtractConfigDocument(doc ConfigDocument) []hierarchy.AgentRelationshipRecord {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]hierarchy.AgentRelationshipRecord, 0, len(keys))
	for _, id := range keys {
		entry, ok := asMap(doc[id])
		if !ok || strings.TrimSpace(id) == "" {
			continue
		}
		perms, _ := asMap(entry["permissions"])
		records = append(records, hierarchy.AgentRelationshipRecord{
			ID:           id,
			ReportsTo:    asString(entry["reports_to"]),
			DelegatesTo:  asStringList(entry["delegates_to"]),
			ReceivesFrom: asStringList(entry["receives_from"]),
			Capabilities: hierarchy.Capabilities{
				Delegate: asBool(perms["can_delegate"]),
				Message:  asBool(perms["can_send_messages"]),
				Exec:     asBool(perms["can_execute_code"]),
				Write:    asBool(perms["can_modify_files"]),
			},
		})
	}
	return records
}

// asMap accepts both decoder shapes: string-keyed maps and the generic
// map yaml produces for non-string keys.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asStringList coerces a string or list of strings to a slice; anything
// else becomes empty.
func asStringList(v any) []string {
	out := []string{}
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range val {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range val {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
