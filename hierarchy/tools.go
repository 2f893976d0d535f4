package hierarchy

import "strings"

// toolGroups expands the group aliases accepted in allow/deny lists.
var toolGroups = map[string][]string{
	"group:runtime":   {"exec", "bash", "process"},
	"group:fs":        {"read", "write", "edit", "apply_patch"},
	"group:sessions":  {"sessions_list", "sessions_history", "sessions_send", "sessions_spawn"},
	"group:messaging": {"message"},
}

// Tools that grant each overlay-derived capability.
var (
	execTools    = []string{"exec", "bash", "process"}
	writeTools   = []string{"write", "edit", "apply_patch"}
	messageTools = []string{"sessions_send", "message"}
)

// toolPolicy answers whether a tool is usable under an allow/deny pair.
// Deny always wins; an empty allow list permits everything not denied.
type toolPolicy struct {
	allow []string
	deny  []string
}

func newToolPolicy(rec ToolOverlayRecord) toolPolicy {
	return toolPolicy{allow: lowerAll(rec.Allow), deny: lowerAll(rec.Deny)}
}

func (p toolPolicy) permits(tool string) bool {
	tool = strings.ToLower(tool)
	if matchesAny(p.deny, tool) {
		return false
	}
	if len(p.allow) == 0 {
		return true
	}
	return matchesAny(p.allow, tool)
}

func (p toolPolicy) permitsAny(tools []string) bool {
	for _, t := range tools {
		if p.permits(t) {
			return true
		}
	}
	return false
}

// overlayCapabilities derives exec/write/message from a tool overlay record.
// Delegate is left to the caller.
func overlayCapabilities(rec ToolOverlayRecord) Capabilities {
	p := newToolPolicy(rec)
	caps := Capabilities{
		Exec:    p.permitsAny(execTools),
		Write:   p.permitsAny(writeTools),
		Message: p.permitsAny(messageTools),
	}
	if rec.Messaging != nil {
		caps.Message = *rec.Messaging
	}
	return caps
}

func matchesAny(patterns []string, tool string) bool {
	for _, pattern := range patterns {
		if matchTool(pattern, tool) {
			return true
		}
	}
	return false
}

func matchTool(pattern, tool string) bool {
	switch {
	case pattern == "":
		return false
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "group:"):
		for _, member := range toolGroups[pattern] {
			if member == tool {
				return true
			}
		}
		return false
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(tool, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == tool
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MatchesID reports whether id is listed in ids, case-insensitively; "*" matches all.
func MatchesID(ids []string, id string) bool {
	key := NormalizeKey(id)
	if key == "" {
		return false
	}
	for _, candidate := range ids {
		c := NormalizeKey(candidate)
		if c == "*" || c == key {
			return true
		}
	}
	return false
}
