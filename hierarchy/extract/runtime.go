package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/agentfleet/hierarchy"
)

// RuntimeTools is an agent's effective tool policy as reported by the runtime.
type RuntimeTools struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// RuntimeAgent is one entry of the runtime agent listing.
type RuntimeAgent struct {
	ID    string       `json:"id"`
	Tools RuntimeTools `json:"tools"`
}

// ParseRuntimeSnapshot decodes the runtime listing. Both a bare array and
// an object with an "agents" array are accepted.
func ParseRuntimeSnapshot(data []byte) ([]RuntimeAgent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("parse runtime snapshot: empty output")
	}

	var agents []RuntimeAgent
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &agents); err != nil {
			return nil, fmt.Errorf("parse runtime snapshot: %w", err)
		}
		return agents, nil
	}

	var wrapped struct {
		Agents []RuntimeAgent `json:"agents"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("parse runtime snapshot: %w", err)
	}
	return wrapped.Agents, nil
}

// ExtractRuntimeOverlay passes tool lists through; entries without an id are dropped.
func ExtractRuntimeOverlay(agents []RuntimeAgent) *hierarchy.Overlay {
	records := make([]hierarchy.ToolOverlayRecord, 0, len(agents))
	for _, a := range agents {
		if strings.TrimSpace(a.ID) == "" {
			continue
		}
		records = append(records, hierarchy.ToolOverlayRecord{
			ID:    a.ID,
			Allow: append([]string{}, a.Tools.Allow...),
			Deny:  append([]string{}, a.Tools.Deny...),
		})
	}
	return &hierarchy.Overlay{Records: records}
}
