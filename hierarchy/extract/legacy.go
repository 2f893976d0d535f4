package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/agentfleet/hierarchy"
)

// LegacyConfig is the subset of the legacy JSON configuration the overlay needs.
// List entries stay raw so one malformed entry does not reject the file.
type LegacyConfig struct {
	Tools struct {
		AgentToAgent struct {
			Enabled bool     `json:"enabled"`
			Allow   []string `json:"allow"`
		} `json:"agentToAgent"`
	} `json:"tools"`
	Agents struct {
		List []json.RawMessage `json:"list"`
	} `json:"agents"`
}

type legacyAgent struct {
	ID    string       `json:"id"`
	Tools RuntimeTools `json:"tools"`
}

// ParseLegacyConfig decodes the legacy configuration file.
func ParseLegacyConfig(data []byte) (LegacyConfig, error) {
	var cfg LegacyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return LegacyConfig{}, fmt.Errorf("parse legacy config: %w", err)
	}
	return cfg, nil
}

// ExtractLegacyOverlay emits one record per well-formed listed agent. Messaging
// is governed by the global agent-to-agent toggle; the per-agent tool lists
// only decide exec and write.
func ExtractLegacyOverlay(cfg LegacyConfig) *hierarchy.Overlay {
	a2a := cfg.Tools.AgentToAgent
	records := make([]hierarchy.ToolOverlayRecord, 0, len(cfg.Agents.List))
	for _, raw := range cfg.Agents.List {
		var entry legacyAgent
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if strings.TrimSpace(entry.ID) == "" {
			continue
		}
		messaging := a2a.Enabled && hierarchy.MatchesID(a2a.Allow, entry.ID)
		records = append(records, hierarchy.ToolOverlayRecord{
			ID:        entry.ID,
			Allow:     append([]string{}, entry.Tools.Allow...),
			Deny:      append([]string{}, entry.Tools.Deny...),
			Messaging: &messaging,
		})
	}
	return &hierarchy.Overlay{
		Records:          records,
		MessagingEnabled: a2a.Enabled,
		MessagingAllow:   append([]string{}, a2a.Allow...),
	}
}
