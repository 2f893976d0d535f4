package hierarchy

// capabilityResolver is one step of the capability precedence chain.
// Resolvers are evaluated in slice order; the first available resolver
// that knows the key decides exec/write/message.
type capabilityResolver struct {
	name      string
	available bool
	lookup    func(key string) (Capabilities, bool)
}

const (
	resolverRuntime = "runtime"
	resolverLegacy  = "legacy"
	resolverRecord  = "record"
)

// overlayIndex maps normalized keys to overlay records; the first record for a key wins.
type overlayIndex map[string]ToolOverlayRecord

func indexOverlay(o *Overlay) overlayIndex {
	idx := make(overlayIndex)
	if o == nil {
		return idx
	}
	for _, rec := range o.Records {
		key := NormalizeKey(rec.ID)
		if key == "" {
			continue
		}
		if _, exists := idx[key]; !exists {
			idx[key] = rec
		}
	}
	return idx
}

// indexLegacyOverlay indexes the legacy overlay. Records without their own
// messaging flag take it from the global agent-to-agent toggle.
func indexLegacyOverlay(o *Overlay) overlayIndex {
	idx := indexOverlay(o)
	for key, rec := range idx {
		if rec.Messaging != nil {
			continue
		}
		allowed := o.MessagingEnabled && MatchesID(o.MessagingAllow, rec.ID)
		rec.Messaging = &allowed
		idx[key] = rec
	}
	return idx
}

func (idx overlayIndex) lookup(key string) (Capabilities, bool) {
	rec, ok := idx[key]
	if !ok {
		return Capabilities{}, false
	}
	return overlayCapabilities(rec), true
}

// runtimeActive reports whether the runtime overlay is authoritative.
func runtimeActive(in Input) bool {
	return in.Sources.Runtime.Available && in.Runtime != nil
}

// legacyActive reports whether the legacy overlay stands in for the runtime.
func legacyActive(in Input) bool {
	return !in.Sources.Runtime.Available && in.Sources.Fallback.Available && in.Legacy != nil
}

// newResolverChain builds the fixed precedence list:
// runtime overlay > legacy overlay > record capabilities > all false.
func newResolverChain(in Input, records map[string]*AgentRelationshipRecord) []capabilityResolver {
	runtime := indexOverlay(in.Runtime)
	legacy := indexLegacyOverlay(in.Legacy)
	return []capabilityResolver{
		{name: resolverRuntime, available: runtimeActive(in), lookup: runtime.lookup},
		{name: resolverLegacy, available: legacyActive(in), lookup: legacy.lookup},
		{name: resolverRecord, available: true, lookup: func(key string) (Capabilities, bool) {
			rec, ok := records[key]
			if !ok {
				return Capabilities{}, false
			}
			return rec.Capabilities, true
		}},
	}
}

// resolve returns the capabilities for key and the resolver that decided
// them ("" when the all-false default applied). Delegate always comes from
// the relationship record.
func resolve(chain []capabilityResolver, key string, rec *AgentRelationshipRecord) (Capabilities, string) {
	var delegate bool
	if rec != nil {
		delegate = rec.Capabilities.Delegate
	}
	for _, r := range chain {
		if !r.available {
			continue
		}
		if caps, ok := r.lookup(key); ok {
			caps.Delegate = delegate
			return caps, r.name
		}
	}
	return Capabilities{Delegate: delegate}, ""
}

// hasActiveOverlay reports whether an authoritative overlay carries a record for key.
func hasActiveOverlay(chain []capabilityResolver, key string) bool {
	for _, r := range chain {
		if !r.available || r.name == resolverRecord {
			continue
		}
		if _, ok := r.lookup(key); ok {
			return true
		}
	}
	return false
}
