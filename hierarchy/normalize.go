package hierarchy

import "strings"

// NormalizeKey returns the comparison key for an agent or actor identifier.
func NormalizeKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// keyTable remembers the first spelling seen for each normalized key and
// every distinct spelling after it.
type keyTable struct {
	display  map[string]string
	variants map[string][]string
}

func newKeyTable() *keyTable {
	return &keyTable{
		display:  make(map[string]string),
		variants: make(map[string][]string),
	}
}

// observe registers a spelling and returns its key ("" for blank input).
func (t *keyTable) observe(id string) string {
	id = strings.TrimSpace(id)
	key := NormalizeKey(id)
	if key == "" {
		return ""
	}
	first, ok := t.display[key]
	if !ok {
		t.display[key] = id
		return key
	}
	if id != first && !containsExact(t.variants[key], id) {
		t.variants[key] = append(t.variants[key], id)
	}
	return key
}

func containsExact(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// uniqueByKey drops blanks and case-insensitive duplicates, keeping the first spelling.
func uniqueByKey(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		key := NormalizeKey(id)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, id)
	}
	return out
}
