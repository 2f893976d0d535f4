package extract

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BaSui01/agentfleet/hierarchy"
)

// Document is one workspace file offered to the free-text extractor.
type Document struct {
	Path    string
	Content string
}

// =============================================================================
// 📝 行规则
// =============================================================================

var (
	nameLine    = regexp.MustCompile(`(?i)^[\s>*_-]*name[*_]*\s*[:：]\s*(.+)$`)
	headingLine = regexp.MustCompile(`^\s*#\s+(.+)$`)
	reportsTo   = regexp.MustCompile(`(?i)\breports?\s+(?:directly\s+)?to\s*[:\-]?\s*(.+)$`)
	delegatesTo = regexp.MustCompile(`(?i)\bdelegat(?:e|es|ing)\s+(?:(?:tasks|work|subtasks)\s+)?to\s*[:\-]?\s*(.+)$`)
	receives    = regexp.MustCompile(`(?i)\breceiv(?:e|es|ing)\s+(?:tasks|work|requests|instructions)\s+from\s*[:\-]?\s*(.+)$`)

	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	capitalized   = regexp.MustCompile(`\b([A-Z][A-Za-z0-9_\-]*)`)
	listSeparator = regexp.MustCompile(`(?i)\s*(?:,|;|/|&|\band\b)\s*`)
)

var (
	genericDocNames = map[string]bool{
		"identity": true, "soul": true, "agents": true, "agent": true, "role": true, "readme": true,
	}
	qualifiers   = map[string]bool{"only": true, "the": true, "agent": true, "agents": true, "team": true}
	placeholders = map[string]bool{
		"none": true, "nobody": true, "n/a": true, "-": true,
		"anyone": true, "anybody": true, "no one": true, "noone": true,
	}
)

// ExtractFreeText parses identity and role write-ups for relationship phrases.
// Documents are read in path order; records for the same identifier are merged
// case-insensitively. A document matching no relationship rule yields nothing.
func ExtractFreeText(docs []Document) []hierarchy.AgentRelationshipRecord {
	sorted := append([]Document(nil), docs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var records []hierarchy.AgentRelationshipRecord
	index := make(map[string]int)
	for _, doc := range sorted {
		rec, ok := parseDocument(doc)
		if !ok {
			continue
		}
		key := hierarchy.NormalizeKey(rec.ID)
		if i, seen := index[key]; seen {
			mergeInto(&records[i], rec)
			continue
		}
		index[key] = len(records)
		records = append(records, rec)
	}
	if records == nil {
		return []hierarchy.AgentRelationshipRecord{}
	}
	return records
}

func parseDocument(doc Document) (hierarchy.AgentRelationshipRecord, bool) {
	rec := hierarchy.AgentRelationshipRecord{DelegatesTo: []string{}, ReceivesFrom: []string{}}
	var name, heading string
	matched := false
	leading := true

	for _, line := range strings.Split(doc.Content, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		first := leading
		leading = false
		if name == "" {
			if m := nameLine.FindStringSubmatch(line); m != nil {
				name = cleanIdentifier(m[1])
				continue
			}
		}
		if first {
			if m := headingLine.FindStringSubmatch(line); m != nil {
				heading = headingIdentifier(m[1], doc.Path)
				continue
			}
		}
		if m := reportsTo.FindStringSubmatch(line); m != nil && rec.ReportsTo == "" {
			if target := firstName(m[1]); target != "" {
				rec.ReportsTo = target
				matched = true
			}
		}
		if m := delegatesTo.FindStringSubmatch(line); m != nil {
			if targets := splitTargets(m[1]); len(targets) > 0 {
				rec.DelegatesTo = unionIDs(rec.DelegatesTo, targets)
				matched = true
			}
		}
		if m := receives.FindStringSubmatch(line); m != nil {
			if sources := splitTargets(m[1]); len(sources) > 0 {
				rec.ReceivesFrom = unionIDs(rec.ReceivesFrom, sources)
				matched = true
			}
		}
	}
	if !matched {
		return rec, false
	}

	for _, candidate := range []string{name, heading, identifierFromPath(doc.Path)} {
		if candidate != "" {
			rec.ID = candidate
			return rec, true
		}
	}
	return rec, false
}

// identifierFromPath uses the file stem, or the parent directory when the
// file name is generic. A "workspace-" directory prefix is stripped.
func identifierFromPath(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem != "" && !genericDocNames[strings.ToLower(stem)] {
		return stem
	}
	dir := filepath.Base(filepath.Dir(path))
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return strings.TrimPrefix(dir, "workspace-")
}

// headingIdentifier returns the identifier named by the leading heading, or
// "" when the heading only names the document itself, as in
// "# SOUL.md - Who You Are".
func headingIdentifier(text, path string) string {
	id := cleanIdentifier(text)
	if id == "" {
		return ""
	}
	lower := strings.ToLower(id)
	if genericDocNames[strings.TrimSuffix(lower, strings.ToLower(filepath.Ext(lower)))] {
		return ""
	}
	if path != "" {
		base := strings.ToLower(filepath.Base(path))
		if lower == base || lower == strings.TrimSuffix(base, filepath.Ext(base)) {
			return ""
		}
	}
	return id
}

// cleanIdentifier strips markdown emphasis, cuts descriptive suffixes and
// keeps the first word.
func cleanIdentifier(s string) string {
	s = parenthetical.ReplaceAllString(s, " ")
	s = strings.NewReplacer("*", "", "`", "", "\"", "", "'", "").Replace(s)
	for _, sep := range []string{" — ", " – ", " - ", ":", ","} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".!?;")
}

// firstName picks the first capitalized token of the parenthetical-free
// remainder, falling back to the first non-qualifier word.
func firstName(rest string) string {
	rest = parenthetical.ReplaceAllString(rest, " ")
	rest = strings.NewReplacer("*", "", "`", "").Replace(rest)
	if isPlaceholder(rest) || startsWithPlaceholder(rest) {
		return ""
	}
	if m := capitalized.FindStringSubmatch(rest); m != nil && !qualifiers[strings.ToLower(m[1])] {
		if placeholders[strings.ToLower(m[1])] {
			return ""
		}
		return strings.Trim(m[1], "-")
	}
	for _, word := range strings.Fields(rest) {
		word = strings.Trim(word, ".,;:!?\"'")
		lower := strings.ToLower(word)
		if word == "" || qualifiers[lower] {
			continue
		}
		if placeholders[lower] {
			return ""
		}
		return word
	}
	return ""
}

func splitTargets(rest string) []string {
	rest = parenthetical.ReplaceAllString(rest, " ")
	rest = strings.NewReplacer("*", "", "`", "").Replace(rest)
	rest = strings.TrimRight(strings.TrimSpace(rest), ".!")
	if isPlaceholder(rest) {
		return nil
	}

	var out []string
	for _, part := range listSeparator.Split(rest, -1) {
		if target := cleanTarget(part); target != "" {
			out = append(out, target)
		}
	}
	return out
}

func isPlaceholder(s string) bool {
	return placeholders[strings.ToLower(strings.Trim(strings.TrimSpace(s), ".!"))]
}

// startsWithPlaceholder catches "anyone (top of the tree)" and "no one else".
func startsWithPlaceholder(s string) bool {
	fields := strings.Fields(strings.ToLower(s))
	for n := 2; n >= 1; n-- {
		if len(fields) < n {
			continue
		}
		if placeholders[strings.Trim(strings.Join(fields[:n], " "), ".,;:!?\"'")] {
			return true
		}
	}
	return false
}

// cleanTarget keeps the whole list entry with qualifiers dropped and
// whitespace collapsed, so "the Research Lead agent" becomes "Research Lead".
func cleanTarget(part string) string {
	var words []string
	for _, word := range strings.Fields(part) {
		word = strings.Trim(word, ".,;:!?\"'")
		if word == "" || qualifiers[strings.ToLower(word)] {
			continue
		}
		words = append(words, word)
	}
	target := strings.Join(words, " ")
	if target == "" || isPlaceholder(target) {
		return ""
	}
	return target
}

// unionIDs appends the ids in add that base does not already hold, case-insensitively.
func unionIDs(base, add []string) []string {
	seen := make(map[string]bool, len(base))
	for _, id := range base {
		seen[hierarchy.NormalizeKey(id)] = true
	}
	for _, id := range add {
		key := hierarchy.NormalizeKey(id)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		base = append(base, id)
	}
	return base
}

func mergeInto(dst *hierarchy.AgentRelationshipRecord, src hierarchy.AgentRelationshipRecord) {
	if dst.ReportsTo == "" {
		dst.ReportsTo = src.ReportsTo
	}
	dst.DelegatesTo = unionIDs(dst.DelegatesTo, src.DelegatesTo)
	dst.ReceivesFrom = unionIDs(dst.ReceivesFrom, src.ReceivesFrom)
}
