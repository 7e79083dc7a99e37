package privacy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/personakit/persona-engine/pkg/models"
)

// RedactionMarker replaces redacted spans in content text. It is a fixed
// string so that filtering the same entry twice at the same level is
// byte-identical (idempotence) and so output stays cacheable.
const RedactionMarker = "[REDACTED]"

// contentFieldName is the pseudo field name content text is evaluated under.
const contentFieldName = "content"

// FilteredEntry is the level-appropriate view of an entry. Metadata fields a
// firing rule forbids are omitted entirely; content matches are replaced
// span-by-span with the redaction marker.
type FilteredEntry struct {
	ID           uuid.UUID         `json:"id"`
	Owner        string            `json:"owner"`
	EndpointKind string            `json:"endpoint_kind"`
	Visibility   models.Visibility `json:"visibility"`
	Level        Level             `json:"level"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata"`
}

// FilterEntry transforms an entry into its view at the requested level using
// the given rule snapshot. The visibility resolver must already have admitted
// the entry; this function only applies field-level policy.
//
// The output is deterministic: the same (entry, level, rule set) always
// yields an identical result. Rule evaluation is commutative: spans are
// collected from every firing rule first, then masked in one pass, so rule
// order never changes the redacted set.
func FilterEntry(entry *models.Entry, level Level, rules *RuleSet) (*FilteredEntry, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("unknown privacy level %q", level)
	}
	if rules == nil {
		return nil, fmt.Errorf("nil rule set")
	}

	out := &FilteredEntry{
		ID:           entry.ID,
		Owner:        entry.Owner,
		EndpointKind: entry.EndpointKind,
		Visibility:   entry.Visibility,
		Level:        level,
		Metadata:     make(map[string]string, len(entry.Metadata)),
	}

	// Metadata is all-or-nothing per field: a firing rule the level does not
	// clear drops the whole field.
	keys := make([]string, 0, len(entry.Metadata))
	for k := range entry.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if level == LevelBusinessCard && !CoreIdentityField(key) {
			continue
		}
		if metadataFieldAllowed(key, entry.Metadata[key], level, rules) {
			out.Metadata[key] = entry.Metadata[key]
		}
	}

	// business_card carries no narrative body; content is not core identity.
	if level == LevelBusinessCard {
		out.Content = ""
		return out, nil
	}

	out.Content = filterContent(entry.Content, level, rules)
	return out, nil
}

// metadataFieldAllowed evaluates every rule governing the field and reports
// whether the field survives at the requested level.
func metadataFieldAllowed(field, value string, level Level, rules *RuleSet) bool {
	for _, rule := range rules.RulesForField(field) {
		if rule.FailClosed() {
			if level.Rank() < LevelAISafe.Rank() {
				return false
			}
			continue
		}
		spans, _ := rule.matchSpans(value, level)
		if len(spans) > 0 {
			return false
		}
	}
	return true
}

// filterContent applies span-level redaction to free text, one paragraph-like
// unit at a time.
func filterContent(content string, level Level, rules *RuleSet) string {
	if content == "" {
		return ""
	}

	applicable := rules.RulesForField(contentFieldName)
	if len(applicable) == 0 {
		return content
	}

	paragraphs := strings.Split(content, "\n\n")
	for i, para := range paragraphs {
		paragraphs[i] = redactParagraph(para, level, applicable)
	}
	return strings.Join(paragraphs, "\n\n")
}

func redactParagraph(para string, level Level, rules []*CompiledRule) string {
	if para == "" {
		return para
	}

	var spans [][]int
	for _, rule := range rules {
		ruleSpans, maskAll := rule.matchSpans(para, level)
		if maskAll {
			// A fail-closed rule has no span to point at; mask the whole
			// paragraph unit rather than risk leaking the match.
			return RedactionMarker
		}
		spans = append(spans, ruleSpans...)
	}
	if len(spans) == 0 {
		return para
	}

	return maskSpans(para, spans)
}

// maskSpans replaces the union of the given spans with the redaction marker.
// Overlapping and adjacent spans are merged first so the result is
// independent of the order rules were evaluated in.
func maskSpans(s string, spans [][]int) string {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i][0] != spans[j][0] {
			return spans[i][0] < spans[j][0]
		}
		return spans[i][1] < spans[j][1]
	})

	merged := make([][]int, 0, len(spans))
	for _, sp := range spans {
		if n := len(merged); n > 0 && sp[0] <= merged[n-1][1] {
			if sp[1] > merged[n-1][1] {
				merged[n-1][1] = sp[1]
			}
			continue
		}
		merged = append(merged, []int{sp[0], sp[1]})
	}

	var b strings.Builder
	last := 0
	for _, sp := range merged {
		b.WriteString(s[last:sp[0]])
		b.WriteString(RedactionMarker)
		last = sp[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
