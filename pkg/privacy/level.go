// Package privacy implements the privacy filtering engine: the rule store,
// the visibility resolver and the field/span-level privacy filter. Everything
// here is read-only and side-effect free; rule sets are immutable snapshots,
// so the filtering path runs with unlimited parallelism.
package privacy

import (
	"fmt"
)

// Level is a named redaction policy selected per request. Levels are ordered
// for rule thresholds (business_card < professional < public_full < ai_safe)
// but they are NOT a strict accessibility hierarchy: ai_safe intentionally
// exposes more narrative content than public_full while actively stripping
// personally-identifying fragments. Each level carries its own policy; never
// assume monotonicity.
type Level string

const (
	// LevelBusinessCard keeps only core identity fields (name, title,
	// one-line summary). The most restrictive level regardless of rules.
	LevelBusinessCard Level = "business_card"
	// LevelProfessional exposes work-appropriate fields.
	LevelProfessional Level = "professional"
	// LevelPublicFull is the full public rendering of an entry.
	LevelPublicFull Level = "public_full"
	// LevelAISafe is the export for trusted automation: permissive on
	// narrative content, strict on personally-identifying patterns.
	LevelAISafe Level = "ai_safe"
)

// levelRank orders levels for minimum-level rule thresholds only.
var levelRank = map[Level]int{
	LevelBusinessCard: 0,
	LevelProfessional: 1,
	LevelPublicFull:   2,
	LevelAISafe:       3,
}

// ParseLevel validates a level name from a request or rule definition.
// There is no "no filtering" option; requests must name one of the four.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if _, ok := levelRank[l]; !ok {
		return "", fmt.Errorf("unknown privacy level %q", s)
	}
	return l, nil
}

// Rank returns the level's position in the threshold ordering.
func (l Level) Rank() int {
	return levelRank[l]
}

// Valid reports whether l is one of the four recognized levels.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// coreIdentityFields are the metadata fields business_card retains.
var coreIdentityFields = map[string]bool{
	"name":      true,
	"full_name": true,
	"title":     true,
	"summary":   true,
}

// CoreIdentityField reports whether a metadata field survives business_card
// filtering.
func CoreIdentityField(name string) bool {
	return coreIdentityFields[name]
}
