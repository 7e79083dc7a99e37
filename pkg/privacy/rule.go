package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/personakit/persona-engine/pkg/apperrors"
)

// RuleDefinition is one tagged rule record from the rule store's backing
// configuration. Rules are data-driven: patterns live in config, not code.
type RuleDefinition struct {
	// Name identifies the rule in logs and fingerprints.
	Name string `yaml:"name"`
	// FieldPattern is a regular expression matched against field names.
	FieldPattern string `yaml:"field_pattern"`
	// ContentPattern is a regular expression matched against field content.
	ContentPattern string `yaml:"content_pattern"`
	// MinLevel is the minimum requested level at which the matched content
	// may be shown. Requests below it get the match redacted.
	MinLevel string `yaml:"min_level"`
	// PII marks patterns categorized as personally identifying. ai_safe
	// strips these even when MinLevel would otherwise allow them.
	PII bool `yaml:"pii"`
}

// CompiledRule is an immutable, ready-to-evaluate privacy rule.
//
// A rule whose definition failed to compile is kept in fail-closed form: it
// fires unconditionally on the fields it governs and redacts at every level
// below ai_safe. A broken rule must never silently leak data.
type CompiledRule struct {
	Name     string
	MinLevel Level
	PII      bool

	fieldRe    *regexp.Regexp // nil in fail-closed form: governs all fields
	contentRe  *regexp.Regexp // nil in fail-closed form: fires on any content
	failClosed bool
}

// FailClosed reports whether the rule is operating in fail-closed form.
func (r *CompiledRule) FailClosed() bool {
	return r.failClosed
}

// AppliesTo reports whether the rule governs the named field.
func (r *CompiledRule) AppliesTo(field string) bool {
	if r.fieldRe == nil {
		return r.failClosed
	}
	return r.fieldRe.MatchString(field)
}

// matchSpans returns the content spans the rule redacts at the requested
// level, and whether the whole field must be masked (fail-closed form has no
// spans to point at).
func (r *CompiledRule) matchSpans(content string, level Level) (spans [][]int, maskAll bool) {
	if r.failClosed {
		// Broken rules redact everything below ai_safe.
		if level.Rank() < LevelAISafe.Rank() {
			return nil, true
		}
		return nil, false
	}

	redacts := level.Rank() < r.MinLevel.Rank() || (r.PII && level == LevelAISafe)
	if !redacts {
		return nil, false
	}
	return r.contentRe.FindAllStringIndex(content, -1), false
}

// ruleFile is the YAML document shape of the rule store's backing file.
type ruleFile struct {
	Rules []RuleDefinition `yaml:"rules"`
}

// RuleSet is an immutable snapshot of compiled privacy rules plus a
// fingerprint of their definitions. Reloading produces a new snapshot; a
// RuleSet is never mutated after construction, so concurrent readers never
// observe a half-updated rule set.
type RuleSet struct {
	rules       []*CompiledRule
	fingerprint string
}

// LoadRules builds a rule set from the seed rules plus the YAML file at path.
// An empty path loads seed rules only, keeping the system safe-by-default on
// first run with zero configuration.
//
// Individual rules that reference an invalid level name or an unparsable
// regex are kept in fail-closed form with a logged warning; only an unreadable
// or unparsable file aborts the load (availability over completeness, but a
// broken rule still redacts).
func LoadRules(path string, logger *zap.Logger) (*RuleSet, error) {
	defs := append([]RuleDefinition(nil), seedRules...)

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read rule file %s: %v", apperrors.ErrConfig, path, err)
		}
		var f ruleFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: parse rule file %s: %v", apperrors.ErrConfig, path, err)
		}
		defs = append(defs, f.Rules...)
	}

	return CompileRules(defs, logger), nil
}

// CompileRules compiles rule definitions into an immutable snapshot.
func CompileRules(defs []RuleDefinition, logger *zap.Logger) *RuleSet {
	rs := &RuleSet{
		rules:       make([]*CompiledRule, 0, len(defs)),
		fingerprint: fingerprintDefinitions(defs),
	}

	for _, def := range defs {
		rule := compileRule(def, logger)
		rs.rules = append(rs.rules, rule)
	}

	return rs
}

func compileRule(def RuleDefinition, logger *zap.Logger) *CompiledRule {
	rule := &CompiledRule{Name: def.Name, PII: def.PII}

	level, levelErr := ParseLevel(def.MinLevel)
	fieldRe, fieldErr := regexp.Compile(def.FieldPattern)
	contentRe, contentErr := regexp.Compile(def.ContentPattern)

	if levelErr != nil || fieldErr != nil || contentErr != nil {
		logger.Warn("Privacy rule failed to compile, keeping it fail-closed",
			zap.String("rule", def.Name),
			zap.NamedError("level_error", levelErr),
			zap.NamedError("field_pattern_error", fieldErr),
			zap.NamedError("content_pattern_error", contentErr))

		rule.failClosed = true
		rule.MinLevel = LevelAISafe
		if fieldErr == nil && def.FieldPattern != "" {
			// The field pattern is still good; confine the blast radius to
			// the fields the rule was meant to govern.
			rule.fieldRe = fieldRe
		}
		return rule
	}

	rule.MinLevel = level
	rule.fieldRe = fieldRe
	rule.contentRe = contentRe
	return rule
}

// RulesForField returns all rules governing the named field. Pure function,
// no side effects.
func (rs *RuleSet) RulesForField(field string) []*CompiledRule {
	var out []*CompiledRule
	for _, r := range rs.rules {
		if r.AppliesTo(field) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of rules in the snapshot.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Fingerprint identifies the rule definitions behind this snapshot. Filter
// output is deterministic per (entry, level, fingerprint), which is what makes
// filtered views cacheable.
func (rs *RuleSet) Fingerprint() string {
	return rs.fingerprint
}

func fingerprintDefinitions(defs []RuleDefinition) string {
	sorted := append([]RuleDefinition(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := sha256.New()
	for _, d := range sorted {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%t\n",
			d.Name, d.FieldPattern, d.ContentPattern, d.MinLevel, d.PII)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Store holds the process's current rule set snapshot. Reload swaps in a new
// snapshot atomically; in-place mutation is not possible.
type Store struct {
	current atomic.Pointer[RuleSet]
}

// NewStore creates a store seeded with the given snapshot.
func NewStore(rs *RuleSet) *Store {
	s := &Store{}
	s.current.Store(rs)
	return s
}

// Current returns the active rule set snapshot.
func (s *Store) Current() *RuleSet {
	return s.current.Load()
}

// Reload replaces the active snapshot.
func (s *Store) Reload(rs *RuleSet) {
	s.current.Store(rs)
}

// seedRules are the conservative compiled-in defaults for common sensitive
// patterns. They exist so the system is safe with zero configuration.
var seedRules = []RuleDefinition{
	{
		Name:           "phone-number",
		FieldPattern:   `.*`,
		ContentPattern: `(\+?\d{1,2}[-.\s])?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`,
		MinLevel:       string(LevelProfessional),
		PII:            true,
	},
	{
		Name:           "ssn",
		FieldPattern:   `.*`,
		ContentPattern: `\b\d{3}-\d{2}-\d{4}\b`,
		MinLevel:       string(LevelAISafe),
		PII:            true,
	},
	{
		Name:           "email-address",
		FieldPattern:   `.*`,
		ContentPattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
		MinLevel:       string(LevelProfessional),
		PII:            true,
	},
	{
		Name:           "salary-figure",
		FieldPattern:   `(?i).*(salary|compensation|pay|rate).*`,
		ContentPattern: `\$?\d[\d,]{2,}(\.\d+)?`,
		MinLevel:       string(LevelPublicFull),
		PII:            false,
	},
	{
		Name:           "street-address",
		FieldPattern:   `.*`,
		ContentPattern: `\b\d{1,5}\s+[A-Z][A-Za-z]*\s+(Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way)\b\.?`,
		MinLevel:       string(LevelProfessional),
		PII:            true,
	},
}

// SeedRuleDefinitions returns a copy of the compiled-in defaults, mainly for
// operator tooling that wants to render the effective configuration.
func SeedRuleDefinitions() []RuleDefinition {
	return append([]RuleDefinition(nil), seedRules...)
}
