package matcher

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/normalizer"
	"insurance-coverage-reconciler/pkg/errors"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// ruleEntry is one rule of the YAML table, shared by all of its labels
type ruleEntry struct {
	Labels           []string `yaml:"labels"`
	models.MatchRule `yaml:",inline"`
}

type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

// LabelRule is a template label with the rule it resolves to
type LabelRule struct {
	Label string           `json:"label" yaml:"label"`
	Rule  models.MatchRule `json:"rule" yaml:"rule"`
}

// RuleSet is the immutable rule table used by the engine. It is safe for
// concurrent use.
type RuleSet struct {
	rules      map[string]models.MatchRule
	labels     []string
	categories []Category
	normalizer *normalizer.Normalizer
}

var (
	defaultRuleSet     *RuleSet
	defaultRuleSetOnce sync.Once
)

// DefaultRuleSet returns the built-in rule table
func DefaultRuleSet() *RuleSet {
	defaultRuleSetOnce.Do(func() {
		rs, err := ParseRuleSet(defaultRulesYAML)
		if err != nil {
			panic(fmt.Sprintf("built-in rule table is invalid: %v", err))
		}
		defaultRuleSet = rs
	})
	return defaultRuleSet
}

// ParseRuleSet builds a rule set from a YAML rule table
func ParseRuleSet(data []byte) (*RuleSet, error) {
	b := newRuleSetBuilder()
	if err := b.merge(data, "<inline>"); err != nil {
		return nil, err
	}
	return b.build()
}

// LoadRuleSet returns the built-in rule table with the rules of an override
// file laid over it. Labels present in the override replace the built-in
// rule; new labels are appended. An empty path returns the built-in table.
func LoadRuleSet(overridePath string) (*RuleSet, error) {
	if overridePath == "" {
		return DefaultRuleSet(), nil
	}

	data, err := os.ReadFile(overridePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, overridePath, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, overridePath, err)
	}

	b := newRuleSetBuilder()
	if err := b.merge(defaultRulesYAML, "<built-in>"); err != nil {
		return nil, err
	}
	if err := b.merge(data, overridePath); err != nil {
		return nil, err
	}
	return b.build()
}

// Lookup returns the rule for a template label
func (rs *RuleSet) Lookup(label string) (models.MatchRule, bool) {
	r, ok := rs.rules[rs.normalizer.NormalizeLabel(label)]
	return r, ok
}

// Rules returns every label and its rule in table order
func (rs *RuleSet) Rules() []LabelRule {
	out := make([]LabelRule, 0, len(rs.labels))
	for _, l := range rs.labels {
		out = append(out, LabelRule{Label: l, Rule: rs.rules[l]})
	}
	return out
}

// Categories returns the aggregation categories the rule set refers to
func (rs *RuleSet) Categories() []Category {
	out := make([]Category, len(rs.categories))
	copy(out, rs.categories)
	return out
}

// Len returns the number of labels with a rule
func (rs *RuleSet) Len() int {
	return len(rs.labels)
}

// WriteYAML writes the resolved rule table
func (rs *RuleSet) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string][]LabelRule{"rules": rs.Rules()}); err != nil {
		return err
	}
	return enc.Close()
}

type ruleSetBuilder struct {
	rules      map[string]models.MatchRule
	labels     []string
	normalizer *normalizer.Normalizer
}

func newRuleSetBuilder() *ruleSetBuilder {
	return &ruleSetBuilder{
		rules:      make(map[string]models.MatchRule),
		normalizer: normalizer.Default(),
	}
}

// merge adds the rules of a YAML table. A label repeated within one table is
// an error; a label already known from an earlier table is replaced.
func (b *ruleSetBuilder) merge(data []byte, source string) error {
	var file ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return errors.ConfigurationError(errors.CodeInvalidRules, "rules", source, err)
	}

	seen := make(map[string]bool)
	for i, entry := range file.Rules {
		if len(entry.Labels) == 0 {
			return errors.ConfigurationError(errors.CodeInvalidRules, "rules", source,
				fmt.Errorf("rule %d has no labels", i+1))
		}
		if err := entry.MatchRule.Validate(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidRules, "rules", source,
				fmt.Errorf("rule %d (%s): %w", i+1, entry.Labels[0], err))
		}
		rule := b.compile(entry.MatchRule)

		for _, label := range entry.Labels {
			key := b.normalizer.NormalizeLabel(label)
			if key == "" {
				return errors.ConfigurationError(errors.CodeInvalidRules, "rules", source,
					fmt.Errorf("rule %d has an empty label", i+1))
			}
			if seen[key] {
				return errors.ConfigurationError(errors.CodeInvalidRules, "rules", source,
					fmt.Errorf("label %q is defined twice", label))
			}
			seen[key] = true

			if _, exists := b.rules[key]; !exists {
				b.labels = append(b.labels, key)
			}
			b.rules[key] = rule
		}
	}
	return nil
}

// compile normalizes keywords the same way coverage names are normalized.
// Exclusions are kept verbatim since they are also tested on raw names.
func (b *ruleSetBuilder) compile(r models.MatchRule) models.MatchRule {
	if len(r.Keywords) > 0 {
		keywords := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if k := b.normalizer.NormalizeLabel(kw); k != "" {
				keywords = append(keywords, k)
			}
		}
		r.Keywords = keywords
	}
	if len(r.Exclusions) > 0 {
		r.Exclusions = append([]string(nil), r.Exclusions...)
	}
	return r
}

func (b *ruleSetBuilder) build() (*RuleSet, error) {
	categories := DefaultCategories()
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidRules, "categories", c.Key, err)
		}
		known[c.Key] = true
	}

	for _, label := range b.labels {
		r := b.rules[label]
		switch r.Kind {
		case models.RuleAggregate:
			if !known[r.Category] {
				return nil, errors.ConfigurationError(errors.CodeInvalidRules, "rules", label,
					fmt.Errorf("unknown aggregation category %q", r.Category))
			}
		case models.RuleGroupedMinimum:
			if r.Tier > MaxSurgeryTier {
				return nil, errors.ConfigurationError(errors.CodeInvalidRules, "rules", label,
					fmt.Errorf("surgery tier %d is above %d", r.Tier, MaxSurgeryTier))
			}
		case models.RuleDirect, models.RuleDirectExclude:
			if len(r.Keywords) == 0 {
				return nil, errors.ConfigurationError(errors.CodeInvalidRules, "rules", label,
					fmt.Errorf("no usable keywords"))
			}
		}
	}

	return &RuleSet{
		rules:      b.rules,
		labels:     b.labels,
		categories: categories,
		normalizer: b.normalizer,
	}, nil
}
