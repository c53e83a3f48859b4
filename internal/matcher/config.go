// Package matcher reconciles extracted coverage items against the coverage
// labels of an analysis template.
//
// Every template label resolves through a curated rule table to one of:
//   - ignore: the label is filled from elsewhere (premium, reserve) or never
//   - aggregate: a category total computed over several items
//   - grouped_minimum: the smallest amount among items of a surgery tier
//   - direct: the first item whose normalized name contains a keyword
//   - direct_exclude: as direct, skipping items containing an exclusion
//
// The engine is deterministic: the item pool keeps document order, targets
// are processed in template order and no map iteration reaches the output.
//
// Example usage:
//
//	rules, err := matcher.LoadRuleSet("")
//	engine := matcher.NewEngine(rules)
//	report := engine.Match(info.Coverages, targets)
//	for _, m := range report.Matched {
//		fmt.Println(m.Target.Text, m.Amount, m.Provenance)
//	}
package matcher

import (
	"fmt"
)

// DefaultThreshold is the similarity threshold accepted from callers. Rule
// based matching does not score candidates, so it is recorded but does not
// change the result.
const DefaultThreshold = 75.0

// MatchingConfig holds configuration for the matching engine
type MatchingConfig struct {
	// RulesFile is an optional YAML table laid over the built-in rules
	RulesFile string `json:"rules_file,omitempty" mapstructure:"rules_file"`

	// Threshold is the similarity threshold requested by the caller (0-100)
	Threshold float64 `json:"threshold" mapstructure:"threshold"`
}

// DefaultMatchingConfig returns a configuration using the built-in rules
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		Threshold: DefaultThreshold,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.Threshold < 0.0 || mc.Threshold > 100.0 {
		return fmt.Errorf("threshold must be between 0 and 100: %f", mc.Threshold)
	}
	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	return &clone
}

// LoadRules loads the rule set the configuration points at
func (mc *MatchingConfig) LoadRules() (*RuleSet, error) {
	return LoadRuleSet(mc.RulesFile)
}

// String returns a string representation of the configuration
func (mc *MatchingConfig) String() string {
	rules := mc.RulesFile
	if rules == "" {
		rules = "built-in"
	}
	return fmt.Sprintf("MatchingConfig{Rules: %s, Threshold: %.1f}", rules, mc.Threshold)
}
