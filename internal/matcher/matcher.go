package matcher

import (
	"strings"

	"insurance-coverage-reconciler/internal/models"
)

// Engine resolves template labels to coverage amounts
type Engine struct {
	rules *RuleSet
}

// NewEngine creates an engine for a rule set. A nil rule set uses the
// built-in rules.
func NewEngine(rules *RuleSet) *Engine {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &Engine{rules: rules}
}

// NewEngineFromConfig loads the configured rules and creates an engine
func NewEngineFromConfig(config *MatchingConfig) (*Engine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	rules, err := config.LoadRules()
	if err != nil {
		return nil, err
	}
	return NewEngine(rules), nil
}

// Rules returns the rule set the engine uses
func (e *Engine) Rules() *RuleSet {
	return e.rules
}

// Match reconciles a document's items against the template labels.
//
// Labels without a rule, and labels whose rule finds nothing, are reported as
// unmatched targets. Ignored labels appear nowhere in the report. An item is
// unmatched unless its raw or normalized name occurs in the provenance of
// some match.
func (e *Engine) Match(items []models.RawCoverageItem, targets []models.TargetLabel) *models.ReconciliationReport {
	p := newPool(items, e.rules.normalizer)
	agg := aggregatePool(p, items, e.rules.categories)

	report := &models.ReconciliationReport{
		Matched:          []models.MatchResult{},
		UnmatchedTargets: []models.TargetLabel{},
		UnmatchedRaw:     []models.RawCoverageItem{},
	}

	for _, target := range targets {
		rule, ok := e.rules.Lookup(target.Text)
		if !ok {
			report.UnmatchedTargets = append(report.UnmatchedTargets, target)
			continue
		}
		if rule.Kind == models.RuleIgnore {
			continue
		}

		result, ok := resolve(rule, p, agg)
		if !ok {
			report.UnmatchedTargets = append(report.UnmatchedTargets, target)
			continue
		}
		result.Target = target
		result.Confidence = models.RuleConfidence
		report.Matched = append(report.Matched, result)
	}

	report.UnmatchedRaw = unmatchedItems(items, report.Matched, e.rules)
	return report
}

func resolve(rule models.MatchRule, p pool, agg Aggregates) (models.MatchResult, bool) {
	switch rule.Kind {
	case models.RuleAggregate:
		if t, ok := agg.Category(rule.Category); ok {
			return fromTotal(t), true
		}
	case models.RuleGroupedMinimum:
		if t, ok := agg.Tier(rule.Tier); ok {
			return fromTotal(t), true
		}
	case models.RuleDirect, models.RuleDirectExclude:
		if e, ok := findDirect(p, rule.Keywords, rule.Exclusions); ok {
			return models.MatchResult{
				Amount:     e.item.Amount,
				Provenance: e.item.Name,
				Sources:    []string{e.item.Name},
			}, true
		}
	}
	return models.MatchResult{}, false
}

func fromTotal(t Total) models.MatchResult {
	return models.MatchResult{
		Amount:     t.Amount,
		Provenance: t.Provenance(),
		Sources:    append([]string(nil), t.Sources...),
	}
}

// findDirect tries keywords in order and, for each keyword, items in pool
// order. Items containing an exclusion in either name are skipped.
func findDirect(p pool, keywords, exclusions []string) (poolEntry, bool) {
	for _, kw := range keywords {
		for _, e := range p {
			if !strings.Contains(e.key, kw) {
				continue
			}
			if containsAny(e.key, exclusions) || containsAny(e.item.Name, exclusions) {
				continue
			}
			return e, true
		}
	}
	return poolEntry{}, false
}

func unmatchedItems(items []models.RawCoverageItem, matched []models.MatchResult, rules *RuleSet) []models.RawCoverageItem {
	out := []models.RawCoverageItem{}
	emitted := make(map[string]bool)
	for _, it := range items {
		if emitted[it.Name] {
			continue
		}
		key := rules.normalizer.Normalize(it.Name)
		if consumed(it.Name, key, matched) {
			continue
		}
		emitted[it.Name] = true
		out = append(out, it)
	}
	return out
}

func consumed(name, key string, matched []models.MatchResult) bool {
	for _, m := range matched {
		if name != "" && strings.Contains(m.Provenance, name) {
			return true
		}
		if key != "" && strings.Contains(m.Provenance, key) {
			return true
		}
	}
	return false
}
