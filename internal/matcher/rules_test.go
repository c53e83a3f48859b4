package matcher

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/pkg/errors"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultRuleSet(t *testing.T) {
	rs := DefaultRuleSet()
	assert.Same(t, rs, DefaultRuleSet())

	tests := []struct {
		label string
		kind  models.RuleKind
		check func(t *testing.T, r models.MatchRule)
	}{
		{label: "보험료", kind: models.RuleIgnore},
		{label: "실비질병/상해 종합입원", kind: models.RuleIgnore},
		{label: "뇌혈수술비", kind: models.RuleAggregate, check: func(t *testing.T, r models.MatchRule) {
			assert.Equal(t, "뇌혈관질환수술비", r.Category)
		}},
		{label: "상해사망/재해사망", kind: models.RuleAggregate, check: func(t *testing.T, r models.MatchRule) {
			assert.Equal(t, "일반상해사망", r.Category)
		}},
		{label: "7종수술", kind: models.RuleGroupedMinimum, check: func(t *testing.T, r models.MatchRule) {
			assert.Equal(t, 7, r.Tier)
		}},
		{label: "카티항암약물치료비", kind: models.RuleDirect, check: func(t *testing.T, r models.MatchRule) {
			assert.Equal(t, []string{"카티항암약물치료비", "CART"}, r.Keywords)
		}},
		{label: "벌금", kind: models.RuleDirectExclude, check: func(t *testing.T, r models.MatchRule) {
			assert.Equal(t, []string{"대물"}, r.Exclusions)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			r, ok := rs.Lookup(tt.label)
			require.True(t, ok)
			assert.Equal(t, tt.kind, r.Kind)
			if tt.check != nil {
				tt.check(t, r)
			}
		})
	}

	_, ok := rs.Lookup("없는담보")
	assert.False(t, ok)

	rules := rs.Rules()
	assert.Equal(t, rs.Len(), len(rules))
	assert.Equal(t, "보험료", rules[0].Label)
}

func TestCategoriesReturnsCopy(t *testing.T) {
	rs := DefaultRuleSet()
	cats := rs.Categories()
	cats[0].Key = "changed"
	assert.NotEqual(t, "changed", rs.Categories()[0].Key)
}

func TestLoadRuleSetOverride(t *testing.T) {
	path := writeRules(t, `
rules:
  - labels: [깁스]
    kind: direct
    keywords: [깁스치료]
  - labels: [치아보철]
    kind: direct
    keywords: [보철치료비]
`)

	rs, err := LoadRuleSet(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultRuleSet().Len()+1, rs.Len())

	r, ok := rs.Lookup("깁스")
	require.True(t, ok)
	assert.Equal(t, []string{"깁스치료"}, r.Keywords)

	r, ok = rs.Lookup("치아 보철")
	require.True(t, ok)
	assert.Equal(t, models.RuleDirect, r.Kind)

	// the built-in table is untouched
	r, _ = DefaultRuleSet().Lookup("깁스")
	assert.Equal(t, []string{"깁스"}, r.Keywords)

	report := NewEngine(rs).Match(items("보철치료비(연간3개한)", 500000), targets("치아보철"))
	require.Len(t, report.Matched, 1)
	assert.Equal(t, int64(500000), report.Matched[0].Amount)
}

func TestLoadRuleSetErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    errors.ErrorCode
	}{
		{
			name:    "invalid yaml",
			content: "rules: [",
			code:    errors.CodeInvalidRules,
		},
		{
			name:    "unknown field",
			content: "rules:\n  - labels: [a]\n    kind: ignore\n    weight: 3\n",
			code:    errors.CodeInvalidRules,
		},
		{
			name:    "missing labels",
			content: "rules:\n  - kind: ignore\n",
			code:    errors.CodeInvalidRules,
		},
		{
			name:    "unknown kind",
			content: "rules:\n  - labels: [a]\n    kind: fuzzy\n",
			code:    errors.CodeInvalidRules,
		},
		{
			name:    "unknown category",
			content: "rules:\n  - labels: [a]\n    kind: aggregate\n    category: 없음\n",
			code:    errors.CodeInvalidRules,
		},
		{
			name:    "tier out of range",
			content: "rules:\n  - labels: [8종수술]\n    kind: grouped_minimum\n    tier: 8\n",
			code:    errors.CodeInvalidRules,
		},
		{
			name:    "duplicate label",
			content: "rules:\n  - labels: [a, \" a \"]\n    kind: ignore\n",
			code:    errors.CodeInvalidRules,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRuleSet(writeRules(t, tt.content))
			require.Error(t, err)
			rerr, ok := errors.AsReconcilerError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, rerr.Code)
		})
	}

	_, err := LoadRuleSet(filepath.Join(t.TempDir(), "missing.yaml"))
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeFileNotFound, rerr.Code)
}

func TestParseRuleSet(t *testing.T) {
	rs, err := ParseRuleSet([]byte("rules:\n  - labels: [상해수술비]\n    kind: aggregate\n    category: 상해수술비\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())

	report := NewEngine(rs).Match(items("상해수술비", 100000), targets("상해수술비", "질병수술비"))
	assert.Len(t, report.Matched, 1)
	assert.Len(t, report.UnmatchedTargets, 1)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DefaultRuleSet().WriteYAML(&buf))

	out := buf.String()
	assert.Contains(t, out, "label: 깁스")
	assert.Contains(t, out, "kind: grouped_minimum")

	// the dump can be read back as an override
	rs, err := ParseRuleSet([]byte(dumpAsTable(t, DefaultRuleSet())))
	require.NoError(t, err)
	assert.Equal(t, DefaultRuleSet().Len(), rs.Len())
}

func dumpAsTable(t *testing.T, rs *RuleSet) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("rules:\n")
	for _, lr := range rs.Rules() {
		buf.WriteString("  - labels: [\"" + lr.Label + "\"]\n")
		buf.WriteString("    kind: " + string(lr.Rule.Kind) + "\n")
		if lr.Rule.Category != "" {
			buf.WriteString("    category: " + lr.Rule.Category + "\n")
		}
		if lr.Rule.Tier > 0 {
			buf.WriteString("    tier: " + string(rune('0'+lr.Rule.Tier)) + "\n")
		}
		for i, kw := range lr.Rule.Keywords {
			if i == 0 {
				buf.WriteString("    keywords:\n")
			}
			buf.WriteString("      - \"" + kw + "\"\n")
		}
		for i, ex := range lr.Rule.Exclusions {
			if i == 0 {
				buf.WriteString("    exclusions:\n")
			}
			buf.WriteString("      - \"" + ex + "\"\n")
		}
	}
	return buf.String()
}
