package normalizer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type goldenCase struct {
	Raw string `json:"raw"`
	Key string `json:"key"`
}

func loadGolden(t *testing.T) []goldenCase {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "golden", "normalize.json"))
	require.NoError(t, err)

	var cases []goldenCase
	require.NoError(t, json.Unmarshal(data, &cases))
	require.NotEmpty(t, cases)
	return cases
}

func TestNormalizeGolden(t *testing.T) {
	for _, tc := range loadGolden(t) {
		t.Run(tc.Raw, func(t *testing.T) {
			assert.Equal(t, tc.Key, Normalize(tc.Raw))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"암진단특약(간편고지형(3), 갱신형)",
		"뇌졸중 진단비 (갱신형, 무배당)",
		"((급여) 질병입원",
		"ⅡⅢ종 수술 특약ⅤU",
		"",
		"   ",
	}
	for _, tc := range loadGolden(t) {
		inputs = append(inputs, tc.Raw, tc.Key)
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "Normalize not idempotent for %q", in)

		label := NormalizeLabel(in)
		assert.Equal(t, label, NormalizeLabel(label), "NormalizeLabel not idempotent for %q", in)
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		label    string
		expected string
	}{
		{label: "실비질병/상해 종합입원", expected: "실비질병/상해종합입원"},
		{label: "암진단(일반암)", expected: "암진단(일반암)"},
		{label: "뇌혈관질환 진단비", expected: "뇌혈관질환진단비"},
		{label: " Ⅰ종 수술 ", expected: "1종수술"},
		{label: "CAR-T", expected: "CART"},
		{label: "상해후유장해３%", expected: "상해후유장해3%"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeLabel(tt.label))
		})
	}
}

func TestNormalizeLabelKeepsBoilerplate(t *testing.T) {
	// labels are canonical already; renewal markers are not stripped
	assert.Equal(t, "갱신형질병수술비", NormalizeLabel("갱신형 질병수술비"))
	assert.Equal(t, "질병수술비", Normalize("갱신형 질병수술비"))
}

func TestCustomRules(t *testing.T) {
	n := New([]Rule{
		{Family: FamilyKB, Pattern: regexp.MustCompile(`\(운전자\)`), Replacement: ""},
	})

	assert.Equal(t, "벌금", n.Normalize("벌금 (운전자)"))
	assert.Equal(t, "갱신형벌금", n.Normalize("갱신형 벌금"), "rules outside the custom set must not apply")
}

func TestDefaultRulesIsCopy(t *testing.T) {
	rules := DefaultRules()
	require.NotEmpty(t, rules)
	rules[0].Replacement = "changed"

	assert.Equal(t, "", DefaultRules()[0].Replacement)
	assert.Equal(t, "질병수술비", Normalize("┗ 질병수술비"))
}

func TestRuleFamiliesAreGrouped(t *testing.T) {
	order := []Family{FamilyMeritz, FamilySamsungLife, FamilyMirae, FamilyKB}
	pos := 0
	for _, r := range DefaultRules() {
		for pos < len(order) && order[pos] != r.Family {
			pos++
		}
		require.Less(t, pos, len(order), "rule %s is out of family order", r.Pattern)
	}
}
