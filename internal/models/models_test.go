package models

import (
	"encoding/json"
	"testing"
)

func TestIssuer(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    Issuer
		display     string
		expectError bool
	}{
		{name: "kb", input: "kb", expected: IssuerKB, display: "KB손해보험"},
		{name: "samsung life upper case", input: "SAMSUNG_LIFE", expected: IssuerSamsungLife, display: "삼성생명"},
		{name: "generic", input: "generic", expected: IssuerGeneric, display: UnknownIssuerName},
		{name: "empty", input: "", expected: IssuerGeneric, display: UnknownIssuerName},
		{name: "unknown", input: "acme", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIssuer(tt.input)
			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
			if got.DisplayName() != tt.display {
				t.Errorf("expected display name %s, got %s", tt.display, got.DisplayName())
			}
		})
	}
}

func TestAllIssuers(t *testing.T) {
	all := AllIssuers()
	if len(all) != 15 {
		t.Fatalf("expected 15 issuers, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Errorf("expected sorted issuers, got %s before %s", all[i-1], all[i])
		}
	}
	if IssuerGeneric.IsValid() {
		t.Error("generic must not be a valid issuer")
	}
	if IssuerGeneric.String() != "generic" {
		t.Errorf("expected generic string, got %s", IssuerGeneric.String())
	}
}

func TestRawCoverageItem(t *testing.T) {
	tests := []struct {
		name        string
		itemName    string
		amount      int64
		page        int
		expectError bool
	}{
		{name: "valid", itemName: " 질병수술비 ", amount: 300000, page: 3},
		{name: "zero amount allowed", itemName: "상해사망", amount: 0},
		{name: "empty name", itemName: "  ", amount: 1000, expectError: true},
		{name: "negative amount", itemName: "암진단비", amount: -1, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := NewRawCoverageItem(tt.itemName, tt.amount, tt.page)
			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if item.Name == "" || item.Name[0] == ' ' {
				t.Errorf("expected trimmed name, got %q", item.Name)
			}
		})
	}
}

func TestWithExtraDoesNotAlias(t *testing.T) {
	original := RawCoverageItem{Name: "자동차사고부상(4~14급)", Amount: 300000}
	patched := original.WithExtra(ExtraGrade14Payout, 200000)

	if _, ok := original.ExtraValue(ExtraGrade14Payout); ok {
		t.Error("expected original item to stay unchanged")
	}
	if v, ok := patched.ExtraValue(ExtraGrade14Payout); !ok || v != 200000 {
		t.Errorf("expected extra 200000, got %d (ok=%v)", v, ok)
	}
}

func TestMatchRuleValidate(t *testing.T) {
	tests := []struct {
		name        string
		rule        MatchRule
		expectError bool
	}{
		{name: "ignore", rule: MatchRule{Kind: RuleIgnore}},
		{name: "aggregate", rule: MatchRule{Kind: RuleAggregate, Category: "질병수술비"}},
		{name: "aggregate without category", rule: MatchRule{Kind: RuleAggregate}, expectError: true},
		{name: "tier", rule: MatchRule{Kind: RuleGroupedMinimum, Tier: 3}},
		{name: "tier zero", rule: MatchRule{Kind: RuleGroupedMinimum}, expectError: true},
		{name: "direct", rule: MatchRule{Kind: RuleDirect, Keywords: []string{"암진단비"}}},
		{name: "direct exclude missing exclusions", rule: MatchRule{Kind: RuleDirectExclude, Keywords: []string{"벌금"}}, expectError: true},
		{name: "unknown kind", rule: MatchRule{Kind: "fuzzy"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestReportSummary(t *testing.T) {
	report := &ReconciliationReport{
		Matched: []MatchResult{
			{Target: TargetLabel{Text: "암진단비"}, Amount: 30000000, Confidence: RuleConfidence},
			{Target: TargetLabel{Text: "1종수술"}, Amount: 300000, Confidence: RuleConfidence},
		},
		UnmatchedTargets: []TargetLabel{{Text: "치매진단비"}, {Text: "간병인"}},
		UnmatchedRaw:     []RawCoverageItem{{Name: "기타특약", Amount: 1}},
	}

	s := report.Summary()
	if s.MatchedTargets != 2 || s.UnmatchedTargets != 2 || s.UnmatchedRaw != 1 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if s.MatchedAmount.IntPart() != 30300000 {
		t.Errorf("expected matched amount 30300000, got %s", s.MatchedAmount)
	}
	if s.MatchRate != 50 {
		t.Errorf("expected match rate 50, got %.1f", s.MatchRate)
	}
}

func TestDocumentInfoJSONPremium(t *testing.T) {
	info := DocumentInfo{Name: "a.pdf", Issuer: IssuerKB, ProductName: UnknownProductName}
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded["premium"] != nil {
		t.Errorf("expected null premium, got %v", decoded["premium"])
	}
	if info.HasPremium() {
		t.Error("expected HasPremium to be false")
	}
}

func TestMoneyHelpers(t *testing.T) {
	tests := []struct {
		amount  int64
		manwon  int64
		display string
	}{
		{amount: 5000000, manwon: 500, display: "5,000,000원"},
		{amount: 120000000, manwon: 12000, display: "120,000,000원"},
		{amount: 15000, manwon: 1, display: "15,000원"},
		{amount: 999, manwon: 0, display: "999원"},
	}

	for _, tt := range tests {
		if got := Manwon(tt.amount); got != tt.manwon {
			t.Errorf("Manwon(%d): expected %d, got %d", tt.amount, tt.manwon, got)
		}
		if got := FormatWon(tt.amount); got != tt.display {
			t.Errorf("FormatWon(%d): expected %s, got %s", tt.amount, tt.display, got)
		}
	}
}
