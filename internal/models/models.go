package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Issuer identifies the insurance company that produced a policy document.
// The set is closed; IssuerGeneric stands for "not detected".
type Issuer string

const (
	IssuerGeneric     Issuer = ""
	IssuerMeritz      Issuer = "meritz"
	IssuerSamsung     Issuer = "samsung"
	IssuerSamsungLife Issuer = "samsung_life"
	IssuerKB          Issuer = "kb"
	IssuerDB          Issuer = "db"
	IssuerMirae       Issuer = "mirae"
	IssuerABL         Issuer = "abl"
	IssuerHeungkuk    Issuer = "heungkuk"
	IssuerHanwha      Issuer = "hanwha"
	IssuerHyundai     Issuer = "hyundai"
	IssuerLotte       Issuer = "lotte"
	IssuerNH          Issuer = "nh"
	IssuerDongyang    Issuer = "dongyang"
	IssuerKyobo       Issuer = "kyobo"
	IssuerShinhan     Issuer = "shinhan"
)

// UnknownIssuerName is shown when no issuer could be detected.
const UnknownIssuerName = "알 수 없음"

var issuerDisplayNames = map[Issuer]string{
	IssuerMeritz:      "메리츠화재",
	IssuerSamsung:     "삼성화재",
	IssuerSamsungLife: "삼성생명",
	IssuerKB:          "KB손해보험",
	IssuerDB:          "DB손해보험",
	IssuerMirae:       "미래에셋생명",
	IssuerABL:         "ABL생명",
	IssuerHeungkuk:    "흥국생명",
	IssuerHanwha:      "한화생명",
	IssuerHyundai:     "현대해상",
	IssuerLotte:       "롯데손해보험",
	IssuerNH:          "NH농협생명",
	IssuerDongyang:    "동양생명",
	IssuerKyobo:       "교보생명",
	IssuerShinhan:     "신한라이프",
}

// String returns the identifier, or "generic" for IssuerGeneric
func (i Issuer) String() string {
	if i == IssuerGeneric {
		return "generic"
	}
	return string(i)
}

// IsValid reports whether i is one of the known issuers
func (i Issuer) IsValid() bool {
	_, ok := issuerDisplayNames[i]
	return ok
}

// DisplayName returns the Korean company name used in the template
func (i Issuer) DisplayName() string {
	if name, ok := issuerDisplayNames[i]; ok {
		return name
	}
	return UnknownIssuerName
}

// AllIssuers returns every known issuer in identifier order
func AllIssuers() []Issuer {
	issuers := make([]Issuer, 0, len(issuerDisplayNames))
	for i := range issuerDisplayNames {
		issuers = append(issuers, i)
	}
	sort.Slice(issuers, func(a, b int) bool { return issuers[a] < issuers[b] })
	return issuers
}

// ParseIssuer converts an identifier string into an Issuer
func ParseIssuer(s string) (Issuer, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "generic" {
		return IssuerGeneric, nil
	}
	i := Issuer(s)
	if !i.IsValid() {
		return IssuerGeneric, fmt.Errorf("unknown issuer: %s", s)
	}
	return i, nil
}

// ExtraGrade14Payout is the extra field holding the grade 12~14 traffic
// injury payout found outside the coverage table.
const ExtraGrade14Payout = "grade14_payout"

// RawCoverageItem is one (name, amount) pair as extracted from a document
type RawCoverageItem struct {
	Name   string           `json:"name"`
	Amount int64            `json:"amount"`
	Page   int              `json:"page,omitempty"`
	Extra  map[string]int64 `json:"extra,omitempty"`
}

// NewRawCoverageItem creates a validated coverage item
func NewRawCoverageItem(name string, amount int64, page int) (RawCoverageItem, error) {
	item := RawCoverageItem{Name: strings.TrimSpace(name), Amount: amount, Page: page}
	if err := item.Validate(); err != nil {
		return RawCoverageItem{}, err
	}
	return item, nil
}

// Validate performs basic validation on the coverage item
func (c RawCoverageItem) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("coverage name cannot be empty")
	}
	if c.Amount < 0 {
		return fmt.Errorf("coverage amount cannot be negative: %d", c.Amount)
	}
	if c.Page < 0 {
		return fmt.Errorf("page cannot be negative: %d", c.Page)
	}
	return nil
}

// WithExtra returns a copy of the item with an extra field set
func (c RawCoverageItem) WithExtra(key string, value int64) RawCoverageItem {
	extra := make(map[string]int64, len(c.Extra)+1)
	for k, v := range c.Extra {
		extra[k] = v
	}
	extra[key] = value
	c.Extra = extra
	return c
}

// ExtraValue returns an extra field if present
func (c RawCoverageItem) ExtraValue(key string) (int64, bool) {
	v, ok := c.Extra[key]
	return v, ok
}

// String returns a string representation of the coverage item
func (c RawCoverageItem) String() string {
	return fmt.Sprintf("Coverage{Name: %s, Amount: %s}", c.Name, FormatWon(c.Amount))
}

// TargetLabel is one row of the destination template to be filled
type TargetLabel struct {
	Text   string `json:"text"`
	Row    int    `json:"row"`
	Column int    `json:"column"`
}

// Validate performs basic validation on the label
func (t TargetLabel) Validate() error {
	if strings.TrimSpace(t.Text) == "" {
		return fmt.Errorf("target label text cannot be empty")
	}
	if t.Row < 0 || t.Column < 0 {
		return fmt.Errorf("target label locator cannot be negative: row %d, column %d", t.Row, t.Column)
	}
	return nil
}

// RuleKind tags the variant of a MatchRule
type RuleKind string

const (
	RuleIgnore         RuleKind = "ignore"
	RuleAggregate      RuleKind = "aggregate"
	RuleGroupedMinimum RuleKind = "grouped_minimum"
	RuleDirect         RuleKind = "direct"
	RuleDirectExclude  RuleKind = "direct_exclude"
)

// IsValid checks if the rule kind is known
func (k RuleKind) IsValid() bool {
	switch k {
	case RuleIgnore, RuleAggregate, RuleGroupedMinimum, RuleDirect, RuleDirectExclude:
		return true
	default:
		return false
	}
}

// MatchRule decides how a target label obtains its amount. Only the fields
// relevant to Kind are set.
type MatchRule struct {
	Kind       RuleKind `json:"kind" yaml:"kind"`
	Category   string   `json:"category,omitempty" yaml:"category,omitempty"`
	Tier       int      `json:"tier,omitempty" yaml:"tier,omitempty"`
	Keywords   []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Exclusions []string `json:"exclusions,omitempty" yaml:"exclusions,omitempty"`
}

// Validate checks that the fields required by the rule kind are present
func (r MatchRule) Validate() error {
	switch r.Kind {
	case RuleIgnore:
		return nil
	case RuleAggregate:
		if r.Category == "" {
			return fmt.Errorf("aggregate rule requires a category")
		}
	case RuleGroupedMinimum:
		if r.Tier < 1 {
			return fmt.Errorf("grouped minimum rule requires a tier >= 1, got %d", r.Tier)
		}
	case RuleDirect:
		if len(r.Keywords) == 0 {
			return fmt.Errorf("direct rule requires at least one keyword")
		}
	case RuleDirectExclude:
		if len(r.Keywords) == 0 || len(r.Exclusions) == 0 {
			return fmt.Errorf("direct_exclude rule requires keywords and exclusions")
		}
	default:
		return fmt.Errorf("unknown rule kind: %q", r.Kind)
	}
	return nil
}

// String returns a compact representation of the rule
func (r MatchRule) String() string {
	switch r.Kind {
	case RuleAggregate:
		return fmt.Sprintf("aggregate(%s)", r.Category)
	case RuleGroupedMinimum:
		return fmt.Sprintf("grouped_minimum(%d)", r.Tier)
	case RuleDirect:
		return fmt.Sprintf("direct(%s)", strings.Join(r.Keywords, "|"))
	case RuleDirectExclude:
		return fmt.Sprintf("direct_exclude(%s !%s)", strings.Join(r.Keywords, "|"), strings.Join(r.Exclusions, "|"))
	default:
		return string(r.Kind)
	}
}

// RuleConfidence is reported for every rule-based match.
const RuleConfidence = 100.0

// MatchResult is the amount resolved for one target label
type MatchResult struct {
	Target     TargetLabel `json:"target"`
	Amount     int64       `json:"amount"`
	Provenance string      `json:"provenance"`
	Sources    []string    `json:"sources,omitempty"`
	Confidence float64     `json:"confidence"`
}

// ReconciliationReport is the result of matching one document's coverages
// against one target list.
type ReconciliationReport struct {
	Matched          []MatchResult     `json:"matched"`
	UnmatchedTargets []TargetLabel     `json:"unmatched_targets"`
	UnmatchedRaw     []RawCoverageItem `json:"unmatched_raw"`
}

// ReportSummary provides counts and totals for a report
type ReportSummary struct {
	MatchedTargets   int             `json:"matched_targets"`
	UnmatchedTargets int             `json:"unmatched_targets"`
	UnmatchedRaw     int             `json:"unmatched_raw"`
	MatchedAmount    decimal.Decimal `json:"matched_amount"`
	MatchRate        float64         `json:"match_rate"`
}

// Summary computes counts and totals for the report
func (r *ReconciliationReport) Summary() ReportSummary {
	total := decimal.Zero
	for _, m := range r.Matched {
		total = total.Add(decimal.NewFromInt(m.Amount))
	}

	s := ReportSummary{
		MatchedTargets:   len(r.Matched),
		UnmatchedTargets: len(r.UnmatchedTargets),
		UnmatchedRaw:     len(r.UnmatchedRaw),
		MatchedAmount:    total,
	}
	if considered := s.MatchedTargets + s.UnmatchedTargets; considered > 0 {
		s.MatchRate = float64(s.MatchedTargets) / float64(considered) * 100
	}
	return s
}

// UnknownProductName is used when no product name line is found.
const UnknownProductName = "상품명 미확인"

// DocumentInfo is what the extractor returns for one policy document
type DocumentInfo struct {
	Name        string            `json:"name"`
	Issuer      Issuer            `json:"issuer"`
	IssuerName  string            `json:"issuer_name"`
	ProductName string            `json:"product_name"`
	Premium     *int64            `json:"premium"`
	PageCount   int               `json:"page_count"`
	Strategy    string            `json:"strategy,omitempty"`
	Coverages   []RawCoverageItem `json:"coverages"`
}

// HasPremium reports whether a premium was found
func (d *DocumentInfo) HasPremium() bool {
	return d.Premium != nil
}

var tenThousand = decimal.NewFromInt(10000)

// Manwon converts won into whole 만원 units, truncating the remainder.
// Template cells are kept in 만원.
func Manwon(amount int64) int64 {
	return decimal.NewFromInt(amount).Div(tenThousand).Truncate(0).IntPart()
}

// FormatWon renders an amount with thousands separators and the 원 suffix
func FormatWon(amount int64) string {
	s := decimal.NewFromInt(amount).Abs().String()
	var b strings.Builder
	if amount < 0 {
		b.WriteByte('-')
	}
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString("원")
	return b.String()
}
