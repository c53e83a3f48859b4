package matcher

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/normalizer"
)

// Policy is how a category combines the items its clauses select
type Policy int

const (
	// PolicySum adds every selected item. The category is only reported
	// when the total is positive.
	PolicySum Policy = iota

	// PolicyFirstMatch takes the first selected item. Clauses are tried in
	// order and, within a clause, items in document order.
	PolicyFirstMatch
)

// String returns the string representation of Policy
func (p Policy) String() string {
	switch p {
	case PolicySum:
		return "sum"
	case PolicyFirstMatch:
		return "first_match"
	default:
		return "unknown"
	}
}

// Clause selects pool items for a category. Text conditions apply to the
// normalized key, or to the raw name when Raw is set.
type Clause struct {
	Exact  string
	AllOf  []string
	AnyOf  []string
	NoneOf []string
	Raw    bool

	// ExtraField takes the amount from a derived field of the item instead
	// of its insured amount. Items without the field never match.
	ExtraField string

	// Divisor, when positive, divides the amount with half-to-even rounding
	Divisor int64
}

func (c Clause) empty() bool {
	return c.Exact == "" && len(c.AllOf) == 0 && len(c.AnyOf) == 0 && c.ExtraField == ""
}

// value reports whether the entry satisfies the clause and the amount it
// contributes.
func (c Clause) value(e poolEntry) (int64, bool) {
	text := e.key
	if c.Raw {
		text = e.item.Name
	}

	if c.Exact != "" && text != c.Exact {
		return 0, false
	}
	for _, kw := range c.AllOf {
		if !strings.Contains(text, kw) {
			return 0, false
		}
	}
	if len(c.AnyOf) > 0 && !containsAny(text, c.AnyOf) {
		return 0, false
	}
	if containsAny(text, c.NoneOf) {
		return 0, false
	}

	if c.ExtraField != "" {
		return e.item.ExtraValue(c.ExtraField)
	}

	amount := e.item.Amount
	if c.Divisor > 0 {
		amount = decimal.NewFromInt(amount).
			Div(decimal.NewFromInt(c.Divisor)).
			RoundBank(0).
			IntPart()
	}
	return amount, true
}

// Category is a curated aggregation over several raw items
type Category struct {
	Key     string
	Policy  Policy
	Clauses []Clause
}

// Validate checks that the category can select anything
func (c Category) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("category key is required")
	}
	if len(c.Clauses) == 0 {
		return fmt.Errorf("category %s has no clauses", c.Key)
	}
	for i, cl := range c.Clauses {
		if cl.empty() {
			return fmt.Errorf("category %s clause %d has no condition", c.Key, i)
		}
		if cl.Divisor < 0 {
			return fmt.Errorf("category %s clause %d has a negative divisor", c.Key, i)
		}
	}
	return nil
}

// DefaultCategories returns the built-in aggregation categories. Keywords are
// written against normalized keys unless the clause is marked Raw.
func DefaultCategories() []Category {
	return []Category{
		{Key: "질병수술비", Policy: PolicySum, Clauses: []Clause{
			{AllOf: []string{"질병수술비"}, NoneOf: []string{"130대", "5대질환"}},
			{AllOf: []string{"질병재해수술"}},
		}},
		{Key: "상해수술비", Policy: PolicyFirstMatch, Clauses: []Clause{
			{Exact: "상해수술비"},
			{AllOf: []string{"질병재해수술"}},
		}},
		{Key: "뇌혈관질환수술비", Policy: PolicySum, Clauses: []Clause{
			{AllOf: []string{"뇌혈관질환수술비"}, NoneOf: []string{"130대"}},
			{AllOf: []string{"130대질병수술비", "뇌혈관질환"}},
		}},
		{Key: "허혈성심장질환수술비", Policy: PolicySum, Clauses: []Clause{
			{AllOf: []string{"허혈성심장질환수술비"}, NoneOf: []string{"130대"}},
			{AllOf: []string{"130대질병수술비", "심장질환"}},
		}},
		{Key: "골절진단", Policy: PolicySum, Clauses: []Clause{
			{AllOf: []string{"골절", "진단"}, NoneOf: []string{"수술"}},
		}},
		{Key: "골절수술비", Policy: PolicyFirstMatch, Clauses: []Clause{
			{AllOf: []string{"골절수술비"}},
		}},
		{Key: "뇌혈관질환진단비", Policy: PolicyFirstMatch, Clauses: []Clause{
			{AllOf: []string{"뇌혈관질환진단"}, NoneOf: []string{"수술"}},
		}},
		{Key: "허혈성심장질환진단비", Policy: PolicyFirstMatch, Clauses: []Clause{
			{AllOf: []string{"허혈성심장질환진단"}, NoneOf: []string{"수술"}},
		}},
		{Key: "일반상해사망", Policy: PolicyFirstMatch, Clauses: []Clause{
			{AnyOf: []string{"일반상해사망", "재해사망", "주보험재해사망", "주계약(재해사망)"}},
		}},
		{Key: "가족일상배상책임", Policy: PolicyFirstMatch, Clauses: []Clause{
			{AnyOf: []string{"가족일상생활중배상책임", "가족일상배상책임"}},
		}},
		// the 6주미만 and 중대법규위반 variants pay for different accidents
		{Key: "교통사고처리지원금", Policy: PolicyFirstMatch, Clauses: []Clause{
			{Raw: true, AllOf: []string{"교통사고처리보장", "중상해보장확대"}},
			{AllOf: []string{"교통사고처리보장A"}, NoneOf: []string{"6주미만", "중대법규위반"}},
		}},
		// the grade 14 payout is roughly a thirtieth of the 4~14 grade amount
		// when the document does not print it
		{Key: "자동차사고부상14등급", Policy: PolicyFirstMatch, Clauses: []Clause{
			{ExtraField: models.ExtraGrade14Payout},
			{Raw: true, AllOf: []string{"사고부상", "4~14"}, Divisor: 30},
		}},
	}
}

// MaxSurgeryTier is the highest surgery tier a grouped-minimum rule can ask for
const MaxSurgeryTier = 7

// tierPatterns are the raw-name markers of a surgery tier
func tierPatterns(tier int) []string {
	return []string{
		fmt.Sprintf("[상해%d종]", tier),
		fmt.Sprintf("[질병%d종]", tier),
		fmt.Sprintf("〔상해%d종〕", tier),
		fmt.Sprintf("〔질병%d종〕", tier),
		fmt.Sprintf("_%d종수술", tier),
		fmt.Sprintf("_%d종 수술", tier),
		fmt.Sprintf("_%d종수술보험금", tier),
		fmt.Sprintf("_%d종 수술보험금", tier),
	}
}

// SurgeryTier returns the surgery tier a raw name is marked with
func SurgeryTier(name string) (int, bool) {
	for tier := 1; tier <= MaxSurgeryTier; tier++ {
		if containsAny(name, tierPatterns(tier)) {
			return tier, true
		}
	}
	return 0, false
}

// Total is an aggregated amount with the raw names that produced it
type Total struct {
	Label   string
	Amount  int64
	Sources []string
	tag     string
}

// Provenance renders the total as "[tag] label: source, source"
func (t Total) Provenance() string {
	return fmt.Sprintf("[%s] %s: %s", t.tag, t.Label, strings.Join(t.Sources, ", "))
}

const (
	sumTag     = "합산"
	minimumTag = "최소값"
)

// Aggregates holds the category totals and surgery-tier minimums of one
// document.
type Aggregates struct {
	categories map[string]Total
	tiers      map[int]Total
}

// Category returns the total for a category key
func (a Aggregates) Category(key string) (Total, bool) {
	t, ok := a.categories[key]
	return t, ok
}

// Tier returns the minimum for a surgery tier
func (a Aggregates) Tier(tier int) (Total, bool) {
	t, ok := a.tiers[tier]
	return t, ok
}

// Aggregate computes category totals and surgery-tier minimums for a
// document's items.
func Aggregate(items []models.RawCoverageItem, rules *RuleSet) Aggregates {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return aggregatePool(newPool(items, rules.normalizer), items, rules.categories)
}

// aggregatePool computes category totals over the pool and tier minimums
// over every item, so riders sharing a normalized key still compete.
func aggregatePool(p pool, items []models.RawCoverageItem, categories []Category) Aggregates {
	agg := Aggregates{
		categories: make(map[string]Total, len(categories)),
		tiers:      make(map[int]Total, MaxSurgeryTier),
	}

	for _, c := range categories {
		var (
			t  Total
			ok bool
		)
		switch c.Policy {
		case PolicySum:
			t, ok = sumCategory(c, p)
		case PolicyFirstMatch:
			t, ok = firstMatchCategory(c, p)
		}
		if ok {
			agg.categories[c.Key] = t
		}
	}

	for tier, t := range tierMinimums(items) {
		agg.tiers[tier] = t
	}
	return agg
}

func sumCategory(c Category, p pool) (Total, bool) {
	t := Total{Label: c.Key, tag: sumTag}
	for _, e := range p {
		for _, cl := range c.Clauses {
			v, ok := cl.value(e)
			if !ok {
				continue
			}
			t.Amount += v
			t.Sources = append(t.Sources, e.item.Name)
			break
		}
	}
	return t, t.Amount > 0
}

func firstMatchCategory(c Category, p pool) (Total, bool) {
	for _, cl := range c.Clauses {
		for _, e := range p {
			if v, ok := cl.value(e); ok {
				return Total{Label: c.Key, Amount: v, Sources: []string{e.item.Name}, tag: sumTag}, true
			}
		}
	}
	return Total{}, false
}

// tierMinimums keeps the smallest amount per surgery tier. An item counts
// towards the first tier it is marked with.
func tierMinimums(items []models.RawCoverageItem) map[int]Total {
	out := make(map[int]Total)
	for _, it := range items {
		tier, ok := SurgeryTier(it.Name)
		if !ok {
			continue
		}
		t, seen := out[tier]
		if !seen {
			t = Total{Label: fmt.Sprintf("%d종 수술", tier), Amount: it.Amount, tag: minimumTag}
		} else if it.Amount < t.Amount {
			t.Amount = it.Amount
		}
		t.Sources = append(t.Sources, it.Name)
		out[tier] = t
	}
	return out
}

// poolEntry is a raw item with its normalized key
type poolEntry struct {
	key  string
	item models.RawCoverageItem
}

// pool holds one entry per normalized key. An entry keeps the position of
// the key's first occurrence and the item of its last.
type pool []poolEntry

func newPool(items []models.RawCoverageItem, n *normalizer.Normalizer) pool {
	index := make(map[string]int, len(items))
	p := make(pool, 0, len(items))
	for _, it := range items {
		key := n.Normalize(it.Name)
		if i, seen := index[key]; seen {
			p[i].item = it
			continue
		}
		index[key] = len(p)
		p = append(p, poolEntry{key: key, item: it})
	}
	return p
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
