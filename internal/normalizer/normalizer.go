// Package normalizer derives comparison keys from coverage names.
//
// Raw names extracted from policy documents carry issuer boilerplate such as
// renewal markers, simplified-underwriting annotations and rider qualifiers.
// Normalize strips that boilerplate with an ordered, data-driven list of
// rewrite rules and then canonicalises spacing and punctuation. Template
// labels are already canonical, so NormalizeLabel skips the rewrite rules.
//
// Both transforms are idempotent: they are applied until the output stops
// changing.
package normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Family groups the rewrite rules by the issuer whose boilerplate they strip.
type Family string

const (
	FamilyMeritz      Family = "meritz"
	FamilySamsungLife Family = "samsung_life"
	FamilyMirae       Family = "mirae"
	FamilyKB          Family = "kb"
)

// Rule is one pattern/replacement pair of the rewrite cascade.
type Rule struct {
	Family      Family
	Pattern     *regexp.Regexp
	Replacement string
}

func rule(f Family, pattern, replacement string) Rule {
	return Rule{Family: f, Pattern: regexp.MustCompile(pattern), Replacement: replacement}
}

// defaultRules are applied in order. Later patterns assume earlier ones have
// removed the wrapping punctuation they target.
var defaultRules = []Rule{
	rule(FamilyMeritz, `^┗\s*`, ""),
	rule(FamilyMeritz, `^\([^)]*갱신\)\s*`, ""),
	rule(FamilyMeritz, `갱신형\s*`, ""),
	rule(FamilyMeritz, `\(통합간편[^)]*\)`, ""),
	rule(FamilyMeritz, `\[기본계약\]`, ""),
	rule(FamilyMeritz, `\(연간\d+회한?\)`, ""),
	rule(FamilyMeritz, `\(급여[,)]\s*`, "("),
	rule(FamilyMeritz, `^\(\s*`, ""),
	rule(FamilyMeritz, `\(\d+%체증형\)`, ""),
	rule(FamilyMeritz, `\(1-\d+종\)`, ""),

	rule(FamilySamsungLife, `\(갱신형,\s*무배당\)`, ""),
	rule(FamilySamsungLife, `\(갱신형\)`, ""),
	rule(FamilySamsungLife, `\(무배당\)`, ""),
	rule(FamilySamsungLife, `보장특약[1-5]*U?`, ""),
	rule(FamilySamsungLife, `특약[1-5]*U?`, ""),
	rule(FamilySamsungLife, `U$`, ""),

	rule(FamilyMirae, `\(간편고지형\(\d+\)[,\s]*갱신형\)`, ""),
	rule(FamilyMirae, `\(간편고지형\(\d+\)\)`, ""),
	rule(FamilyMirae, `최초계약`, ""),
	rule(FamilyMirae, `##\s*`, ""),

	rule(FamilyKB, `\(운전자\)`, ""),
	rule(FamilyKB, `\(기본계약\)`, ""),
	rule(FamilyKB, `\(비탑승중포함\)`, ""),
	rule(FamilyKB, `\(경찰조사포함\)`, ""),
	rule(FamilyKB, `\(스쿨존사고\s*\d+천?만원한도\)`, ""),
	rule(FamilyKB, `\(중상해보장확대\)`, ""),
	rule(FamilyKB, `\(중대법규위반[^)]*\)`, ""),
	rule(FamilyKB, `\(대물\)`, ""),
	rule(FamilyKB, `\(치아파절포함\)`, ""),
	rule(FamilyKB, `\(치아파절제외\)`, ""),
	rule(FamilyKB, `\(1일\d+회한[,\s]*연간\d+회한[,\s]*급여\)`, ""),
	rule(FamilyKB, `\(1일\d+회한[,\s]*연간\d+회한\)`, ""),
	rule(FamilyKB, `\(\d+~\d+급\)`, ""),
	rule(FamilyKB, `\(\d+급\)`, ""),
}

// DefaultRules returns a copy of the built-in rewrite cascade.
func DefaultRules() []Rule {
	rules := make([]Rule, len(defaultRules))
	copy(rules, defaultRules)
	return rules
}

var romanNumerals = strings.NewReplacer("Ⅰ", "1", "Ⅱ", "2", "Ⅲ", "3", "Ⅳ", "4", "Ⅴ", "5")

var (
	spaceAndSeparatorRe = regexp.MustCompile(`[\s\-_.·]+`)
	emptyParensRe       = regexp.MustCompile(`\(\s*\)|\[\s*\]`)
)

// maxPasses bounds the fixpoint loop; every rule shortens or keeps the
// string, so real names settle in two or three passes.
const maxPasses = 8

// Normalizer applies a rewrite cascade. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	rules []Rule
}

// New creates a normalizer with the given cascade.
func New(rules []Rule) *Normalizer {
	return &Normalizer{rules: rules}
}

var defaultNormalizer = New(defaultRules)

// Default returns the normalizer built from DefaultRules.
func Default() *Normalizer {
	return defaultNormalizer
}

// Normalize returns the comparison key for a document-derived name.
func (n *Normalizer) Normalize(raw string) string {
	return fixpoint(raw, func(s string) string {
		s = prepare(s)
		for _, r := range n.rules {
			s = r.Pattern.ReplaceAllString(s, r.Replacement)
		}
		return canonicalize(s)
	})
}

// NormalizeLabel returns the comparison key for a template label. It skips
// the rewrite cascade.
func (n *Normalizer) NormalizeLabel(label string) string {
	return fixpoint(label, func(s string) string {
		return canonicalize(prepare(s))
	})
}

// Normalize uses the default normalizer.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// NormalizeLabel uses the default normalizer.
func NormalizeLabel(label string) string {
	return defaultNormalizer.NormalizeLabel(label)
}

func prepare(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFC.String(s)
	return romanNumerals.Replace(s)
}

func canonicalize(s string) string {
	s = width.Fold.String(s)
	s = spaceAndSeparatorRe.ReplaceAllString(s, "")
	s = emptyParensRe.ReplaceAllString(s, "")
	return s
}

func fixpoint(s string, pass func(string) string) string {
	for i := 0; i < maxPasses; i++ {
		next := pass(s)
		if next == s {
			return next
		}
		s = next
	}
	return s
}
