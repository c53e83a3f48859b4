package extractor

import (
	"regexp"
	"strings"

	"insurance-coverage-reconciler/internal/document"
	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/parsers"
)

const (
	miraeOverviewPages = 7
	miraeSectionPages  = 15
	miraeLookahead     = 4
	miraeMinNameRunes  = 2

	// amounts in the overview are printed in 만원
	miraeMaxManwon int64 = 100_000
	manwon         int64 = 10_000

	waiverKeyword = "납입면제"
)

var (
	miraeOverviewKeywords = []string{"보험종류", "보험가입금액"}

	miraeNoise = []string{
		"가입안내서", "발행번호", "Page", "FC :", "Tel :",
		"발행일시", "동일한 번호", "페이지로 구성",
	}
	miraeSkipExact = []string{
		"전기납", "월납", "연납", "0",
		"보험종류", "보험가입금액", "보험기간",
		"보험가입금액 (만원)", "보험료(원)",
		"가입 나이", "납입기간", "납입주기",
		"피보험자",
	}
	miraeCoverageKeywords = []string{
		"특약", "진단", "수술", "치료", "입원", "통원",
		"골절", "깁스", "사망", "장해", "배상", "벌금",
		"주계약", "보장", "보험금",
	}
	miraeContinuation = []string{"최초계약", "갱신형)", "형)", "5)", "간편고지"}

	markdownHeadingRe = regexp.MustCompile(`^#+\s*`)
	personGenderRe    = regexp.MustCompile(`([가-힣]{2,4})\((?:남자|여자)`)
	personLabelRe     = regexp.MustCompile(`피보험자\s+([가-힣]{2,4})`)
	leadingNumberRe   = regexp.MustCompile(`^[\s,]*(\d[\d,]*)`)
	numberLineRe      = regexp.MustCompile(`^(\d[\d,]*)$`)
	numericNoiseRe    = regexp.MustCompile(`^[\d,.\s원세년월납]+$`)
	termLineRe        = regexp.MustCompile(`^(?:최초계약|갱신계약|최대)\s+\d+`)
	startsWithDigitRe = regexp.MustCompile(`^\d`)
	manwonAmountRe    = regexp.MustCompile(`(\d[\d,]*)\s*만원`)
	initialContractRe = regexp.MustCompile(`\s*최초\s*계약`)
)

func cleanMiraeLine(line string) string {
	return strings.TrimSpace(markdownHeadingRe.ReplaceAllString(strings.TrimSpace(line), ""))
}

// cleanMiraeName cuts the renewal-term tail off an accumulated name
func cleanMiraeName(name string) string {
	name = cleanMiraeLine(name)
	if loc := initialContractRe.FindStringIndex(name); loc != nil {
		name = name[:loc[0]]
	}
	return strings.TrimSpace(name)
}

// DetectInsuredName finds the insured person's name, which Mirae documents
// print next to every coverage amount.
func DetectInsuredName(lines []string) (string, bool) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if m := personGenderRe.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
		if m := personLabelRe.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func overviewAmount(value string) (int64, bool) {
	v, ok := parsers.ParseDigits(value)
	if !ok || v < 1 || v > miraeMaxManwon {
		return 0, false
	}
	return v * manwon, true
}

// MiraeBlockStrategy reads the Mirae Asset contract overview. Coverage names
// wrap over several lines and are followed by a line holding the insured
// person's name and the amount in 만원; the name lines are buffered until
// that anchor line appears.
type MiraeBlockStrategy struct{}

// NewMiraeBlockStrategy creates the Mirae block strategy
func NewMiraeBlockStrategy() *MiraeBlockStrategy {
	return &MiraeBlockStrategy{}
}

// Name implements Strategy
func (s *MiraeBlockStrategy) Name() string {
	return "mirae_block"
}

// Extract implements Strategy
func (s *MiraeBlockStrategy) Extract(doc *document.Document) Outcome {
	var pages []document.Page
	for _, p := range doc.PageRange(0, miraeOverviewPages) {
		if containsAny(p.Text, miraeOverviewKeywords) {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		pages = doc.PageRange(0, miraeOverviewPages)
	}

	lines := linesOf(pages)
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.text
	}

	person, ok := DetectInsuredName(texts)
	if !ok {
		return Found(nil)
	}
	return Found(readMiraeBlocks(lines, person))
}

func readMiraeBlocks(lines []pageLine, person string) []models.RawCoverageItem {
	c := newCollector()
	buffer := ""

	for i, line := range lines {
		text := cleanMiraeLine(line.text)
		if text == "" || containsAny(text, miraeNoise) {
			continue
		}

		if strings.Contains(text, person) {
			amount, found := anchorAmount(text, person, lines[i+1:])
			if found && buffer != "" {
				name := cleanMiraeName(buffer)
				if runeLen(name) >= miraeMinNameRunes && !strings.Contains(name, waiverKeyword) {
					c.add(name, amount, line.page)
				}
			}
			buffer = ""
			continue
		}

		switch {
		case numericNoiseRe.MatchString(text),
			equalsAny(text, miraeSkipExact),
			strings.Contains(text, "가입금액") && strings.Contains(text, "만원"),
			termLineRe.MatchString(text):
			continue
		}

		if containsAny(text, miraeCoverageKeywords) {
			buffer = text
		} else if buffer != "" {
			if containsAny(text, miraeContinuation) ||
				(runeLen(text) > 3 && !startsWithDigitRe.MatchString(text)) {
				buffer += " " + text
			}
		}
	}
	return c.items
}

// anchorAmount reads the amount printed after the insured person's name, or
// on one of the following lines when the name ends the line.
func anchorAmount(text, person string, following []pageLine) (int64, bool) {
	after := strings.TrimSpace(text[strings.LastIndex(text, person)+len(person):])
	if m := leadingNumberRe.FindStringSubmatch(after); m != nil {
		return overviewAmount(m[1])
	}

	for j := 0; j < len(following) && j < miraeLookahead; j++ {
		m := numberLineRe.FindStringSubmatch(cleanMiraeLine(following[j].text))
		if m == nil {
			continue
		}
		if v, ok := overviewAmount(m[1]); ok {
			return v, true
		}
	}
	return 0, false
}

// MiraeBenefitStrategy reads the benefit-description section: a rider
// heading followed by a line with the payout in 만원.
type MiraeBenefitStrategy struct{}

// NewMiraeBenefitStrategy creates the Mirae benefit-section strategy
func NewMiraeBenefitStrategy() *MiraeBenefitStrategy {
	return &MiraeBenefitStrategy{}
}

// Name implements Strategy
func (s *MiraeBenefitStrategy) Name() string {
	return "mirae_benefit"
}

// Extract implements Strategy
func (s *MiraeBenefitStrategy) Extract(doc *document.Document) Outcome {
	c := newCollector()
	for _, page := range doc.PageRange(0, miraeSectionPages) {
		if !strings.Contains(page.Text, "보장내역") && !strings.Contains(page.Text, "지급사유") {
			continue
		}

		current := ""
		for _, line := range page.Lines() {
			text := cleanMiraeLine(line)
			if containsAny(text, []string{"특약", "주계약"}) && !strings.Contains(text, "대상") {
				current = cleanMiraeName(text)
			}

			m := manwonAmountRe.FindStringSubmatch(text)
			if m == nil || current == "" {
				continue
			}
			if v, ok := parsers.ParseDigits(m[1]); ok && v > 0 &&
				runeLen(current) >= miraeMinNameRunes && !strings.Contains(current, waiverKeyword) {
				c.add(current, v*manwon, page.Number)
			}
			current = ""
		}
	}
	return Found(c.items)
}

// mainBenefitNames maps the main-contract benefit to a standard item name.
// More specific phrases come first.
var mainBenefitNames = []struct {
	phrase string
	name   string
}{
	{"재해사망보험금", "주계약(재해사망)"},
	{"질병사망보험금", "주계약(질병사망)"},
	{"사망보험금", "주계약(일반사망)"},
	{"재해사망", "주계약(재해사망)"},
	{"일반사망", "주계약(일반사망)"},
}

var benefitBracketRe = regexp.MustCompile(`\[([^\]]+보험금[^\]]*)\]`)

// MainContractBenefitName maps a benefit heading such as "재해사망보험금" to
// the item name used for the main contract.
func MainContractBenefitName(benefit string) string {
	compact := strings.ReplaceAll(benefit, " ", "")
	for _, m := range mainBenefitNames {
		if strings.Contains(compact, m.phrase) {
			return m.name
		}
	}
	return "주계약(" + benefit + ")"
}

// MainContractEnricher names the main contract after the benefit it actually
// pays. Mirae overviews list it only as "주계약"; the benefit and its amount
// are in the main-contract benefit section.
type MainContractEnricher struct{}

// NewMainContractEnricher creates the Mirae main-contract enricher
func NewMainContractEnricher() *MainContractEnricher {
	return &MainContractEnricher{}
}

// Name implements Enricher
func (e *MainContractEnricher) Name() string {
	return "mirae_main_contract"
}

// Enrich implements Enricher
func (e *MainContractEnricher) Enrich(doc *document.Document, items []models.RawCoverageItem) []models.RawCoverageItem {
	name, amount, page, ok := findMainContractBenefit(doc)
	if !ok {
		return items
	}

	out := make([]models.RawCoverageItem, len(items))
	copy(out, items)
	for i, it := range out {
		if strings.Contains(it.Name, "주계약") {
			out[i].Name = name
			return out
		}
	}
	return append(out, models.RawCoverageItem{Name: name, Amount: amount, Page: page})
}

func findMainContractBenefit(doc *document.Document) (string, int64, int, bool) {
	for _, page := range doc.PageRange(0, miraeSectionPages) {
		if !strings.Contains(page.Text, "주계약 보장내역") {
			continue
		}

		inSection := false
		name := ""
		var amount int64
		for _, line := range page.Lines() {
			text := cleanMiraeLine(line)
			if strings.Contains(text, "주계약 보장내역") {
				inSection = true
				continue
			}
			if strings.Contains(text, "선택특약 보장내역") {
				break
			}
			if !inSection {
				continue
			}

			if m := benefitBracketRe.FindStringSubmatch(text); m != nil {
				name = MainContractBenefitName(strings.TrimSpace(m[1]))
			}
			if name != "" && amount == 0 {
				if m := manwonAmountRe.FindStringSubmatch(text); m != nil {
					if v, ok := parsers.ParseDigits(m[1]); ok {
						amount = v * manwon
					}
				}
			}
			if name != "" && amount > 0 {
				return name, amount, page.Number, true
			}
		}
	}
	return "", 0, 0, false
}
