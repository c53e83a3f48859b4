package extractor

import (
	"regexp"
	"strings"

	"insurance-coverage-reconciler/internal/document"
	"insurance-coverage-reconciler/internal/parsers"
)

// Samsung Life prints the coverage list on pages 5 to 8
const (
	samsungLifeFirstPage = 4
	samsungLifeLastPage  = 8

	samsungLifeLookahead    = 3
	samsungLifeMinNameRunes = 5

	// MainDisasterDeathName is the item emitted for the main-policy
	// disaster death benefit.
	MainDisasterDeathName = "주보험 재해사망"
)

const samsungAmountPattern = `\d[\d,]*(?:억|천만|백만|만|천)?원`

var (
	samsungRowRe      = regexp.MustCompile(`^(\d{1,4})\s+(.+?)\s+(` + samsungAmountPattern + `)\s+(\d+년갱신)`)
	samsungNumberedRe = regexp.MustCompile(`^(\d{1,4})\s+(.+)`)
	samsungAmountRe   = regexp.MustCompile(samsungAmountPattern)
	samsungLeadAmtRe  = regexp.MustCompile(`^` + samsungAmountPattern)

	samsungRowSkip          = []string{"합계보험료", "주보험"}
	samsungCoverageKeywords = []string{
		"보장특약", "수술", "진단", "사망", "무배당",
		"양성신생물", "파워수술", "질병", "재해", "여성특정",
	}
)

// SamsungLifeLineStrategy reads Samsung Life coverage rows of the form
// "<n> <name> <amount> <n>년갱신", numbered coverage lines with an inline or
// following amount, and the main-policy disaster death line.
type SamsungLifeLineStrategy struct{}

// NewSamsungLifeLineStrategy creates the Samsung Life line strategy
func NewSamsungLifeLineStrategy() *SamsungLifeLineStrategy {
	return &SamsungLifeLineStrategy{}
}

// Name implements Strategy
func (s *SamsungLifeLineStrategy) Name() string {
	return "samsung_life_line"
}

// Extract implements Strategy
func (s *SamsungLifeLineStrategy) Extract(doc *document.Document) Outcome {
	pages := doc.Pages
	if doc.PageCount() > samsungLifeFirstPage {
		pages = doc.PageRange(samsungLifeFirstPage, samsungLifeLastPage)
	}
	lines := linesOf(pages)

	c := newCollector()
	for i, line := range lines {
		if line.text == "" {
			continue
		}

		if m := samsungRowRe.FindStringSubmatch(line.text); m != nil {
			name := strings.TrimSpace(m[2])
			amount, ok := parsers.ParseAmount(m[3])
			if ok && runeLen(name) >= samsungLifeMinNameRunes && !containsAny(removeSpaces(name), samsungRowSkip) {
				c.add(name, amount, line.page)
			}
			continue
		}

		if m := samsungNumberedRe.FindStringSubmatch(line.text); m != nil {
			name := strings.TrimSpace(m[2])
			if containsAny(name, samsungCoverageKeywords) {
				s.readNumbered(name, lines, i, line.page, c)
				continue
			}
		}

		if strings.Contains(line.text, "재해사망") && strings.Contains(line.text, "보험금") {
			if token := samsungAmountRe.FindString(line.text); token != "" && !c.has(MainDisasterDeathName) {
				if amount, ok := parsers.ParseAmount(token); ok {
					c.add(MainDisasterDeathName, amount, line.page)
				}
			}
		}
	}
	return Found(c.items)
}

func (s *SamsungLifeLineStrategy) readNumbered(name string, lines []pageLine, i, page int, c *collector) {
	if loc := samsungAmountRe.FindStringIndex(name); loc != nil {
		amount, ok := parsers.ParseAmount(name[loc[0]:loc[1]])
		trimmed := strings.TrimSpace(name[:loc[0]])
		if ok && runeLen(trimmed) >= samsungLifeMinNameRunes {
			c.add(trimmed, amount, page)
		}
		return
	}

	for j := i + 1; j < len(lines) && j <= i+samsungLifeLookahead; j++ {
		token := samsungLeadAmtRe.FindString(lines[j].text)
		if token == "" {
			continue
		}
		if amount, ok := parsers.ParseAmount(token); ok && runeLen(name) >= samsungLifeMinNameRunes {
			c.add(name, amount, page)
		}
		return
	}
}
