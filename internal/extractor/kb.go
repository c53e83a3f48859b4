package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"insurance-coverage-reconciler/internal/document"
	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/internal/parsers"
)

const (
	kbMaxPages     = 10
	kbMaxIndex     = 500
	kbLookahead    = 5
	kbMinNameRunes = 2
)

var (
	kbPageKeywords = []string{"가입담보", "가입내용", "보장명", "가입금액"}

	kbSkipWords = []string{
		"주의사항", "고객콜센터", "홈페이지", "영업담당자",
		"발급일시", "계약자용", "장기", "제작",
		"납입형태", "계약사항", "피보험자님",
		"보장합계", "기타유의사항", "구분", "내용",
		"공통사항", "갱신시", "예상만기", "할인후",
		"보험료(원)", "납입|보험기간", "보장명",
		"가입금액", "www.", "1544",
	}

	kbNumberedRe = regexp.MustCompile(`^(\d{1,3})\s+(.+)`)
	kbNextItemRe = regexp.MustCompile(`^\d{1,3}\s+\S`)
	kbAmountRe   = regexp.MustCompile(`\d+천\d*백만원|\d+억\d*천?만?원|\d+천만원|\d+백만원|\d+만원`)

	// amount and term fragments left in a name when the amount is inline
	kbNameNoise = []*regexp.Regexp{
		regexp.MustCompile(`\d+천\d*백만원`),
		regexp.MustCompile(`\d+억\d*천?만?원?`),
		regexp.MustCompile(`\d+천만원`),
		regexp.MustCompile(`\d+백만원`),
		regexp.MustCompile(`\d+만원`),
		regexp.MustCompile(`[\d,]+\s*\d+년/\d+년`),
		regexp.MustCompile(`[\d,]+$`),
	}
)

// KBLineStrategy reads the numbered coverage list of KB documents:
// "<n> <name>" lines with the amount either inline or on one of the next few
// lines.
type KBLineStrategy struct{}

// NewKBLineStrategy creates the KB numbered-line strategy
func NewKBLineStrategy() *KBLineStrategy {
	return &KBLineStrategy{}
}

// Name implements Strategy
func (s *KBLineStrategy) Name() string {
	return "kb_line"
}

// Extract implements Strategy
func (s *KBLineStrategy) Extract(doc *document.Document) Outcome {
	c := newCollector()
	for _, page := range doc.PageRange(0, kbMaxPages) {
		if !containsAny(page.Text, kbPageKeywords) {
			continue
		}
		s.readPage(page, c)
	}
	return Found(c.items)
}

func (s *KBLineStrategy) readPage(page document.Page, c *collector) {
	lines := page.Lines()
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		m := kbNumberedRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if n, _ := strconv.Atoi(m[1]); n > kbMaxIndex {
			continue
		}
		name := strings.TrimSpace(m[2])
		if isKBSkipLine(name) {
			continue
		}

		if amount, ok := kbAmount(name); ok {
			if clean := cleanKBName(name); runeLen(clean) >= kbMinNameRunes {
				c.add(clean, amount, page.Number)
			}
			continue
		}

		for j := i + 1; j < len(lines) && j <= i+kbLookahead; j++ {
			next := strings.TrimSpace(lines[j])
			if next == "" {
				continue
			}
			if kbNextItemRe.MatchString(next) {
				break
			}
			if amount, ok := kbAmount(next); ok {
				if runeLen(name) >= kbMinNameRunes {
					c.add(name, amount, page.Number)
				}
				break
			}
		}
	}
}

func kbAmount(text string) (int64, bool) {
	token := kbAmountRe.FindString(text)
	if token == "" {
		return 0, false
	}
	v, ok := parsers.ParseAmount(token)
	return v, ok && v > 0
}

func isKBSkipLine(text string) bool {
	return containsAny(strings.ReplaceAll(text, " ", ""), kbSkipWords)
}

func cleanKBName(name string) string {
	for _, re := range kbNameNoise {
		name = re.ReplaceAllString(name, "")
	}
	return strings.TrimSpace(name)
}

var grade14Re = regexp.MustCompile(`(?:12[~\-]14급|12급[~\-]14급)\s*[:：]\s*(\d[\d,]*)\s*만원`)

// Grade14Enricher attaches the grade 12~14 traffic-injury payout, printed in
// the benefit description of KB documents, to the injury coverage it
// belongs to.
type Grade14Enricher struct{}

// NewGrade14Enricher creates the KB grade 14 enricher
func NewGrade14Enricher() *Grade14Enricher {
	return &Grade14Enricher{}
}

// Name implements Enricher
func (e *Grade14Enricher) Name() string {
	return "kb_grade14"
}

// Enrich implements Enricher
func (e *Grade14Enricher) Enrich(doc *document.Document, items []models.RawCoverageItem) []models.RawCoverageItem {
	m := grade14Re.FindStringSubmatch(doc.JoinedText(0, -1))
	if m == nil {
		return items
	}
	manwon, ok := parsers.ParseDigits(m[1])
	if !ok {
		return items
	}

	out := make([]models.RawCoverageItem, len(items))
	copy(out, items)
	for i, it := range out {
		if IsInjuryGradeItem(it.Name) {
			out[i] = it.WithExtra(models.ExtraGrade14Payout, manwon*10000)
			break
		}
	}
	return out
}

// IsInjuryGradeItem reports whether a raw name is the grade 4~14 traffic
// injury coverage.
func IsInjuryGradeItem(name string) bool {
	return strings.Contains(name, "사고부상") && strings.Contains(name, "4~14")
}
