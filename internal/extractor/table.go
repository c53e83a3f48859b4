package extractor

import (
	"regexp"
	"strings"

	"insurance-coverage-reconciler/internal/document"
	"insurance-coverage-reconciler/internal/parsers"
)

// maxHeaderRow is the last row index searched for a table header
const maxHeaderRow = 5

// nameColumnMinRunes is how long a data cell must be to identify the name
// column.
const nameColumnMinRunes = 10

// coverageVocabulary identifies the coverage-name column from data rows
var coverageVocabulary = []string{
	"갱신형", "통합간편", "특별약관", "보험료납입",
	"일반상해", "질병", "수술", "진단", "입원", "배상",
	"골절", "화상", "사망", "후유장해", "치매", "암",
	"뇌혈관", "심장", "혈전",
	"보장특약", "무배당", "파워수술", "양성신생물",
}

// TableProfile parameterises TableStrategy for one family of layouts
type TableProfile struct {
	Name string

	// a page is only read when its text contains one of these
	PageKeywords []string

	// header row detection; HeaderExact compares whole cells instead of
	// substrings, HeaderWithAmount keeps looking until the amount column
	// has been found as well
	HeaderKeywords   []string
	HeaderExact      bool
	HeaderWithAmount bool
	AmountKeywords   []string

	// used when the name cell of a row is empty
	NameFallbackKeywords []string

	SkipContains []string
	SkipExact    []string

	// Boilerplate enables the filters for totals, ages and explanatory
	// sentences printed inside generic coverage tables
	Boilerplate bool

	// removed from the start of names, e.g. row numbers
	PrefixPattern *regexp.Regexp
	// removed anywhere in names, e.g. (필수)/(선택) markers
	StripPattern *regexp.Regexp

	MinNameRunes int
}

// GenericTableProfile is the issuer-agnostic table layout
func GenericTableProfile() TableProfile {
	return TableProfile{
		Name:         "generic_table",
		PageKeywords: []string{"특약", "담보", "가입금액", "보장내용", "보장내역", "가입담보", "보장항목"},
		HeaderKeywords: []string{
			"가입담보", "가입담보및보장내용", "담보명", "특약명",
			"보장명", "담보내용", "보장항목", "보장내용",
			"급부명", "보장담보", "보험종목", "보장종목",
		},
		AmountKeywords: []string{"가입금액", "보험가입금액", "보장금액"},
		SkipContains: []string{
			"주계약", "선택특약", "필수특약", "의무특약",
			"합계", "총보험료", "보장보험료", "보험료합계",
			"2회차이후", "1회차보험료", "계약자명",
			"보장보험료합계", "적립보험료", "할인보험료",
			"선택계약", "보험료사항",
			"보험료자동납입", "주의사항",
		},
		SkipExact:     []string{"기본계약"},
		Boilerplate:   true,
		PrefixPattern: regexp.MustCompile(`^┗?\s*\d+\s+`),
		StripPattern:  regexp.MustCompile(`\(필수\)|\(선택\)`),
		MinNameRunes:  5,
	}
}

// SamsungLifeTableProfile reads the contract-summary tables of Samsung Life
// documents.
func SamsungLifeTableProfile() TableProfile {
	return TableProfile{
		Name:                 "samsung_life_table",
		PageKeywords:         []string{"계약사항", "보험가입금액", "보장내용"},
		HeaderKeywords:       []string{"구분", "구분번호"},
		HeaderExact:          true,
		HeaderWithAmount:     true,
		AmountKeywords:       []string{"보험가입금액", "가입금액", "지급금액"},
		NameFallbackKeywords: []string{"보장특약", "수술", "진단", "사망", "무배당"},
		SkipContains:         []string{"합계보험료", "보험료", "경과년도", "납입기간", "보험기간"},
		PrefixPattern:        regexp.MustCompile(`^\d+\s+`),
		MinNameRunes:         5,
	}
}

// TableStrategy reads coverage rows out of page tables. The header row is
// located by keyword, the name column by looking at what the data rows
// contain, and the amount comes from the amount column or, failing that, the
// first cell of the row that parses as an amount.
type TableStrategy struct {
	profile TableProfile
}

// NewTableStrategy creates a table strategy for a profile
func NewTableStrategy(profile TableProfile) *TableStrategy {
	return &TableStrategy{profile: profile}
}

// Name implements Strategy
func (s *TableStrategy) Name() string {
	return s.profile.Name
}

// Extract implements Strategy
func (s *TableStrategy) Extract(doc *document.Document) Outcome {
	c := newCollector()
	for _, page := range doc.Pages {
		if !containsAny(page.Text, s.profile.PageKeywords) {
			continue
		}
		for _, table := range page.Tables {
			s.readTable(table, page.Number, c)
		}
	}
	return Found(c.items)
}

func (s *TableStrategy) readTable(table document.Table, page int, c *collector) {
	if len(table) < 2 {
		return
	}

	headerIdx, amountCol := s.findHeader(table)
	if headerIdx < 0 || amountCol < 0 {
		return
	}

	nameCol := findNameColumn(table[headerIdx+1:])
	if nameCol < 0 {
		return
	}

	for _, row := range table[headerIdx+1:] {
		if len(row) <= nameCol || len(row) <= amountCol {
			continue
		}

		name := row[nameCol]
		if name == "" && len(s.profile.NameFallbackKeywords) > 0 {
			for _, cell := range row {
				if runeLen(strings.TrimSpace(cell)) > nameColumnMinRunes && containsAny(cell, s.profile.NameFallbackKeywords) {
					name = cell
					break
				}
			}
		}
		name = collapseSpaces(name)
		if runeLen(name) < s.profile.MinNameRunes || s.skip(name) {
			continue
		}

		if s.profile.PrefixPattern != nil {
			name = strings.TrimSpace(s.profile.PrefixPattern.ReplaceAllString(name, ""))
		}
		if s.profile.StripPattern != nil {
			name = strings.TrimSpace(s.profile.StripPattern.ReplaceAllString(name, ""))
		}
		if runeLen(name) < s.profile.MinNameRunes {
			continue
		}

		amount, ok := rowAmount(row, amountCol, row[nameCol])
		if !ok {
			continue
		}
		c.add(name, amount, page)
	}
}

func (s *TableStrategy) findHeader(table document.Table) (headerIdx, amountCol int) {
	headerIdx, amountCol = -1, -1
	for i, row := range table {
		if i > maxHeaderRow {
			break
		}
		for j, cell := range row {
			clean := removeSpaces(cell)
			if clean == "" {
				continue
			}
			if s.headerMatch(clean) {
				headerIdx = i
			}
			if containsAny(clean, s.profile.AmountKeywords) {
				amountCol = j
			}
		}
		if headerIdx >= 0 && (!s.profile.HeaderWithAmount || amountCol >= 0) {
			break
		}
	}
	return headerIdx, amountCol
}

func (s *TableStrategy) headerMatch(cell string) bool {
	if s.profile.HeaderExact {
		return equalsAny(cell, s.profile.HeaderKeywords)
	}
	return containsAny(cell, s.profile.HeaderKeywords)
}

var (
	numericOnlyRe = regexp.MustCompile(`^[\d,.\s%원]+$`)
	ageTermRe     = regexp.MustCompile(`^\d+년\s*\(\d+세\)`)
)

func (s *TableStrategy) skip(name string) bool {
	compact := strings.ReplaceAll(name, " ", "")
	if equalsAny(compact, s.profile.SkipExact) || containsAny(compact, s.profile.SkipContains) {
		return true
	}
	if !s.profile.Boilerplate {
		return false
	}
	switch {
	case numericOnlyRe.MatchString(name):
		return true
	case ageTermRe.MatchString(compact):
		return true
	case strings.Contains(name, "경우") && strings.Contains(name, "지급"):
		return true
	case runeLen(name) > 100 && (strings.Contains(name, "보험기간") || strings.Contains(name, "최초계약")):
		return true
	}
	return false
}

// findNameColumn returns the first column whose data cells look like
// coverage names, or -1.
func findNameColumn(rows document.Table) int {
	for _, row := range rows {
		for j, cell := range row {
			cell = strings.TrimSpace(cell)
			if runeLen(cell) > nameColumnMinRunes && containsAny(cell, coverageVocabulary) {
				return j
			}
		}
	}
	return -1
}

// rowAmount reads the amount column, falling back to the first other cell
// that parses as a positive amount.
func rowAmount(row []string, amountCol int, nameCell string) (int64, bool) {
	if amountCol < len(row) && row[amountCol] != "" {
		if v, ok := parsers.ParseAmount(row[amountCol]); ok && v > 0 {
			return v, true
		}
	}
	for _, cell := range row {
		if cell == "" || cell == nameCell {
			continue
		}
		if v, ok := parsers.ParseAmount(cell); ok && v > 0 {
			return v, true
		}
	}
	return 0, false
}
