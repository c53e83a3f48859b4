package extractor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insurance-coverage-reconciler/internal/document"
	"insurance-coverage-reconciler/internal/models"
	"insurance-coverage-reconciler/pkg/errors"
	"insurance-coverage-reconciler/pkg/logger"
)

type fakeStrategy struct {
	name    string
	outcome Outcome
	calls   int
	panics  bool
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(doc *document.Document) Outcome {
	f.calls++
	if f.panics {
		panic("boom")
	}
	return f.outcome
}

type suffixEnricher struct{}

func (suffixEnricher) Name() string { return "suffix" }

func (suffixEnricher) Enrich(doc *document.Document, items []models.RawCoverageItem) []models.RawCoverageItem {
	out := make([]models.RawCoverageItem, len(items))
	for i, it := range items {
		it.Name += "!"
		out[i] = it
	}
	return out
}

func item(name string, amount int64) models.RawCoverageItem {
	return models.RawCoverageItem{Name: name, Amount: amount}
}

func pagesDoc(texts ...string) *document.Document {
	doc := &document.Document{Name: "test.json"}
	for i, t := range texts {
		doc.Pages = append(doc.Pages, document.Page{Number: i + 1, Text: t})
	}
	return doc
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: logger.TextFormat, Output: logger.StderrOutput})
	require.NoError(t, err)
	return log
}

func TestFoundDedupes(t *testing.T) {
	out := Found([]models.RawCoverageItem{item("a", 1), item("b", 2), item("a", 3)})
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []models.RawCoverageItem{item("a", 1), item("b", 2)}, out.Items)

	assert.Equal(t, StatusEmpty, Found(nil).Status)
	assert.Equal(t, "empty", StatusEmpty.String())
}

func TestChainRun(t *testing.T) {
	t.Run("first non-empty stage wins", func(t *testing.T) {
		empty := &fakeStrategy{name: "empty", outcome: Found(nil)}
		hit := &fakeStrategy{name: "hit", outcome: Found([]models.RawCoverageItem{item("x", 1)})}
		never := &fakeStrategy{name: "never", outcome: Found([]models.RawCoverageItem{item("y", 1)})}

		result, err := Chain{Stages: []Strategy{empty, hit, never}}.Run(pagesDoc("p"))
		require.NoError(t, err)
		assert.Equal(t, "hit", result.Strategy)
		assert.Equal(t, []models.RawCoverageItem{item("x", 1)}, result.Items)
		assert.Equal(t, 1, empty.calls)
		assert.Equal(t, 1, hit.calls)
		assert.Equal(t, 0, never.calls)
		assert.Len(t, result.Attempts, 2)
	})

	t.Run("failure stops the chain", func(t *testing.T) {
		failing := &fakeStrategy{name: "failing", outcome: Failed(fmt.Errorf("bad layout"))}
		next := &fakeStrategy{name: "next", outcome: Found([]models.RawCoverageItem{item("y", 1)})}

		_, err := Chain{Stages: []Strategy{failing, next}}.Run(pagesDoc("p"))
		require.Error(t, err)
		rerr, ok := errors.AsReconcilerError(err)
		require.True(t, ok)
		assert.Equal(t, errors.CodeExtractionFailed, rerr.Code)
		assert.Equal(t, "failing", rerr.Context["strategy"])
		assert.Equal(t, 0, next.calls)
	})

	t.Run("panic becomes failure", func(t *testing.T) {
		_, err := Chain{Stages: []Strategy{&fakeStrategy{name: "p", panics: true}}}.Run(pagesDoc("p"))
		require.Error(t, err)
	})

	t.Run("all empty runs enrichers on nothing", func(t *testing.T) {
		result, err := Chain{
			Stages:    []Strategy{&fakeStrategy{name: "e", outcome: Found(nil)}},
			Enrichers: []Enricher{suffixEnricher{}},
		}.Run(pagesDoc("p"))
		require.NoError(t, err)
		assert.Empty(t, result.Items)
		assert.Equal(t, "", result.Strategy)
	})

	t.Run("enrichers see the winning items", func(t *testing.T) {
		result, err := Chain{
			Stages:    []Strategy{&fakeStrategy{name: "s", outcome: Found([]models.RawCoverageItem{item("a", 1)})}},
			Enrichers: []Enricher{suffixEnricher{}},
		}.Run(pagesDoc("p"))
		require.NoError(t, err)
		assert.Equal(t, "a!", result.Items[0].Name)
	})
}

func TestChainFor(t *testing.T) {
	tests := []struct {
		issuer    models.Issuer
		stages    []string
		enrichers []string
	}{
		{issuer: models.IssuerSamsungLife, stages: []string{"samsung_life_line", "samsung_life_table", "generic_table"}},
		{issuer: models.IssuerKB, stages: []string{"kb_line", "generic_table"}, enrichers: []string{"kb_grade14"}},
		{issuer: models.IssuerMirae, stages: []string{"mirae_block", "mirae_benefit", "generic_table"}, enrichers: []string{"mirae_main_contract"}},
		{issuer: models.IssuerMeritz, stages: []string{"generic_table"}},
		{issuer: models.IssuerGeneric, stages: []string{"generic_table"}},
	}

	for _, tt := range tests {
		t.Run(tt.issuer.String(), func(t *testing.T) {
			chain := ChainFor(tt.issuer)
			var stages, enrichers []string
			for _, s := range chain.Stages {
				stages = append(stages, s.Name())
			}
			for _, e := range chain.Enrichers {
				enrichers = append(enrichers, e.Name())
			}
			assert.Equal(t, tt.stages, stages)
			assert.Equal(t, tt.enrichers, enrichers)
		})
	}
}

const kbCoveragePage = `가입담보 및 가입금액
1 자동차사고벌금(대물) 500만원
2 교통사고처리지원금(중상해보장확대)
20년/100세
1억원
3 자동차사고부상치료비(4~14급)
30만원
4 고객콜센터 1544-0114
5 자동차사고벌금(대물) 500만원`

func kbDocument() *document.Document {
	return pagesDoc(
		"KB손해보험\nKB 플러스 운전자보험(무배당)\n실납입보험료 35,000원",
		kbCoveragePage,
		"자동차사고부상 등급별 지급액\n12~14급 : 20만원",
	)
}

func TestKBLineStrategy(t *testing.T) {
	out := NewKBLineStrategy().Extract(kbDocument())
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []models.RawCoverageItem{
		{Name: "자동차사고벌금(대물)", Amount: 5_000_000, Page: 2},
		{Name: "교통사고처리지원금(중상해보장확대)", Amount: 100_000_000, Page: 2},
		{Name: "자동차사고부상치료비(4~14급)", Amount: 300_000, Page: 2},
	}, out.Items)
}

func TestKBLineStrategyIgnoresOtherPages(t *testing.T) {
	out := NewKBLineStrategy().Extract(pagesDoc("1 상해사망 1억원"))
	assert.Equal(t, StatusEmpty, out.Status)
}

func TestGrade14Enricher(t *testing.T) {
	doc := kbDocument()
	items := NewKBLineStrategy().Extract(doc).Items

	enriched := NewGrade14Enricher().Enrich(doc, items)

	v, ok := enriched[2].ExtraValue(models.ExtraGrade14Payout)
	require.True(t, ok)
	assert.Equal(t, int64(200_000), v)
	_, ok = items[2].ExtraValue(models.ExtraGrade14Payout)
	assert.False(t, ok, "input items must not be modified")

	plain := NewGrade14Enricher().Enrich(pagesDoc("no payout table"), items)
	assert.Equal(t, items, plain)
}

func TestKBLineStrategyLookaheadIsBounded(t *testing.T) {
	filler := []string{"20년/100세", "전기납", "월납", "갱신형", "세부내용 참조", "비갱신"}

	tests := []struct {
		name    string
		gap     int
		matched bool
	}{
		{name: "amount on the next line", gap: 0, matched: true},
		{name: "amount on the fifth line", gap: 4, matched: true},
		{name: "amount on the sixth line", gap: 5, matched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := append([]string{"가입담보 및 가입금액", "1 상해수술비"}, filler[:tt.gap]...)
			lines = append(lines, "300만원", "2 질병입원일당", "2만원")

			out := NewKBLineStrategy().Extract(pagesDoc(strings.Join(lines, "\n")))
			require.Equal(t, StatusSuccess, out.Status)

			want := []models.RawCoverageItem{{Name: "질병입원일당", Amount: 20_000, Page: 1}}
			if tt.matched {
				want = append([]models.RawCoverageItem{{Name: "상해수술비", Amount: 3_000_000, Page: 1}}, want...)
			}
			assert.Equal(t, want, out.Items)
		})
	}
}

func TestSamsungLifeLookaheadIsBounded(t *testing.T) {
	filler := []string{"20년갱신", "전기납", "월납"}

	tests := []struct {
		name    string
		gap     int
		matched bool
	}{
		{name: "amount on the next line", gap: 0, matched: true},
		{name: "amount on the third line", gap: 2, matched: true},
		{name: "amount on the fourth line", gap: 3, matched: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := append([]string{"1 질병수술보장특약"}, filler[:tt.gap]...)
			lines = append(lines, "100만원")

			out := NewSamsungLifeLineStrategy().Extract(pagesDoc(strings.Join(lines, "\n")))
			if !tt.matched {
				assert.Equal(t, StatusEmpty, out.Status)
				return
			}
			require.Equal(t, StatusSuccess, out.Status)
			assert.Equal(t, []models.RawCoverageItem{{Name: "질병수술보장특약", Amount: 1_000_000, Page: 1}}, out.Items)
		})
	}
}

func TestSamsungLifeLineStrategy(t *testing.T) {
	doc := pagesDoc(
		"삼성생명 종신보험", "", "", "",
		"10 무배당 암진단특약 3,000만원 20년갱신\n"+
			"11 파워수술보장특약Ⅱ(갱신형)\n100만원\n"+
			"12 합계보험료 50,000원 20년갱신\n"+
			"재해사망 보험금 1억원",
		"", "", "",
		"99 암수술특약 500만원",
	)

	out := NewSamsungLifeLineStrategy().Extract(doc)
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []models.RawCoverageItem{
		{Name: "무배당 암진단특약", Amount: 30_000_000, Page: 5},
		{Name: "파워수술보장특약Ⅱ(갱신형)", Amount: 1_000_000, Page: 5},
		{Name: MainDisasterDeathName, Amount: 100_000_000, Page: 5},
	}, out.Items)
}

func TestSamsungLifeLineStrategyShortDocument(t *testing.T) {
	out := NewSamsungLifeLineStrategy().Extract(pagesDoc("1 질병수술보장특약 20만원"))
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "질병수술보장특약", out.Items[0].Name)
	assert.Equal(t, int64(200_000), out.Items[0].Amount)
}

const miraeOverview = `미래에셋생명
보험종류 보험가입금액
피보험자 홍길동
## 암진단특약(간편고지형(3))
최초계약 20년
홍길동 3,000
수술특약
홍길동
500
납입면제특약
홍길동 10
주계약
홍길동 1,000
가입안내서 Page 1`

func TestMiraeBlockStrategy(t *testing.T) {
	out := NewMiraeBlockStrategy().Extract(pagesDoc(miraeOverview))
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []models.RawCoverageItem{
		{Name: "암진단특약(간편고지형(3))", Amount: 30_000_000, Page: 1},
		{Name: "수술특약", Amount: 5_000_000, Page: 1},
		{Name: "주계약", Amount: 10_000_000, Page: 1},
	}, out.Items)
}

func TestMiraeBlockStrategyClearsBufferWithoutAmount(t *testing.T) {
	doc := pagesDoc(`보험종류 보험가입금액
피보험자 홍길동
골절진단특약
홍길동
(갱신형)
홍길동 500
수술특약
홍길동 300`)

	out := NewMiraeBlockStrategy().Extract(doc)
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []models.RawCoverageItem{
		{Name: "수술특약", Amount: 3_000_000, Page: 1},
	}, out.Items)
	for _, it := range out.Items {
		assert.NotContains(t, it.Name, "골절")
	}
}

func TestMiraeBlockStrategyWithoutInsuredName(t *testing.T) {
	out := NewMiraeBlockStrategy().Extract(pagesDoc("보험종류\n암진단특약\n3,000"))
	assert.Equal(t, StatusEmpty, out.Status)
}

func TestDetectInsuredName(t *testing.T) {
	name, ok := DetectInsuredName([]string{"계약자 정보", "김영희(여자, 45세)"})
	require.True(t, ok)
	assert.Equal(t, "김영희", name)

	_, ok = DetectInsuredName([]string{"no names here"})
	assert.False(t, ok)
}

const miraeBenefits = `보장내역
## 골절진단특약
골절 진단시 10만원
장해 대상 특약
입원특약
입원 1일당 3만원
납입면제특약
면제 1만원`

func TestMiraeBenefitStrategy(t *testing.T) {
	out := NewMiraeBenefitStrategy().Extract(pagesDoc(miraeBenefits))
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []models.RawCoverageItem{
		{Name: "골절진단특약", Amount: 100_000, Page: 1},
		{Name: "입원특약", Amount: 30_000, Page: 1},
	}, out.Items)
}

const miraeMainSection = `주계약 보장내역
[재해사망보험금]
재해로 사망시 5,000만원
선택특약 보장내역
[암진단보험금] 3,000만원`

func TestMainContractEnricher(t *testing.T) {
	doc := pagesDoc(miraeOverview, miraeMainSection)
	e := NewMainContractEnricher()

	renamed := e.Enrich(doc, []models.RawCoverageItem{item("수술특약", 1), item("주계약", 10_000_000)})
	assert.Equal(t, []models.RawCoverageItem{item("수술특약", 1), item("주계약(재해사망)", 10_000_000)}, renamed)

	appended := e.Enrich(doc, []models.RawCoverageItem{item("수술특약", 1)})
	require.Len(t, appended, 2)
	assert.Equal(t, models.RawCoverageItem{Name: "주계약(재해사망)", Amount: 50_000_000, Page: 2}, appended[1])
}

func TestMainContractBenefitName(t *testing.T) {
	tests := map[string]string{
		"재해사망보험금":  "주계약(재해사망)",
		"질병사망보험금":  "주계약(질병사망)",
		"사망 보험금":   "주계약(일반사망)",
		"일반사망":     "주계약(일반사망)",
		"암진단보험금":   "주계약(암진단보험금)",
	}
	for in, want := range tests {
		assert.Equal(t, want, MainContractBenefitName(in), in)
	}
}

func genericTableDoc() *document.Document {
	return &document.Document{Name: "meritz.pdf", Pages: []document.Page{
		{Number: 1, Text: "메리츠화재\n(무) 메리츠 알파Plus보장보험(2404)\n합계보험료 52,300원"},
		{Number: 2, Text: "가입담보 및 보장내용", Tables: []document.Table{{
			{"구분", "가입담보", "가입금액", "보험료"},
			{"1", "갱신형 질병수술비(1-5종) 보장", "30만원", "1,200"},
			{"2", "합계", "", "1,200"},
			{"3", "상해사망 보장 특별약관", "", "1억원"},
			{"4", "골절진단비", "10만원", "300"},
		}}},
		{Number: 3, Text: "안내", Tables: []document.Table{{
			{"가입담보", "가입금액"},
			{"암진단비 보장 특별약관", "1천만원"},
		}}},
	}}
}

func TestGenericTableStrategy(t *testing.T) {
	out := NewTableStrategy(GenericTableProfile()).Extract(genericTableDoc())
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []models.RawCoverageItem{
		{Name: "갱신형 질병수술비(1-5종) 보장", Amount: 300_000, Page: 2},
		{Name: "상해사망 보장 특별약관", Amount: 100_000_000, Page: 2},
		{Name: "골절진단비", Amount: 100_000, Page: 2},
	}, out.Items)
}

func TestSamsungLifeTableProfile(t *testing.T) {
	doc := &document.Document{Name: "s.pdf", Pages: []document.Page{
		{Number: 1, Text: "계약사항", Tables: []document.Table{{
			{"구분", "보장내용", "보험가입금액"},
			{"1", "1 무배당 뇌출혈진단보장특약", "2,000만원"},
			{"2", "", "무배당 급성심근경색보장특약", "1,000만원"},
			{"3", "보험료 납입기간", "20년"},
		}}},
	}}

	out := NewTableStrategy(SamsungLifeTableProfile()).Extract(doc)
	require.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, []models.RawCoverageItem{
		{Name: "무배당 뇌출혈진단보장특약", Amount: 20_000_000, Page: 1},
		{Name: "무배당 급성심근경색보장특약", Amount: 10_000_000, Page: 1},
	}, out.Items)
}

func TestExtractDocument(t *testing.T) {
	ext := New(testLogger(t))

	t.Run("kb", func(t *testing.T) {
		info, err := ext.ExtractDocument(kbDocument())
		require.NoError(t, err)
		assert.Equal(t, models.IssuerKB, info.Issuer)
		assert.Equal(t, "KB손해보험", info.IssuerName)
		assert.Equal(t, "KB 플러스 운전자보험", info.ProductName)
		require.True(t, info.HasPremium())
		assert.Equal(t, int64(35_000), *info.Premium)
		assert.Equal(t, "kb_line", info.Strategy)
		assert.Equal(t, 3, info.PageCount)
		require.Len(t, info.Coverages, 3)
		v, ok := info.Coverages[2].ExtraValue(models.ExtraGrade14Payout)
		assert.True(t, ok)
		assert.Equal(t, int64(200_000), v)
	})

	t.Run("mirae", func(t *testing.T) {
		info, err := ext.ExtractDocument(pagesDoc(miraeOverview, miraeMainSection))
		require.NoError(t, err)
		assert.Equal(t, models.IssuerMirae, info.Issuer)
		assert.Equal(t, "mirae_block", info.Strategy)
		assert.Equal(t, "주계약(재해사망)", info.Coverages[2].Name)
	})

	t.Run("generic", func(t *testing.T) {
		info, err := ext.ExtractDocument(genericTableDoc())
		require.NoError(t, err)
		assert.Equal(t, models.IssuerMeritz, info.Issuer)
		assert.Equal(t, "메리츠 알파Plus보장보험", info.ProductName)
		assert.Equal(t, int64(52_300), *info.Premium)
		assert.Equal(t, "generic_table", info.Strategy)
		assert.Len(t, info.Coverages, 3)
	})

	t.Run("nothing recognisable", func(t *testing.T) {
		info, err := ext.ExtractDocument(pagesDoc("hello"))
		require.NoError(t, err)
		assert.Equal(t, models.IssuerGeneric, info.Issuer)
		assert.Equal(t, models.UnknownProductName, info.ProductName)
		assert.Nil(t, info.Premium)
		assert.NotNil(t, info.Coverages)
		assert.Empty(t, info.Coverages)
	})

	t.Run("nil document", func(t *testing.T) {
		_, err := ext.ExtractDocument(nil)
		assert.Error(t, err)
	})
}
