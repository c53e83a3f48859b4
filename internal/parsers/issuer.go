package parsers

import (
	"strings"

	"insurance-coverage-reconciler/internal/models"
)

// issuerKeyword pairs a marker found in early page text with its issuer.
type issuerKeyword struct {
	keyword string
	issuer  models.Issuer
}

// issuerKeywords is checked in order; qualified names come before the bare
// brand tokens they contain.
var issuerKeywords = []issuerKeyword{
	{"삼성생명", models.IssuerSamsungLife},
	{"삼성화재", models.IssuerSamsung},
	{"메리츠화재", models.IssuerMeritz},
	{"메리츠", models.IssuerMeritz},
	{"미래에셋생명", models.IssuerMirae},
	{"미래에셋", models.IssuerMirae},
	{"KB손해", models.IssuerKB},
	{"KB손보", models.IssuerKB},
	{"KB 플러스", models.IssuerKB},
	{"KB플러스", models.IssuerKB},
	{"DB손해", models.IssuerDB},
	{"DB손보", models.IssuerDB},
	{"ABL", models.IssuerABL},
	{"에이비엘", models.IssuerABL},
	{"흥국", models.IssuerHeungkuk},
	{"한화", models.IssuerHanwha},
	{"현대해상", models.IssuerHyundai},
	{"롯데손해", models.IssuerLotte},
	{"NH농협", models.IssuerNH},
	{"동양생명", models.IssuerDongyang},
	{"교보생명", models.IssuerKyobo},
	{"신한라이프", models.IssuerShinhan},
}

const (
	kbDomainToken = "kbinsure"
	samsungBrand  = "삼성"
)

// samsungLifeHints separate Samsung Life product pages from Samsung Fire
// when neither company name is printed.
var samsungLifeHints = []string{"생명보험", "건강보험", "종신보험", "The간편한", "다모은"}

// IssuerPages is how many leading pages are inspected for issuer markers.
const IssuerPages = 3

// DetectIssuer classifies a document from the text of its first pages.
// It returns false when no issuer marker is present.
func DetectIssuer(text string) (models.Issuer, bool) {
	for _, k := range issuerKeywords {
		if strings.Contains(text, k.keyword) {
			return k.issuer, true
		}
	}

	if strings.Contains(strings.ToLower(text), kbDomainToken) {
		return models.IssuerKB, true
	}

	if strings.Contains(text, samsungBrand) {
		if containsAny(text, samsungLifeHints) {
			return models.IssuerSamsungLife, true
		}
		return models.IssuerSamsung, true
	}

	return models.IssuerGeneric, false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
