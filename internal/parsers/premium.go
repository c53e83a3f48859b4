package parsers

import "regexp"

// PremiumPages is how many leading pages are searched for the premium.
const PremiumPages = 7

// MinPremium filters page numbers and counts that sit next to a 보험료 label.
const MinPremium int64 = 1000

// premiumPatterns are ordered from the most to the least specific label.
var premiumPatterns = []*regexp.Regexp{
	regexp.MustCompile(`실납입보험료\s*([\d,]+)\s*원`),
	regexp.MustCompile(`1회차보험료\(할인후\)\s*([\d,]+)\s*원`),
	regexp.MustCompile(`할인후초회보험료\s*([\d,]+)\s*원`),
	regexp.MustCompile(`보장보험료\s*합계\s*([\d,]+)\s*원`),
	regexp.MustCompile(`합\s*계\s*보\s*험\s*료\s*([\d,]+)\s*원`),
	regexp.MustCompile(`합계보험료\s*([\d,]+)\s*원`),
	regexp.MustCompile(`합\s*계\s*([\d,]+)`),
	regexp.MustCompile(`보험료\s*[:\s]?\s*([\d,]+)\s*원`),
}

// ExtractPremium returns the monthly premium in won. Each page is searched
// with every pattern before moving on to the next page.
func ExtractPremium(pages []string) (int64, bool) {
	for _, text := range pages {
		for _, re := range premiumPatterns {
			m := re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			if v, ok := ParseDigits(m[1]); ok && v >= MinPremium {
				return v, true
			}
		}
	}
	return 0, false
}
