package parsers

import (
	"regexp"
	"strings"
)

// ProductPages is how many leading pages are searched for the product name.
const ProductPages = 3

const maxProductNameRunes = 30

// productPattern recognises one issuer's product-name line. cut, when set,
// removes a trailing fragment from the captured name.
type productPattern struct {
	re  *regexp.Regexp
	cut *regexp.Regexp
}

var noDividendTailRe = regexp.MustCompile(`\(무배당\).*`)

var productPatterns = []productPattern{
	{re: regexp.MustCompile(`(KB\s*플러스\s*[^(\n]+보험)`), cut: noDividendTailRe},
	{re: regexp.MustCompile(`(KB\s*[^(\n]*보험[^(\n]*)\(무배당\)`)},
	{re: regexp.MustCompile(`(M-케어\s*건강[^(]*)`)},
	{re: regexp.MustCompile(`^(?:\(무\)|\(유\))\s*([^(]+)`)},
	{re: regexp.MustCompile(`^삼성\s+(.+보험)`), cut: regexp.MustCompile(`\(\d{4}\).*`)},
	{re: regexp.MustCompile(`(메리츠\s*[^(\n]*보험[^(\n]*)`), cut: noDividendTailRe},
}

// DetectProductName returns the product name printed on one of the given
// page texts. Lines are tried in page order; within a line the patterns
// are tried in table order.
func DetectProductName(pages []string) (string, bool) {
	for _, text := range pages {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			for _, p := range productPatterns {
				m := p.re.FindStringSubmatch(line)
				if m == nil {
					continue
				}
				name := strings.TrimSpace(m[1])
				if p.cut != nil {
					name = strings.TrimSpace(p.cut.ReplaceAllString(name, ""))
				}
				if name == "" {
					continue
				}
				return truncateRunes(name, maxProductNameRunes), true
			}
		}
	}
	return "", false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
