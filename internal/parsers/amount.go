// Package parsers turns fragments of policy-document text into typed values.
//
// Policy documents print insured amounts in mixed notation: plain digit
// groups ("3,000,000원"), unit words ("500만원", "2천만원") and compounds
// ("1억2천만원", "2천5백만원"). This package converts those into whole won and
// recognises which insurer produced a document, its product name and its
// premium.
//
// None of the functions here return errors. Text that is not an amount, not
// a product line or not an issuer marker is reported through the boolean
// result and the caller keeps scanning.
//
// Example usage:
//
//	won, ok := parsers.ParseAmount("1억2천만원")   // 120000000, true
//	m, ok := parsers.FindAmount("12 상해수술비 300만원") // m.Value == 3000000
//	issuer, ok := parsers.DetectIssuer(firstPagesText)
package parsers

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	unitEok      int64 = 100_000_000 // 억
	unitCheonman int64 = 10_000_000  // 천만
	unitBaekman  int64 = 1_000_000   // 백만
	unitMan      int64 = 10_000      // 만
	unitCheon    int64 = 1_000       // 천

	// MinBareAmount is the smallest unit-less number accepted as an amount.
	MinBareAmount int64 = 10_000
)

var (
	hangulRunRe = regexp.MustCompile(`[가-힣]{2,}`)

	eokRe = regexp.MustCompile(`(\d+)억`)

	// tried in order on text without 억, and anchored on the remainder after 억
	cheonBaekmanRe = regexp.MustCompile(`(\d+)천(\d+)백만`)
	cheonmanRe     = regexp.MustCompile(`(\d+)천만`)
	baekmanRe      = regexp.MustCompile(`(\d+)백만`)
	manRe          = regexp.MustCompile(`(\d+)만`)
	cheonwonRe     = regexp.MustCompile(`(\d+)천원`)
	bareRe         = regexp.MustCompile(`^(\d+)원?$`)

	remainderRe = regexp.MustCompile(`^(?:(\d+)천(\d+)백만|(\d+)천만|(\d+)백만|(\d+)만)`)

	// an amount token inside a longer line; always ends in 원
	amountTokenRe = regexp.MustCompile(`\d[\d,]*(?:억(?:\d+천\d*백만|\d+천만|\d+백만|\d+만)?|천\d*백만|천만|백만|만|천)?원`)
)

// ParseAmount converts a mixed-notation monetary string into won.
// It returns false for text that is not an amount.
func ParseAmount(text string) (int64, bool) {
	s := strings.NewReplacer(" ", "", ",", "", "\t", "", "\n", "").Replace(text)
	if s == "" {
		return 0, false
	}

	if hangulRunRe.MatchString(s) && !strings.ContainsAny(s, "원만억") {
		return 0, false
	}

	if loc := eokRe.FindStringSubmatchIndex(s); loc != nil {
		eok, ok := atoi(s[loc[2]:loc[3]])
		if !ok {
			return 0, false
		}
		total, ok := scale(eok, unitEok)
		if !ok {
			return 0, false
		}
		if rest, ok := parseRemainder(s[loc[1]:]); ok {
			if rest > math.MaxInt64-total {
				return 0, false
			}
			total += rest
		}
		return total, true
	}

	if m := cheonBaekmanRe.FindStringSubmatch(s); m != nil {
		cheon, ok1 := atoi(m[1])
		baek, ok2 := atoi(m[2])
		if ok1 && ok2 {
			return cheonBaekman(cheon, baek)
		}
	}

	scaled := []struct {
		re   *regexp.Regexp
		unit int64
	}{
		{cheonmanRe, unitCheonman},
		{baekmanRe, unitBaekman},
		{manRe, unitMan},
		{cheonwonRe, unitCheon},
	}
	for _, p := range scaled {
		if m := p.re.FindStringSubmatch(s); m != nil {
			if n, ok := atoi(m[1]); ok {
				return scale(n, p.unit)
			}
		}
	}

	if m := bareRe.FindStringSubmatch(s); m != nil {
		if n, ok := atoi(m[1]); ok && n >= MinBareAmount {
			return n, true
		}
	}

	return 0, false
}

// parseRemainder reads the part following 억 in a compound amount.
func parseRemainder(rest string) (int64, bool) {
	m := remainderRe.FindStringSubmatch(rest)
	if m == nil {
		return 0, false
	}
	switch {
	case m[1] != "":
		cheon, ok1 := atoi(m[1])
		baek, ok2 := atoi(m[2])
		if !ok1 || !ok2 {
			return 0, false
		}
		return cheonBaekman(cheon, baek)
	case m[3] != "":
		return scaleDigits(m[3], unitCheonman)
	case m[4] != "":
		return scaleDigits(m[4], unitBaekman)
	default:
		return scaleDigits(m[5], unitMan)
	}
}

// scale multiplies n by unit, reporting false when the result overflows
func scale(n, unit int64) (int64, bool) {
	if n < 0 || n > math.MaxInt64/unit {
		return 0, false
	}
	return n * unit, true
}

func scaleDigits(digits string, unit int64) (int64, bool) {
	n, ok := atoi(digits)
	if !ok {
		return 0, false
	}
	return scale(n, unit)
}

// cheonBaekman reads "N천M백만" as (N*1000 + M*100) 만
func cheonBaekman(cheon, baek int64) (int64, bool) {
	c, ok1 := scale(cheon, 1000)
	b, ok2 := scale(baek, 100)
	if !ok1 || !ok2 || c > math.MaxInt64-b {
		return 0, false
	}
	return scale(c+b, unitMan)
}

// AmountMatch is an amount token found inside a longer line.
type AmountMatch struct {
	Value int64
	Text  string
	Start int
	End   int
}

// FindAmount returns the first token in line that parses as an amount.
// Tokens must end in 원; bare numbers are never picked out of a line.
func FindAmount(line string) (AmountMatch, bool) {
	for _, loc := range amountTokenRe.FindAllStringIndex(line, -1) {
		token := line[loc[0]:loc[1]]
		if v, ok := ParseAmount(token); ok {
			return AmountMatch{Value: v, Text: token, Start: loc[0], End: loc[1]}, true
		}
	}
	return AmountMatch{}, false
}

// ParseDigits parses a digit group such as "1,234" and reports false for
// anything else.
func ParseDigits(s string) (int64, bool) {
	return atoi(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
}

func atoi(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
