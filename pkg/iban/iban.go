// Package iban validates, masks and formats International Bank Account Numbers.
package iban

import (
	"regexp"
	"strings"
)

const (
	minLength = 15
	maxLength = 34
)

var structure = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]+$`)

// Normalize strips whitespace and upper-cases the code.
func Normalize(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range code {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// Validate reports whether code is a structurally valid IBAN for a known
// country with a correct mod-97 check.
func Validate(code string) bool {
	n := Normalize(code)
	if len(n) < minLength || len(n) > maxLength {
		return false
	}
	if !structure.MatchString(n) {
		return false
	}
	want, ok := countryLengths[n[:2]]
	if !ok || len(n) != want {
		return false
	}
	return mod97(n[4:]+n[:4]) == 1
}

// mod97 folds the digit expansion of s into a running remainder so the full
// number is never materialised.
func mod97(s string) int {
	rem := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			v := int(c-'A') + 10
			rem = (rem*100 + v) % 97
		default:
			return -1
		}
	}
	return rem
}

// CheckDigits computes the two check digits for a country code and BBAN.
func CheckDigits(country, bban string) string {
	rem := mod97(strings.ToUpper(bban) + strings.ToUpper(country) + "00")
	if rem < 0 {
		return ""
	}
	d := 98 - rem
	return string([]byte{byte('0' + d/10), byte('0' + d%10)})
}

// Mask hides everything except the last four characters and groups the
// result in blocks of four.
func Mask(code string) string {
	n := Normalize(code)
	if n == "" {
		return ""
	}
	visible := 4
	if len(n) < visible {
		visible = len(n)
	}
	masked := strings.Repeat("*", len(n)-visible) + n[len(n)-visible:]
	return group(masked)
}

// Format returns the normalised code in print format, blocks of four.
func Format(code string) string {
	return group(Normalize(code))
}

// CountryLength returns the expected IBAN length for an ISO country code.
func CountryLength(country string) (int, bool) {
	l, ok := countryLengths[strings.ToUpper(country)]
	return l, ok
}

// Countries lists every supported country code.
func Countries() []string {
	out := make([]string, 0, len(countryLengths))
	for c := range countryLengths {
		out = append(out, c)
	}
	return out
}

func group(s string) string {
	if len(s) <= 4 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for i := 0; i < len(s); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := i + 4
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}
