package iban

import (
	"math/big"
	"strings"
	"testing"
)

var knownValid = []string{
	"GB82WEST12345698765432",
	"DE89370400440532013000",
	"FR1420041010050500013M02606",
	"NL91ABNA0417164300",
	"BE68539007547034",
	"CH9300762011623852957",
	"ES9121000418450200051332",
	"IT60X0542811101000000123456",
	"AT611904300234573201",
	"NO9386011117947",
	"PL61109010140000071219812874",
	"SE4550000000058398257466",
	"DK5000400440116243",
	"FI2112345600000785",
	"GR1601101250000000012300695",
	"IE29AIBK93115212345678",
	"PT50000201231234567890154",
	"LU280019400644750000",
	"SA0380000000608010167519",
	"TR330006100519786457841326",
	"AE070331234567890123456",
}

func TestValidateKnownExamples(t *testing.T) {
	for _, code := range knownValid {
		if !Validate(code) {
			t.Fatalf("expected %s to be valid", code)
		}
	}
}

func TestValidateNormalisesInput(t *testing.T) {
	if !Validate("gb82 west 1234 5698 7654 32") {
		t.Fatal("expected lower-case grouped input to validate")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"too short":       "GB82WEST123",
		"too long":        "GB82WEST12345698765432123456789012345",
		"bad structure":   "G182WEST12345698765432",
		"unknown country": "ZZ82WEST12345698765432",
		"wrong length":    "GB82WEST1234569876543",
		"bad checksum":    "GB83WEST12345698765432",
		"symbols":         "GB82WEST1234569876543!",
	}
	for name, code := range cases {
		if Validate(code) {
			t.Fatalf("%s: expected %q to be invalid", name, code)
		}
	}
}

// referenceCheckDigits computes check digits with arbitrary precision so the
// generated fixtures do not depend on the incremental implementation.
func referenceCheckDigits(country, bban string) string {
	var digits strings.Builder
	for _, c := range bban + country + "00" {
		if c >= 'A' && c <= 'Z' {
			digits.WriteString(big.NewInt(int64(c-'A') + 10).String())
			continue
		}
		digits.WriteRune(c)
	}
	n, _ := new(big.Int).SetString(digits.String(), 10)
	rem := new(big.Int).Mod(n, big.NewInt(97)).Int64()
	d := 98 - rem
	return string([]byte{byte('0' + d/10), byte('0' + d%10)})
}

func generated(country string, length int) string {
	const pool = "7302918465"
	var bban strings.Builder
	for i := 0; bban.Len() < length-4; i++ {
		bban.WriteByte(pool[i%len(pool)])
	}
	return country + referenceCheckDigits(country, bban.String()) + bban.String()
}

func TestValidateEveryCountry(t *testing.T) {
	if len(countryLengths) < 60 {
		t.Fatalf("expected at least 60 countries, got %d", len(countryLengths))
	}
	for _, country := range Countries() {
		length, ok := CountryLength(country)
		if !ok {
			t.Fatalf("missing length for %s", country)
		}
		code := generated(country, length)
		if !Validate(code) {
			t.Fatalf("expected generated %s IBAN %s to validate", country, code)
		}
		if CheckDigits(country, code[4:]) != code[2:4] {
			t.Fatalf("CheckDigits disagrees with reference for %s", code)
		}
		if Validate(code + "0") {
			t.Fatalf("expected %s with an extra digit to fail the country length", country)
		}
	}
}

func TestSingleDigitSubstitutionInvalidates(t *testing.T) {
	for _, code := range knownValid {
		for i := 2; i < len(code); i++ {
			if code[i] < '0' || code[i] > '9' {
				continue
			}
			for d := byte('0'); d <= '9'; d++ {
				if d == code[i] {
					continue
				}
				mutated := code[:i] + string(d) + code[i+1:]
				if Validate(mutated) {
					t.Fatalf("substituting position %d of %s yielded valid %s", i, code, mutated)
				}
			}
		}
	}
}

func TestFormatRoundTrip(t *testing.T) {
	inputs := append([]string{}, knownValid...)
	inputs = append(inputs, "GB83WEST12345698765432", "XX00", "", "de89 3704 0044 0532 0130 00")
	for _, code := range inputs {
		if Validate(Format(code)) != Validate(code) {
			t.Fatalf("round trip changed validity for %q", code)
		}
	}
	if got := Format("de89370400440532013000"); got != "DE89 3704 0044 0532 0130 00" {
		t.Fatalf("unexpected print format %q", got)
	}
}

func TestMask(t *testing.T) {
	if got := Mask("GB82 WEST 1234 5698 7654 32"); got != "**** **** **** **** **54 32" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := Mask("NO9386011117947"); got != "**** **** ***7 947" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := Mask("123"); got != "123" {
		t.Fatalf("short input should stay visible, got %q", got)
	}
	if Mask("") != "" {
		t.Fatal("empty input should mask to empty")
	}
}
