package domain

import (
	"strings"
	"unicode"
)

const (
	minIBANLength = 15
	maxIBANLength = 34
)

// NormalizeIBAN strips spaces and upper-cases the value.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}

// ValidIBAN checks the shape and the ISO 13616 mod-97 checksum of a
// normalized IBAN. Country-specific lengths are not checked.
func ValidIBAN(iban string) bool {
	if len(iban) < minIBANLength || len(iban) > maxIBANLength {
		return false
	}
	for i, r := range iban {
		switch {
		case i < 2 && !unicode.IsUpper(r):
			return false
		case i >= 2 && i < 4 && !unicode.IsDigit(r):
			return false
		case r > unicode.MaxASCII || !(unicode.IsUpper(r) || unicode.IsDigit(r)):
			return false
		}
	}

	rearranged := iban[4:] + iban[:4]
	remainder := 0
	for _, r := range rearranged {
		if unicode.IsDigit(r) {
			remainder = (remainder*10 + int(r-'0')) % 97
			continue
		}
		v := int(r-'A') + 10
		remainder = (remainder*100 + v) % 97
	}
	return remainder == 1
}
