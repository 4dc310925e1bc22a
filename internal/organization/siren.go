package organization

import (
	"regexp"
	"strings"
)

var (
	nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)
	nonDigit = regexp.MustCompile(`[^0-9]+`)
)

// NormalizeRNA uppercases an association registry number and strips every
// non-alphanumeric character.
func NormalizeRNA(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToUpper(s), "")
}

// digits keeps only the digits of s.
func digits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

// luhn validates the Luhn checksum used by SIREN and SIRET numbers.
func luhn(number string) bool {
	if number == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// ValidSiret reports whether s is a 14-digit, checksum-valid SIRET.
func ValidSiret(s string) bool {
	return len(s) == 14 && luhn(s)
}

// ValidSiren reports whether s is a 9-digit, checksum-valid SIREN.
func ValidSiren(s string) bool {
	return len(s) == 9 && luhn(s)
}
