package organization

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonWordRun = regexp.MustCompile(`[^a-z0-9]+`)

// StripAccents removes diacritics ("Éducation" -> "Education").
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slugify lowercases, strips accents and collapses every non-word run into a
// single hyphen.
func Slugify(s string) string {
	s = strings.ToLower(StripAccents(strings.TrimSpace(s)))
	s = strings.NewReplacer("œ", "oe", "æ", "ae", "ß", "ss").Replace(s)
	s = nonWordRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
