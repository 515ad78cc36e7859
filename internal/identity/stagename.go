package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stageNameFolder = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// NormalizeStageName canonicalizes the stored form of a stage name:
// NFC-composed, trimmed, internal whitespace collapsed. Casing and
// diacritics are preserved because they are part of the artist's identity.
func NormalizeStageName(name string) string {
	name = norm.NFC.String(name)
	return strings.Join(strings.Fields(name), " ")
}

// FoldStageName reduces a stage name to a comparison key: normalized,
// diacritics stripped, case folded. Two artists whose names collide under
// this key are duplicate candidates. This is a best-effort comparison —
// "The " prefixes and deliberate stylization still defeat it, which is a
// documented limitation of free-text matching.
func FoldStageName(name string) string {
	name = NormalizeStageName(name)
	if stripped, _, err := transform.String(stageNameFolder, name); err == nil {
		name = stripped
	}
	return cases.Fold().String(name)
}
