// Package normalize implements the deterministic, side-effect-free text
// transforms described in spec §4.5: Unicode repair and the Perl-Script-
// Vector (PSV) sentence-per-line normaliser.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// accentGarbleOptionalLF matches umlaut (U+00A8), acute (U+00B4),
// cedilla (U+00B8) or degree/angstrom (U+00B0), each with an optional
// trailing line feed — the multi-byte garble some xpdf-derived
// pdf-to-text pipelines emit in place of a single precomposed accented
// character. The LF is not always present.
var accentGarbleOptionalLF = regexp.MustCompile(`[\x{00A8}\x{00B4}\x{00B8}\x{00B0}]\n?`)

// accentGarbleMandatoryLF matches circumflex (U+005E), grave (U+0060) or
// tilde (U+007E), each always followed by a line feed in this garble.
var accentGarbleMandatoryLF = regexp.MustCompile(`[\x{005E}\x{0060}\x{007E}]\n`)

// oSlashReplacer are the specific "o/O slash" code points spec §4.5
// calls out as known-bad output from some extraction pipelines.
var oSlashReplacer = strings.NewReplacer(
	"ø", "o",
	"Ø", "O",
)

var sharpSReplacer = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae",
	"Æ", "AE",
)

// FixUnicode strips known bad multi-byte sequences produced by some
// PDF-to-text pipelines, then applies NFKC normalisation. It is pure and
// deterministic: the same input always yields the same output, with no
// dependency on locale-sensitive collation (spec §4.5).
func FixUnicode(text string) string {
	text = accentGarbleOptionalLF.ReplaceAllString(text, "")
	text = accentGarbleMandatoryLF.ReplaceAllString(text, "")
	text = oSlashReplacer.Replace(text)
	text = sharpSReplacer.Replace(text)
	return norm.NFKC.String(text)
}
