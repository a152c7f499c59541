package normalize

import (
	"regexp"
	"strings"
)

// referencesBoundary matches a line that is (ignoring leading non-letter
// punctuation and trailing non-word noise) exactly "References" or
// "Bibliography". The *last* matching line in the document is the
// boundary between body and references (spec §4.5 step 3).
var referencesBoundary = regexp.MustCompile(`(?i)^[^A-Za-z]*(References|Bibliography)[\W]*$`)

var (
	arxivStampLine  = regexp.MustCompile(`(?i)^arxiv`)
	insertedByHand  = regexp.MustCompile(`(?i)will be inserted by hand later`)
	preparedWithAAS = regexp.MustCompile(`(?i)was prepared with the aas`)
	allDigitsLine   = regexp.MustCompile(`^\d+$`)
	universityLine  = regexp.MustCompile(`(?i)university|institute`)
	lowercaseStart  = regexp.MustCompile(`^[a-z]`)
)

var abbreviationExpansions = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`\bFigs?\.`), "Figure"},
	{regexp.MustCompile(`\bEqs?\.`), "Equation"},
	{regexp.MustCompile(`\bSect\.`), "Section"},
	{regexp.MustCompile(`\bRefs?\.`), "Reference"},
	{regexp.MustCompile(`\bProf\.`), "Prof"},
	{regexp.MustCompile(`\bDr\.`), "Dr"},
}

var (
	notWordDotSpace    = regexp.MustCompile(`[^A-Za-z0-9. ]`)
	digitRun           = regexp.MustCompile(`\d+`)
	singleLetterWord   = regexp.MustCompile(`\b[A-Za-z]\b`)
	abbrev3            = regexp.MustCompile(`\s\w\.\w\.\w\.\s`)
	abbrev2            = regexp.MustCompile(`\s\w\.\w\.\s`)
	abbrev1            = regexp.MustCompile(`\s\w\.\s`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
	nonAlphaCharacter  = regexp.MustCompile(`[^A-Za-z]`)
)

// ProcessText implements spec §4.5's process_text: it recovers accents,
// splits the document into a body and a references section at the last
// References/Bibliography heading, and tidies each half. If the detected
// references section would exceed half of the document's lines, the split
// is suppressed and everything is treated as body.
func ProcessText(text string) (bodySentences, refSentences []string) {
	text = FixUnicode(text)
	lines := splitLineTerminators(text)

	boundary := -1
	for i, line := range lines {
		if referencesBoundary.MatchString(line) {
			boundary = i
		}
	}

	var bodyLines, refLines []string
	if boundary >= 0 && len(lines)-boundary <= len(lines)/2 {
		bodyLines = lines[:boundary]
		refLines = lines[boundary:]
	} else {
		bodyLines = lines
		refLines = nil
	}

	return tidyTxtFromPdf(bodyLines), tidyTxtFromPdf(refLines)
}

// NormalizeTextPSV applies ProcessText and returns the body half
// concatenated with spaces; the references half is discarded, matching
// the contract callers of this function rely on (spec §4.5).
func NormalizeTextPSV(text string) string {
	body, _ := ProcessText(text)
	return strings.Join(body, " ")
}

// splitLineTerminators splits on any line-terminator codepoint in the
// range U+000A-U+000D (LF, VT, FF, CR), per spec §4.5 step 2.
func splitLineTerminators(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r >= 0x0A && r <= 0x0D
	})
}

// tidyTxtFromPdf implements spec §4.5's tidy_txt_from_pdf, producing a
// list of clean, lowercase sentences from a half of the document.
func tidyTxtFromPdf(lines []string) []string {
	lines = removeBoilerplateLines(lines)
	joined := joinWrappedLines(lines)
	joined = expandAbbreviations(joined)
	joined = stripSymbolsNumbersAndShortTokens(joined)
	joined = whitespaceRun.ReplaceAllString(joined, " ")
	joined = strings.TrimSpace(joined)
	return splitIntoSentences(joined)
}

// removeBoilerplateLines drops lines matching any of the four patterns
// in spec §4.5 step 4a.
func removeBoilerplateLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if arxivStampLine.MatchString(line) || insertedByHand.MatchString(line) || preparedWithAAS.MatchString(line) {
			continue
		}
		if allDigitsLine.MatchString(strings.TrimSpace(line)) && i+1 < len(lines) && universityLine.MatchString(lines[i+1]) {
			i++ // also drop the affiliation line that follows
			continue
		}
		out = append(out, line)
	}
	return out
}

// joinWrappedLines joins hyphenated line continuations directly (no
// space) and otherwise only merges a line into the one before it when
// the new line begins lowercase and the previous line does not end a
// sentence, per spec §4.5 step 4b and the ground truth's
// _remove_BadEOL. A line that begins uppercase, or that follows a line
// ending in ".", starts a new entry instead of being folded in — so a
// short all-caps fragment stays a standalone, droppable line rather
// than surviving merged into its neighbour.
func joinWrappedLines(lines []string) string {
	var b strings.Builder
	prev := ""
	prevHyphenated := false
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		hyphenated := strings.HasSuffix(trimmed, "-")
		if hyphenated {
			trimmed = strings.TrimSuffix(trimmed, "-")
		}

		switch {
		case i == 0:
			b.WriteString(trimmed)
		case prevHyphenated || (lowercaseStart.MatchString(trimmed) && !strings.HasSuffix(prev, ".")):
			b.WriteString(trimmed)
		default:
			b.WriteString(" ")
			b.WriteString(trimmed)
		}
		prev = trimmed
		prevHyphenated = hyphenated
	}
	return b.String()
}

func expandAbbreviations(text string) string {
	for _, exp := range abbreviationExpansions {
		text = exp.pattern.ReplaceAllString(text, exp.repl)
	}
	return text
}

// stripSymbolsNumbersAndShortTokens implements spec §4.5 step 4d: remove
// everything but letters/digits/periods/spaces, remove digit runs,
// single-letter words, and abbreviation-shaped tokens. Abbreviation
// removal is applied repeatedly since overlapping matches (e.g. a run of
// several initials) are not all caught in one pass.
func stripSymbolsNumbersAndShortTokens(text string) string {
	text = notWordDotSpace.ReplaceAllString(text, " ")
	text = digitRun.ReplaceAllString(text, " ")
	text = singleLetterWord.ReplaceAllString(text, " ")

	for i := 0; i < 5; i++ {
		next := abbrev3.ReplaceAllString(text, " ")
		next = abbrev2.ReplaceAllString(next, " ")
		next = abbrev1.ReplaceAllString(next, " ")
		if next == text {
			break
		}
		text = next
	}
	return text
}

// splitIntoSentences implements spec §4.5 step 4f: split on ". ", drop
// sentences of length <= 3, replace non-alphabetic characters with a
// space, and lowercase.
func splitIntoSentences(text string) []string {
	parts := strings.Split(text, ". ")
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) <= 3 {
			continue
		}
		cleaned := nonAlphaCharacter.ReplaceAllString(part, " ")
		cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
		cleaned = strings.TrimSpace(cleaned)
		cleaned = strings.ToLower(cleaned)
		if cleaned == "" {
			continue
		}
		sentences = append(sentences, cleaned)
	}
	return sentences
}
