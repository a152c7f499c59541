package domain

import "regexp"

// IdentifierKind classifies an announced e-print identifier for the
// purpose of selecting a store path layout (spec §4.1). It is never
// persisted; it is recomputed on demand.
type IdentifierKind int

const (
	// IdentifierLiteral covers everything that is neither old- nor
	// new-style, including every submission identifier ({source_id}/
	// {checksum}), which always takes the literal layout.
	IdentifierLiteral IdentifierKind = iota
	IdentifierOldStyle
	IdentifierNewStyle
)

// oldStylePattern matches a pre-2007 archive identifier: an archive name
// (letters, hyphens, and an optional two-letter subject-class suffix)
// followed by a 7-digit YYMMNNN number, e.g. "alg-geom/9204001" or
// "cs.AI/9901001".
var oldStylePattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z-]*(?:\.[A-Za-z]{2})?)/(\d{7})$`)

// newStylePattern matches a post-2007 identifier: YYMM.NNNNN with an
// optional version suffix, e.g. "1801.00123" or "1801.00123v2".
var newStylePattern = regexp.MustCompile(`^(\d{4})\.(\d{4,5})(v\d+)?$`)

// ClassifyIdentifier determines which path layout an announced e-print
// identifier takes. Bucket is not consulted here: submission identifiers
// always fail both patterns (they contain a literal "/" between source id
// and checksum that does not look like an archive/number pair) and so
// fall through to IdentifierLiteral, which is exactly the layout spec
// §4.1 assigns them ("Anything else").
func ClassifyIdentifier(identifier string) IdentifierKind {
	if oldStylePattern.MatchString(identifier) {
		return IdentifierOldStyle
	}
	if newStylePattern.MatchString(identifier) {
		return IdentifierNewStyle
	}
	return IdentifierLiteral
}

// OldStyleParts splits an old-style identifier into its archive prefix,
// 4-digit YYMM bucket, and full 7-digit id. ok is false if identifier is
// not old-style.
func OldStyleParts(identifier string) (prefix, yymm, fullID string, ok bool) {
	m := oldStylePattern.FindStringSubmatch(identifier)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2][:4], m[2], true
}

// NewStyleParts splits a new-style identifier into its 4-digit YYMM
// bucket and the full identifier (including any version suffix). ok is
// false if identifier is not new-style.
func NewStyleParts(identifier string) (yymm, fullID string, ok bool) {
	m := newStylePattern.FindStringSubmatch(identifier)
	if m == nil {
		return "", "", false
	}
	return m[1], identifier, true
}
