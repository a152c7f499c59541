package domain

// Format names the content variant stored alongside a metadata record.
// The set is closed for the same reason Bucket is: an unrecognised value
// from a client is a 404, not a 400.
type Format string

const (
	FormatPlain Format = "plain"
	FormatPSV   Format = "psv"
)

// ValidFormat reports whether f is one of the two recognised formats.
func ValidFormat(f Format) bool {
	switch f {
	case FormatPlain, FormatPSV:
		return true
	default:
		return false
	}
}
