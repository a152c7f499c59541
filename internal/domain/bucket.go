package domain

// Bucket selects identifier interpretation, path layout, and PDF source
// adapter. The set is closed: anything else surfaced by a client must be
// rejected at the controller boundary as not-found (see spec §7).
type Bucket string

const (
	BucketArxiv      Bucket = "arxiv"
	BucketSubmission Bucket = "submission"
)

// ValidBucket reports whether b is one of the two recognised buckets.
func ValidBucket(b Bucket) bool {
	switch b {
	case BucketArxiv, BucketSubmission:
		return true
	default:
		return false
	}
}
