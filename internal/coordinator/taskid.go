package coordinator

import "github.com/arxiv/fulltext/internal/domain"

// TaskID computes the deterministic task identity spec §3.2 invariant 4
// requires: task_id = f"{bucket}::{identifier}::{version}". Equal inputs
// always produce equal ids; this is the sole correlation key between the
// store, the broker, and the result backend.
func TaskID(bucket domain.Bucket, identifier, version string) string {
	return string(bucket) + "::" + identifier + "::" + version
}
