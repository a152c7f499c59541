package domain

import "time"

// Extraction is the central record of the system. It is created once by
// the coordinator (status=in_progress) and mutated exactly once by the
// worker on completion. See spec §3 for the full field contract and
// invariants 1-5.
type Extraction struct {
	Identifier string  `json:"identifier"`
	Bucket     Bucket  `json:"bucket"`
	Version    string  `json:"version"`
	Status     Status  `json:"status"`
	Started    time.Time  `json:"started"`
	Ended      *time.Time `json:"ended"`
	Owner      *string    `json:"owner"`
	TaskID     string     `json:"task_id"`
	Exception  *string    `json:"exception"`
	Content    *string    `json:"content,omitempty"`

	// ExtractorImage records the sandbox image tag that produced this
	// record. Additive field, ignored by older readers.
	ExtractorImage string `json:"extractor_image,omitempty"`
}

// WithoutContent returns a shallow copy of e with Content cleared. This is
// what gets written to meta.json (spec §4.1: "always writes meta.json ...
// with content omitted") and what the worker task result map uses (spec
// §4.6 step 6: "Return a dict representation without content").
func (e *Extraction) WithoutContent() *Extraction {
	clone := *e
	clone.Content = nil
	return &clone
}

// MarkFailed returns a copy of e transitioned to the terminal failed
// state. Per invariant 3, this is the only mutation a worker may perform
// after creation other than MarkSucceeded.
func (e *Extraction) MarkFailed(now time.Time, reason string) *Extraction {
	clone := *e
	clone.Status = StatusFailed
	clone.Ended = &now
	clone.Exception = &reason
	return &clone
}

// MarkSucceeded returns a copy of e transitioned to the terminal succeeded
// state with the given plain-text content.
func (e *Extraction) MarkSucceeded(now time.Time, content string) *Extraction {
	clone := *e
	clone.Status = StatusSucceeded
	clone.Ended = &now
	clone.Content = &content
	return &clone
}

// WithContent returns a shallow copy of e with Content replaced. Used for
// the PSV write, which does not change Status/Ended (spec §4.6 step 5).
func (e *Extraction) WithContent(content string) *Extraction {
	clone := *e
	clone.Content = &content
	return &clone
}
