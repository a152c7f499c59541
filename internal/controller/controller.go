// Package controller implements the four request handlers spec.md §4.7
// and §2's C7 describe: service_status, start_extraction, task_status
// and retrieve. These are transport-agnostic — they return an Outcome
// describing what an HTTP front end should do, rather than writing to a
// http.ResponseWriter directly, so they can be unit tested without
// spinning up a server (the same split the teacher draws between its
// workers packages and the nsq/cmd entry points that wire them to a
// transport).
package controller

import (
	"github.com/op/go-logging"

	"github.com/arxiv/fulltext/internal/coordinator"
	"github.com/arxiv/fulltext/internal/domain"
	"github.com/arxiv/fulltext/internal/source"
	"github.com/arxiv/fulltext/internal/store"
)

// OutcomeKind is the closed set of ways a controller operation resolves.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeAccepted
	OutcomeSeeOther
	OutcomeNotFound
	OutcomeServerError
)

// Outcome is what every controller operation returns. Location is set
// for OutcomeAccepted/OutcomeSeeOther; Extraction is set for OutcomeOK;
// Err carries the underlying CodedError for OutcomeServerError so
// callers can log it.
type Outcome struct {
	Kind       OutcomeKind
	Location   string
	Extraction *domain.Extraction
	Err        error
}

// Authorizer decides whether a caller may see a resource owned by
// owner. Submissions are owner-scoped; announced e-prints have no
// owner and every Authorizer must treat owner == nil as "public".
type Authorizer func(identifier string, owner *string) bool

// AllowAll is the Authorizer used when no access control is configured
// (e.g. for the arxiv bucket, which has no owner concept).
func AllowAll(string, *string) bool { return true }

// Controller wires the store, coordinator and the two PDF sources
// together behind the three operations spec.md §4.7 names.
type Controller struct {
	Store       *store.Store
	Coordinator *coordinator.Coordinator
	Sources     map[domain.Bucket]source.Source
	log         *logging.Logger
}

func New(s *store.Store, c *coordinator.Coordinator, sources map[domain.Bucket]source.Source, log *logging.Logger) *Controller {
	return &Controller{Store: s, Coordinator: c, Sources: sources, log: log}
}

// ServiceStatus aggregates store and coordinator availability into a
// single health boolean (spec.md §4.7: "200 | 500").
func (c *Controller) ServiceStatus() bool {
	return c.Store.IsAvailable() && c.Coordinator.IsAvailable()
}

// StartExtraction implements spec.md §4.7's start_extraction. It
// rejects unsupported buckets and nonexistent upstream resources as
// not-found, resolves an owner for owner-scoped buckets, and either
// redirects to an existing record or creates a new task.
func (c *Controller) StartExtraction(bucket domain.Bucket, identifier, token string, force bool, authorize Authorizer) Outcome {
	if !domain.ValidBucket(bucket) {
		return Outcome{Kind: OutcomeNotFound}
	}

	src, ok := c.Sources[bucket]
	if !ok {
		return Outcome{Kind: OutcomeNotFound}
	}

	exists, err := src.Exists(identifier)
	if err != nil {
		return serverErrorOrNotFound(err)
	}
	if !exists {
		return Outcome{Kind: OutcomeNotFound}
	}

	owner, err := src.GetOwner(identifier, token)
	if err != nil {
		return serverErrorOrNotFound(err)
	}

	if !authorize(identifier, owner) {
		return Outcome{Kind: OutcomeNotFound}
	}

	if !force {
		existing, err := c.Store.Retrieve(identifier, store.RetrieveOptions{Bucket: bucket, MetaOnly: true})
		if err == nil {
			return Outcome{Kind: OutcomeSeeOther, Location: locationFor(bucket, identifier, existing)}
		}
		if domain.KindOf(err) != domain.ErrDoesNotExist {
			return serverErrorOrNotFound(err)
		}
		// No existing record: fall through to create_task.
	}

	taskID, err := c.Coordinator.CreateTask(identifier, bucket, owner, token)
	if err != nil {
		return serverErrorOrNotFound(err)
	}
	version := c.Coordinator.Version

	return Outcome{Kind: OutcomeAccepted, Location: statusLocation(bucket, identifier, version), Extraction: &domain.Extraction{
		Identifier: identifier, Bucket: bucket, Version: version, Status: domain.StatusInProgress, TaskID: taskID,
	}}
}

// Retrieve implements spec.md §4.7's retrieve. A metadata record with
// no content while still in progress redirects to the status endpoint;
// authorization failure is reported as not-found, never a distinct
// forbidden outcome, so existence is never disclosed to an
// unauthorized caller.
func (c *Controller) Retrieve(identifier string, bucket domain.Bucket, version string, format domain.Format, authorize Authorizer) Outcome {
	if !domain.ValidBucket(bucket) {
		return Outcome{Kind: OutcomeNotFound}
	}

	extraction, err := c.Store.Retrieve(identifier, store.RetrieveOptions{Bucket: bucket, Version: version, Format: format})
	if err != nil {
		return serverErrorOrNotFound(err)
	}

	if !authorize(identifier, extraction.Owner) {
		return Outcome{Kind: OutcomeNotFound}
	}

	if extraction.Content == nil && extraction.Status == domain.StatusInProgress {
		return Outcome{Kind: OutcomeSeeOther, Location: statusLocation(bucket, identifier, extraction.Version)}
	}

	return Outcome{Kind: OutcomeOK, Extraction: extraction}
}

// TaskStatus implements spec.md §6.1's status operation and the ground
// truth's get_task_status: PENDING (no pre-created record at all) is
// not-found; SENT/STARTED/RETRY report in-progress; FAILURE reports the
// failure reason; SUCCESS redirects to the content endpoint. Like
// Retrieve, a failed authorization check is reported as not-found.
func (c *Controller) TaskStatus(identifier string, bucket domain.Bucket, version string, authorize Authorizer) Outcome {
	if !domain.ValidBucket(bucket) {
		return Outcome{Kind: OutcomeNotFound}
	}
	if version == "" {
		version = c.Coordinator.Version
	}

	placeholder, err := c.Store.Retrieve(identifier, store.RetrieveOptions{Bucket: bucket, Version: version, MetaOnly: true})
	if err != nil {
		return serverErrorOrNotFound(err)
	}

	if !authorize(identifier, placeholder.Owner) {
		return Outcome{Kind: OutcomeNotFound}
	}

	state, err := c.Coordinator.GetTask(identifier, bucket, version)
	if err != nil {
		return serverErrorOrNotFound(err)
	}

	switch state.Kind {
	case coordinator.StateInProgress:
		return Outcome{Kind: OutcomeOK, Extraction: &domain.Extraction{
			Identifier: identifier, Bucket: bucket, Version: version, Status: domain.StatusInProgress,
		}}
	case coordinator.StateFailed:
		reason := state.Exception
		return Outcome{Kind: OutcomeOK, Extraction: &domain.Extraction{
			Identifier: identifier, Bucket: bucket, Version: version, Status: domain.StatusFailed, Exception: &reason,
		}}
	case coordinator.StateSucceeded:
		return Outcome{Kind: OutcomeSeeOther, Location: contentLocation(bucket, identifier, version)}
	default:
		return Outcome{Kind: OutcomeNotFound}
	}
}

// locationFor chooses the status or content endpoint for an existing
// record depending on whether it has reached a terminal state.
func locationFor(bucket domain.Bucket, identifier string, existing *domain.Extraction) string {
	if existing.Status.Terminal() {
		return contentLocation(bucket, identifier, existing.Version)
	}
	return statusLocation(bucket, identifier, existing.Version)
}

func statusLocation(bucket domain.Bucket, identifier, version string) string {
	return "/" + string(bucket) + "/" + identifier + "/version/" + version + "/status"
}

func contentLocation(bucket domain.Bucket, identifier, version string) string {
	return "/" + string(bucket) + "/" + identifier + "/version/" + version
}

// serverErrorOrNotFound implements the translation table in spec.md
// §7: does-not-exist/no-such-task -> not found, everything else ->
// server error.
func serverErrorOrNotFound(err error) Outcome {
	switch domain.KindOf(err) {
	case domain.ErrDoesNotExist, domain.ErrNoSuchTask:
		return Outcome{Kind: OutcomeNotFound}
	default:
		return Outcome{Kind: OutcomeServerError, Err: err}
	}
}
