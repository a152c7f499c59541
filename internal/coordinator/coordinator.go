// Package coordinator implements the task coordinator (spec §4.5): the
// component that sits between the controller and the queue, responsible
// for creating tasks with a deterministic id, pre-emptively recording
// their existence in the store, and resolving their state back out of
// the result backend.
package coordinator

import (
	"encoding/json"
	"time"

	"github.com/op/go-logging"

	"github.com/arxiv/fulltext/internal/domain"
	"github.com/arxiv/fulltext/internal/resultstore"
	"github.com/arxiv/fulltext/internal/store"
)

// TaskMessage is the body published to the broker and consumed by the
// worker: the arguments its pipeline takes for one task.
type TaskMessage struct {
	TaskID     string        `json:"task_id"`
	Identifier string        `json:"identifier"`
	Bucket     domain.Bucket `json:"bucket"`
	Version    string        `json:"version"`
	Owner      *string       `json:"owner,omitempty"`
	Token      string        `json:"token,omitempty"`
}

// ExtractionTopic is the NSQ topic tasks are published to and the
// worker-tier process consumes from.
const ExtractionTopic = "fulltext-extraction"

// Coordinator ties the filesystem store, the result backend and the
// broker together. A single Coordinator is shared across all
// request-serving goroutines in the front-tier process (spec §5).
type Coordinator struct {
	Store   *store.Store
	Results *resultstore.Store
	Broker  Broker
	Version string
	log     *logging.Logger
}

func New(s *store.Store, results *resultstore.Store, broker Broker, extractorVersion string, log *logging.Logger) *Coordinator {
	return &Coordinator{Store: s, Results: results, Broker: broker, Version: extractorVersion, log: log}
}

// CreateTask computes the task's deterministic id, writes an in-progress
// placeholder to the store, publishes the task to the broker, and marks
// it sent in the result backend — in that order. The store write happens
// before the publish so that a client polling immediately after a 202
// response always observes at least the in-progress record (spec §6.2:
// "the pre-emptive metadata write guarantees the client observes an
// immediate consistent view").
//
// If the broker publish fails, CreateTask returns ErrTaskCreationFailed.
// The in-progress placeholder is left in the store; a retried
// CreateTask with the same arguments simply overwrites it, since
// task_id is deterministic from (bucket, identifier, version).
//
// Calls for the same task id are not serialised against each other: a
// forced resubmission while an earlier task is still running overwrites
// the placeholder and publishes a second message, both tasks run, and
// whichever finishes last writes the terminal state.
func (c *Coordinator) CreateTask(identifier string, bucket domain.Bucket, owner *string, token string) (string, error) {
	if !domain.ValidBucket(bucket) {
		return "", domain.NewError(domain.ErrDoesNotExist, "unknown bucket "+string(bucket))
	}

	version := c.Version
	taskID := TaskID(bucket, identifier, version)

	placeholder := &domain.Extraction{
		Identifier: identifier,
		Bucket:     bucket,
		Version:    version,
		Status:     domain.StatusInProgress,
		Started:    time.Now().UTC(),
		Owner:      owner,
		TaskID:     taskID,
	}
	if err := c.Store.Store(placeholder, ""); err != nil {
		return "", err
	}

	msg := TaskMessage{
		TaskID:     taskID,
		Identifier: identifier,
		Bucket:     bucket,
		Version:    version,
		Owner:      owner,
		Token:      token,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", domain.WrapError(domain.ErrTaskCreationFailed, "encoding task message", err)
	}

	if err := c.Broker.Publish(ExtractionTopic, body); err != nil {
		if domain.Is(err, domain.ErrTaskCreationFailed) {
			return "", err
		}
		return "", domain.WrapError(domain.ErrTaskCreationFailed, "publishing task "+taskID, err)
	}

	// Best-effort: if this write fails the task is still enqueued and
	// will transition out of PENDING once a worker marks it started, so
	// there is no dangling state, only a slightly longer PENDING window.
	if err := c.Results.MarkSent(taskID); err != nil {
		c.log.Warningf("marking %s sent: %v", taskID, err)
	}

	return taskID, nil
}

// GetTask resolves the current state of a previously-created task by
// recomputing its deterministic id and consulting the result backend
// (spec §4.5). A StateNoSuchTask result is translated to
// ErrNoSuchTask so callers can treat it uniformly with other
// does-not-exist conditions.
func (c *Coordinator) GetTask(identifier string, bucket domain.Bucket, version string) (*TaskState, error) {
	taskID := TaskID(bucket, identifier, version)
	record, err := c.Results.Lookup(taskID)
	if err != nil {
		return nil, err
	}
	state := mapBackendState(record)
	if state.Kind == StateNoSuchTask {
		return nil, domain.NewError(domain.ErrNoSuchTask, "no task for "+taskID)
	}
	return &state, nil
}

// IsAvailable reports whether the store is writable and the result
// backend answers a lookup. It never submits a probe task onto the real
// extraction topic, since doing so would require a worker to be
// listening to retire it; the broker is not probed at all, so an
// unreachable nsqd does not make IsAvailable return false.
func (c *Coordinator) IsAvailable() bool {
	if !c.Store.IsAvailable() {
		return false
	}
	if _, err := c.Results.Lookup("__healthcheck__"); err != nil {
		return false
	}
	return true
}
