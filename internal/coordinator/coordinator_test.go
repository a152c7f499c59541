package coordinator

import (
	"errors"
	"testing"

	"github.com/arxiv/fulltext/internal/domain"
	flogging "github.com/arxiv/fulltext/internal/logging"
	"github.com/arxiv/fulltext/internal/resultstore"
	"github.com/arxiv/fulltext/internal/store"
)

type fakeBroker struct {
	published []string
	failNext  bool
}

func (f *fakeBroker) Publish(topic string, body []byte) error {
	if f.failNext {
		return errors.New("nsqd unreachable")
	}
	f.published = append(f.published, string(body))
	return nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeBroker) {
	t.Helper()
	s := store.New(t.TempDir(), flogging.Discard("coordinator_test"))
	results, err := resultstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening result backend: %v", err)
	}
	t.Cleanup(func() { results.Close() })
	broker := &fakeBroker{}
	return New(s, results, broker, "1.0", flogging.Discard("coordinator_test")), broker
}

func TestCreateTaskWritesPlaceholderAndPublishes(t *testing.T) {
	c, broker := newTestCoordinator(t)

	taskID, err := c.CreateTask("1801.00123", domain.BucketArxiv, nil, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if taskID != TaskID(domain.BucketArxiv, "1801.00123", "1.0") {
		t.Errorf("got task id %q", taskID)
	}
	if len(broker.published) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(broker.published))
	}

	extraction, err := c.Store.Retrieve("1801.00123", store.RetrieveOptions{Bucket: domain.BucketArxiv, MetaOnly: true})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if extraction.Status != domain.StatusInProgress {
		t.Errorf("got status %v, want in_progress", extraction.Status)
	}
	if extraction.TaskID != taskID {
		t.Errorf("got task id %q on stored record, want %q", extraction.TaskID, taskID)
	}
}

func TestCreateTaskRejectsUnknownBucket(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.CreateTask("x", domain.Bucket("bogus"), nil, "")
	if !domain.Is(err, domain.ErrDoesNotExist) {
		t.Fatalf("got %v, want does-not-exist", err)
	}
}

func TestCreateTaskPublishFailureReturnsTaskCreationFailed(t *testing.T) {
	c, broker := newTestCoordinator(t)
	broker.failNext = true

	_, err := c.CreateTask("1801.00123", domain.BucketArxiv, nil, "")
	if !domain.Is(err, domain.ErrTaskCreationFailed) {
		t.Fatalf("got %v, want task-creation-failed", err)
	}
}

func TestGetTaskNoSuchTask(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.GetTask("1801.00123", domain.BucketArxiv, "1.0")
	if !domain.Is(err, domain.ErrNoSuchTask) {
		t.Fatalf("got %v, want no-such-task", err)
	}
}

func TestGetTaskReflectsBackendState(t *testing.T) {
	c, _ := newTestCoordinator(t)
	taskID, err := c.CreateTask("1801.00123", domain.BucketArxiv, nil, "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	state, err := c.GetTask("1801.00123", domain.BucketArxiv, "1.0")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if state.Kind != StateInProgress {
		t.Errorf("got kind %v, want in-progress after SENT", state.Kind)
	}

	if err := c.Results.RecordSuccess(taskID, "alice"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	state, err = c.GetTask("1801.00123", domain.BucketArxiv, "1.0")
	if err != nil {
		t.Fatalf("GetTask after success: %v", err)
	}
	if state.Kind != StateSucceeded {
		t.Errorf("got kind %v, want succeeded", state.Kind)
	}
	if state.Owner == nil || *state.Owner != "alice" {
		t.Errorf("got owner %v, want alice", state.Owner)
	}
}

func TestIsAvailableReflectsDependencies(t *testing.T) {
	c, _ := newTestCoordinator(t)
	if !c.IsAvailable() {
		t.Error("expected a freshly constructed coordinator to be available")
	}
}
