package controller

import (
	"errors"
	"testing"

	"github.com/arxiv/fulltext/internal/coordinator"
	"github.com/arxiv/fulltext/internal/domain"
	flogging "github.com/arxiv/fulltext/internal/logging"
	"github.com/arxiv/fulltext/internal/resultstore"
	"github.com/arxiv/fulltext/internal/source"
	"github.com/arxiv/fulltext/internal/store"
)

// fakeSource is a minimal in-memory source.Source double for the
// controller tests in this file.
type fakeSource struct {
	exists     bool
	existsErr  error
	owner      *string
	retrieveFn func(identifier, token string) (*source.Result, error)
}

func (f *fakeSource) Exists(identifier string) (bool, error) { return f.exists, f.existsErr }
func (f *fakeSource) Retrieve(identifier, token string) (*source.Result, error) {
	if f.retrieveFn != nil {
		return f.retrieveFn(identifier, token)
	}
	return nil, errors.New("not implemented")
}
func (f *fakeSource) GetOwner(identifier, token string) (*string, error) { return f.owner, nil }

type fakeBroker struct{}

func (fakeBroker) Publish(topic string, body []byte) error { return nil }

func newTestController(t *testing.T, sources map[domain.Bucket]source.Source) *Controller {
	t.Helper()
	s := store.New(t.TempDir(), flogging.Discard("controller_test"))
	results, err := resultstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening result backend: %v", err)
	}
	t.Cleanup(func() { results.Close() })
	coord := coordinator.New(s, results, fakeBroker{}, "1.0", flogging.Discard("controller_test"))
	return New(s, coord, sources, flogging.Discard("controller_test"))
}

func TestStartExtractionRejectsUnknownBucket(t *testing.T) {
	c := newTestController(t, nil)
	outcome := c.StartExtraction(domain.Bucket("bogus"), "x", "", false, AllowAll)
	if outcome.Kind != OutcomeNotFound {
		t.Fatalf("got %v, want not-found", outcome.Kind)
	}
}

func TestStartExtractionRejectsMissingUpstreamResource(t *testing.T) {
	sources := map[domain.Bucket]source.Source{
		domain.BucketArxiv: &fakeSource{exists: false},
	}
	c := newTestController(t, sources)
	outcome := c.StartExtraction(domain.BucketArxiv, "1801.00123", "", false, AllowAll)
	if outcome.Kind != OutcomeNotFound {
		t.Fatalf("got %v, want not-found", outcome.Kind)
	}
}

func TestStartExtractionCreatesTaskWhenNoneExists(t *testing.T) {
	sources := map[domain.Bucket]source.Source{
		domain.BucketArxiv: &fakeSource{exists: true},
	}
	c := newTestController(t, sources)
	outcome := c.StartExtraction(domain.BucketArxiv, "1801.00123", "", false, AllowAll)
	if outcome.Kind != OutcomeAccepted {
		t.Fatalf("got %v, want accepted", outcome.Kind)
	}
	if outcome.Location == "" {
		t.Error("expected a status Location on accept")
	}
}

func TestStartExtractionRedirectsWhenAlreadyInProgress(t *testing.T) {
	sources := map[domain.Bucket]source.Source{
		domain.BucketArxiv: &fakeSource{exists: true},
	}
	c := newTestController(t, sources)

	first := c.StartExtraction(domain.BucketArxiv, "1801.00123", "", false, AllowAll)
	if first.Kind != OutcomeAccepted {
		t.Fatalf("first call: got %v, want accepted", first.Kind)
	}

	second := c.StartExtraction(domain.BucketArxiv, "1801.00123", "", false, AllowAll)
	if second.Kind != OutcomeSeeOther {
		t.Fatalf("second call: got %v, want see-other", second.Kind)
	}
}

func TestStartExtractionForceResubmitsDespiteExistingRecord(t *testing.T) {
	sources := map[domain.Bucket]source.Source{
		domain.BucketArxiv: &fakeSource{exists: true},
	}
	c := newTestController(t, sources)

	if first := c.StartExtraction(domain.BucketArxiv, "1801.00123", "", false, AllowAll); first.Kind != OutcomeAccepted {
		t.Fatalf("first call: got %v, want accepted", first.Kind)
	}

	forced := c.StartExtraction(domain.BucketArxiv, "1801.00123", "", true, AllowAll)
	if forced.Kind != OutcomeAccepted {
		t.Fatalf("forced call: got %v, want accepted", forced.Kind)
	}
}

func TestStartExtractionDeniesUnauthorizedCallerAsNotFound(t *testing.T) {
	owner := "alice"
	sources := map[domain.Bucket]source.Source{
		domain.BucketSubmission: &fakeSource{exists: true, owner: &owner},
	}
	c := newTestController(t, sources)
	deny := func(identifier string, o *string) bool { return false }

	outcome := c.StartExtraction(domain.BucketSubmission, "12345/abc==", "", false, deny)
	if outcome.Kind != OutcomeNotFound {
		t.Fatalf("got %v, want not-found (never a distinct forbidden outcome)", outcome.Kind)
	}
}

func TestRetrieveRedirectsToStatusWhileInProgress(t *testing.T) {
	sources := map[domain.Bucket]source.Source{
		domain.BucketArxiv: &fakeSource{exists: true},
	}
	c := newTestController(t, sources)

	started := c.StartExtraction(domain.BucketArxiv, "1801.00123", "", false, AllowAll)
	if started.Kind != OutcomeAccepted {
		t.Fatalf("StartExtraction: got %v, want accepted", started.Kind)
	}

	outcome := c.Retrieve("1801.00123", domain.BucketArxiv, "", domain.FormatPlain, AllowAll)
	if outcome.Kind != OutcomeSeeOther {
		t.Fatalf("got %v, want see-other while content is absent", outcome.Kind)
	}
}

func TestRetrieveNotFoundWhenAbsent(t *testing.T) {
	c := newTestController(t, nil)
	outcome := c.Retrieve("1801.00123", domain.BucketArxiv, "", domain.FormatPlain, AllowAll)
	if outcome.Kind != OutcomeNotFound {
		t.Fatalf("got %v, want not-found", outcome.Kind)
	}
}

func TestServiceStatusTrueForFreshDependencies(t *testing.T) {
	c := newTestController(t, nil)
	if !c.ServiceStatus() {
		t.Error("expected service_status to be healthy for fresh store/coordinator")
	}
}

func TestTaskStatusNotFoundWhenNoRecordExists(t *testing.T) {
	c := newTestController(t, nil)
	outcome := c.TaskStatus("1801.00123", domain.BucketArxiv, "", AllowAll)
	if outcome.Kind != OutcomeNotFound {
		t.Fatalf("got %v, want not-found", outcome.Kind)
	}
}

func TestTaskStatusInProgressAfterStart(t *testing.T) {
	sources := map[domain.Bucket]source.Source{
		domain.BucketArxiv: &fakeSource{exists: true},
	}
	c := newTestController(t, sources)

	started := c.StartExtraction(domain.BucketArxiv, "1801.00123", "", false, AllowAll)
	if started.Kind != OutcomeAccepted {
		t.Fatalf("StartExtraction: got %v, want accepted", started.Kind)
	}

	outcome := c.TaskStatus("1801.00123", domain.BucketArxiv, "", AllowAll)
	if outcome.Kind != OutcomeOK {
		t.Fatalf("got %v, want ok", outcome.Kind)
	}
	if outcome.Extraction == nil || outcome.Extraction.Status != domain.StatusInProgress {
		t.Fatalf("got %+v, want in-progress extraction", outcome.Extraction)
	}
}

func TestTaskStatusSucceededRedirectsToContent(t *testing.T) {
	sources := map[domain.Bucket]source.Source{
		domain.BucketArxiv: &fakeSource{exists: true},
	}
	c := newTestController(t, sources)

	started := c.StartExtraction(domain.BucketArxiv, "1801.00123", "", false, AllowAll)
	if started.Kind != OutcomeAccepted {
		t.Fatalf("StartExtraction: got %v, want accepted", started.Kind)
	}
	if err := c.Coordinator.Results.RecordSuccess(started.Extraction.TaskID, ""); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}

	outcome := c.TaskStatus("1801.00123", domain.BucketArxiv, "", AllowAll)
	if outcome.Kind != OutcomeSeeOther {
		t.Fatalf("got %v, want see-other to content", outcome.Kind)
	}
}

func TestTaskStatusFailedReportsReason(t *testing.T) {
	sources := map[domain.Bucket]source.Source{
		domain.BucketArxiv: &fakeSource{exists: true},
	}
	c := newTestController(t, sources)

	started := c.StartExtraction(domain.BucketArxiv, "1801.00123", "", false, AllowAll)
	if started.Kind != OutcomeAccepted {
		t.Fatalf("StartExtraction: got %v, want accepted", started.Kind)
	}
	if err := c.Coordinator.Results.RecordFailure(started.Extraction.TaskID, "boom"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}

	outcome := c.TaskStatus("1801.00123", domain.BucketArxiv, "", AllowAll)
	if outcome.Kind != OutcomeOK {
		t.Fatalf("got %v, want ok", outcome.Kind)
	}
	if outcome.Extraction == nil || outcome.Extraction.Status != domain.StatusFailed || outcome.Extraction.Exception == nil || *outcome.Extraction.Exception != "boom" {
		t.Fatalf("got %+v, want failed extraction with reason \"boom\"", outcome.Extraction)
	}
}

func TestTaskStatusDeniesUnauthorizedCallerAsNotFound(t *testing.T) {
	owner := "alice"
	sources := map[domain.Bucket]source.Source{
		domain.BucketSubmission: &fakeSource{exists: true, owner: &owner},
	}
	c := newTestController(t, sources)

	started := c.StartExtraction(domain.BucketSubmission, "12345/abc==", "", false, AllowAll)
	if started.Kind != OutcomeAccepted {
		t.Fatalf("StartExtraction: got %v, want accepted", started.Kind)
	}

	deny := func(identifier string, o *string) bool { return false }
	outcome := c.TaskStatus("12345/abc==", domain.BucketSubmission, "", deny)
	if outcome.Kind != OutcomeNotFound {
		t.Fatalf("got %v, want not-found (never a distinct forbidden outcome)", outcome.Kind)
	}
}
