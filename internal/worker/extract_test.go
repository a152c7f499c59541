package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/arxiv/fulltext/internal/domain"
	flogging "github.com/arxiv/fulltext/internal/logging"
	"github.com/arxiv/fulltext/internal/resultstore"
	"github.com/arxiv/fulltext/internal/source"
	"github.com/arxiv/fulltext/internal/store"
)

type fakeSource struct {
	body    string
	owner   *string
	failErr error
}

func (f *fakeSource) Exists(identifier string) (bool, error) { return true, nil }
func (f *fakeSource) Retrieve(identifier, token string) (*source.Result, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	return &source.Result{Body: io.NopCloser(strings.NewReader(f.body)), Owner: f.owner}, nil
}
func (f *fakeSource) GetOwner(identifier, token string) (*string, error) { return f.owner, nil }

type fakeExtractor struct {
	text    string
	failErr error
}

func (f *fakeExtractor) DoExtraction(ctx context.Context, pdfPath string) (string, error) {
	if f.failErr != nil {
		return "", f.failErr
	}
	return f.text, nil
}

func newTestPipeline(t *testing.T, src source.Source, ext Extractor) (*Pipeline, *store.Store, *resultstore.Store) {
	t.Helper()
	s := store.New(t.TempDir(), flogging.Discard("worker_test"))
	results, err := resultstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening result backend: %v", err)
	}
	t.Cleanup(func() { results.Close() })
	sources := map[domain.Bucket]source.Source{domain.BucketArxiv: src}
	p := New(s, results, sources, ext, t.TempDir(), "fulltext-extractor:1.0", flogging.Discard("worker_test"))
	return p, s, results
}

func seedPlaceholder(t *testing.T, s *store.Store, taskID string) {
	t.Helper()
	placeholder := &domain.Extraction{
		Identifier: "1801.00123",
		Bucket:     domain.BucketArxiv,
		Version:    "1.0",
		Status:     domain.StatusInProgress,
		TaskID:     taskID,
	}
	if err := s.Store(placeholder, ""); err != nil {
		t.Fatalf("seeding placeholder: %v", err)
	}
}

func TestExtractSucceedsAndWritesBothVariants(t *testing.T) {
	owner := "alice"
	src := &fakeSource{body: "%PDF-fake-bytes", owner: &owner}
	ext := &fakeExtractor{text: "Hello.  World."}
	p, s, results := newTestPipeline(t, src, ext)

	taskID := "arxiv::1801.00123::1.0"
	seedPlaceholder(t, s, taskID)

	extraction, err := p.Extract(context.Background(), taskID, "1801.00123", domain.BucketArxiv, "1.0", &owner, "tok")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if extraction.Status != domain.StatusSucceeded {
		t.Errorf("got status %v, want succeeded", extraction.Status)
	}
	if extraction.Content != nil {
		t.Error("expected returned record to omit content")
	}
	if extraction.ExtractorImage != "fulltext-extractor:1.0" {
		t.Errorf("got extractor image %q", extraction.ExtractorImage)
	}

	plain, err := s.Retrieve("1801.00123", store.RetrieveOptions{Bucket: domain.BucketArxiv, Version: "1.0", Format: domain.FormatPlain})
	if err != nil {
		t.Fatalf("retrieving plain: %v", err)
	}
	if plain.Content == nil || *plain.Content != "Hello.  World." {
		t.Errorf("got plain content %v", plain.Content)
	}

	psv, err := s.Retrieve("1801.00123", store.RetrieveOptions{Bucket: domain.BucketArxiv, Version: "1.0", Format: domain.FormatPSV})
	if err != nil {
		t.Fatalf("retrieving psv: %v", err)
	}
	if psv.Content == nil {
		t.Fatal("expected a psv variant to have been written")
	}

	record, err := results.Lookup(taskID)
	if err != nil {
		t.Fatalf("looking up result: %v", err)
	}
	if record.State != resultstore.StateSuccess || record.Result != "alice" {
		t.Errorf("got record %+v, want SUCCESS/alice", record)
	}
}

func TestExtractMissingPlaceholderIsNoSuchTask(t *testing.T) {
	src := &fakeSource{body: "bytes"}
	ext := &fakeExtractor{text: "text"}
	p, _, _ := newTestPipeline(t, src, ext)

	_, err := p.Extract(context.Background(), "arxiv::1801.00123::1.0", "1801.00123", domain.BucketArxiv, "1.0", nil, "")
	if !domain.Is(err, domain.ErrNoSuchTask) {
		t.Fatalf("got %v, want no-such-task", err)
	}
}

func TestExtractSourceRetrieveFailureRecordsFailure(t *testing.T) {
	src := &fakeSource{failErr: errors.New("upstream unreachable")}
	ext := &fakeExtractor{text: "text"}
	p, s, results := newTestPipeline(t, src, ext)

	taskID := "arxiv::1801.00123::1.0"
	seedPlaceholder(t, s, taskID)

	_, err := p.Extract(context.Background(), taskID, "1801.00123", domain.BucketArxiv, "1.0", nil, "")
	if err == nil {
		t.Fatal("expected an error")
	}

	meta, rerr := s.Retrieve("1801.00123", store.RetrieveOptions{Bucket: domain.BucketArxiv, Version: "1.0", MetaOnly: true})
	if rerr != nil {
		t.Fatalf("retrieving failure metadata: %v", rerr)
	}
	if meta.Status != domain.StatusFailed {
		t.Errorf("got status %v, want failed", meta.Status)
	}
	if meta.Exception == nil || *meta.Exception != err.Error() {
		t.Errorf("got exception %v, want %q", meta.Exception, err.Error())
	}

	record, lerr := results.Lookup(taskID)
	if lerr != nil {
		t.Fatalf("looking up result: %v", lerr)
	}
	if record.State != resultstore.StateFailure {
		t.Errorf("got state %v, want FAILURE", record.State)
	}
}

func TestExtractSandboxFailureRecordsFailure(t *testing.T) {
	src := &fakeSource{body: "bytes"}
	ext := &fakeExtractor{failErr: errors.New("container exited nonzero")}
	p, s, results := newTestPipeline(t, src, ext)

	taskID := "arxiv::1801.00123::1.0"
	seedPlaceholder(t, s, taskID)

	_, err := p.Extract(context.Background(), taskID, "1801.00123", domain.BucketArxiv, "1.0", nil, "")
	if err == nil {
		t.Fatal("expected an error")
	}

	record, lerr := results.Lookup(taskID)
	if lerr != nil {
		t.Fatalf("looking up result: %v", lerr)
	}
	if record.State != resultstore.StateFailure {
		t.Errorf("got state %v, want FAILURE", record.State)
	}
}
