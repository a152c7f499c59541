// Package worker implements the extraction pipeline spec.md §4.6
// describes as "the worker task": the steps a worker-tier process runs
// once per task, from loading the pre-created metadata record through
// to writing both text variants back to the store.
package worker

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"

	"github.com/arxiv/fulltext/internal/domain"
	"github.com/arxiv/fulltext/internal/normalize"
	"github.com/arxiv/fulltext/internal/resultstore"
	"github.com/arxiv/fulltext/internal/source"
	"github.com/arxiv/fulltext/internal/store"
)

// Extractor is the subset of *extractor.Sandbox the pipeline needs,
// named here so tests can substitute a fake sandbox.
type Extractor interface {
	DoExtraction(ctx context.Context, pdfPath string) (string, error)
}

// Pipeline executes extract() for one task at a time. It holds no
// per-task state, so a single Pipeline can be shared by every goroutine
// a worker-tier process runs (spec.md §5: "each worker executes at most
// one extraction at a time" describes the queue's prefetch, not a
// constraint on this type).
type Pipeline struct {
	Store          *store.Store
	Results        *resultstore.Store
	Sources        map[domain.Bucket]source.Source
	Extractor      Extractor
	WorkDir        string
	ExtractorImage string
	log            *logging.Logger
}

func New(s *store.Store, results *resultstore.Store, sources map[domain.Bucket]source.Source, extractor Extractor, workDir, extractorImage string, log *logging.Logger) *Pipeline {
	return &Pipeline{Store: s, Results: results, Sources: sources, Extractor: extractor, WorkDir: workDir, ExtractorImage: extractorImage, log: log}
}

// Extract runs the six steps of spec.md §4.6 for one task_id. On
// success it returns the terminal Extraction (content omitted, per step
// 6). On failure it writes the failure metadata and returns the error
// so the caller (the NSQ HandleMessage wrapper) can requeue or log.
func (p *Pipeline) Extract(ctx context.Context, taskID, identifier string, bucket domain.Bucket, version string, owner *string, token string) (*domain.Extraction, error) {
	// Step 1: load the pre-created metadata record. Its absence means
	// the coordinator never wrote it — a no-such-task condition, not a
	// retriable failure.
	extraction, err := p.Store.Retrieve(identifier, store.RetrieveOptions{Bucket: bucket, Version: version, MetaOnly: true})
	if err != nil {
		if domain.KindOf(err) == domain.ErrDoesNotExist {
			return nil, domain.NewError(domain.ErrNoSuchTask, "no pre-created record for "+taskID)
		}
		return nil, err
	}

	p.markStarted(taskID)

	src, ok := p.Sources[bucket]
	if !ok {
		return nil, p.fail(extraction, domain.NewError(domain.ErrConfigurationError, "no source adapter configured for bucket "+string(bucket)))
	}

	// Step 2: retrieve the PDF.
	result, err := src.Retrieve(identifier, token)
	if err != nil {
		return nil, p.fail(extraction, err)
	}
	defer result.Body.Close()

	// Step 3: copy into workdir, invoke the sandbox, always clean up the
	// PDF temp file regardless of outcome.
	pdfPath := filepath.Join(p.WorkDir, uuid.NewString()+".pdf")
	if err := writeStream(pdfPath, result.Body); err != nil {
		return nil, p.fail(extraction, domain.WrapError(domain.ErrIOError, "writing PDF to workdir", err))
	}
	defer os.Remove(pdfPath)

	text, err := p.Extractor.DoExtraction(ctx, pdfPath)
	if err != nil {
		return nil, p.fail(extraction, err)
	}

	// Step 4: write the succeeded record with the plain-text content.
	now := time.Now().UTC()
	succeeded := extraction.MarkSucceeded(now, text)
	succeeded.Owner = owner
	succeeded.ExtractorImage = p.ExtractorImage
	if err := p.Store.Store(succeeded, domain.FormatPlain); err != nil {
		return nil, p.fail(extraction, err)
	}
	p.Results.RecordSuccess(taskID, ownerString(owner))

	// Step 5: PSV is best-effort. A failure here is logged only and
	// never reverts the succeeded state already committed above (spec.md
	// §4.6 step 5: "once plain text is stored the extraction is
	// considered succeeded").
	psv := normalize.NormalizeTextPSV(text)
	withPSV := succeeded.WithContent(psv)
	if err := p.Store.Store(withPSV, domain.FormatPSV); err != nil {
		p.log.Warningf("task %s: writing PSV variant: %v", taskID, err)
	}

	// Step 6: return the terminal record without content.
	return succeeded.WithoutContent(), nil
}

func (p *Pipeline) markStarted(taskID string) {
	if err := p.Results.MarkStarted(taskID); err != nil {
		p.log.Warningf("task %s: marking started: %v", taskID, err)
	}
}

// fail writes the failure-state metadata per spec.md §4.6 step 2/3's
// shared error path and records the failure in the result backend, then
// returns the original error so the caller re-raises it (the queue
// records FAILURE per spec.md §7's propagation policy).
func (p *Pipeline) fail(extraction *domain.Extraction, cause error) error {
	now := time.Now().UTC()
	failed := extraction.MarkFailed(now, cause.Error())
	if err := p.Store.Store(failed, ""); err != nil {
		p.log.Errorf("task %s: writing failure metadata: %v", extraction.TaskID, err)
	}
	if err := p.Results.RecordFailure(extraction.TaskID, cause.Error()); err != nil {
		p.log.Errorf("task %s: recording failure: %v", extraction.TaskID, err)
	}
	return cause
}

func writeStream(path string, body io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, body)
	return err
}

func ownerString(owner *string) string {
	if owner == nil {
		return ""
	}
	return *owner
}
