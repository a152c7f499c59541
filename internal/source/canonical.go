package source

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/op/go-logging"

	"github.com/arxiv/fulltext/internal/domain"
)

// CanonicalConfig configures the canonical announced-e-print adapter
// (spec §4.2.1). Scheme, host, port, and path prefix are all
// independently configurable so the same adapter can point at a staging
// or production upstream.
type CanonicalConfig struct {
	Scheme       string
	Host         string
	Port         int
	PathPrefix   string
	VerifyTLS    bool
	Timeout      time.Duration
	RenderWait   time.Duration
	RenderRetries int
}

// Canonical is the PDF source adapter for the arxiv bucket.
type Canonical struct {
	cfg        CanonicalConfig
	httpClient *http.Client
	log        *logging.Logger
}

// NewCanonical returns a Canonical adapter. If cfg.RenderRetries is zero
// it defaults to 5, per spec §4.2.1.
func NewCanonical(cfg CanonicalConfig, log *logging.Logger) *Canonical {
	if cfg.RenderRetries == 0 {
		cfg.RenderRetries = 5
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS},
	}
	return &Canonical{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		log:        log,
	}
}

func (c *Canonical) pdfURL(identifier string) string {
	return fmt.Sprintf("%s://%s:%d%s/pdf/%s", c.cfg.Scheme, c.cfg.Host, c.cfg.Port, c.cfg.PathPrefix, identifier)
}

// Exists performs a HEAD request; 200 is true, 404 is false, anything
// else is an io-error (spec §4.2.1).
func (c *Canonical) Exists(identifier string) (bool, error) {
	resp, err := c.httpClient.Head(c.pdfURL(identifier))
	if err != nil {
		return false, domain.WrapError(domain.ErrIOError, "HEAD "+identifier, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, domain.NewError(domain.ErrIOError, fmt.Sprintf("HEAD %s returned %d", identifier, resp.StatusCode))
	}
}

// Retrieve fetches the PDF, retrying while the server is still rendering
// it server-side (indicated by an HTML response instead of a PDF), up to
// cfg.RenderRetries times (spec §4.2.1).
func (c *Canonical) Retrieve(identifier, token string) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.RenderRetries; attempt++ {
		resp, err := c.get(identifier, token)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			resp.Body.Close()
			return nil, domain.NewError(domain.ErrDoesNotExist, identifier+" not found upstream")
		case http.StatusOK:
			contentType := resp.Header.Get("Content-Type")
			if isPDFContentType(contentType) {
				return &Result{Body: resp.Body}, nil
			}
			// The server is still rendering; the response is HTML.
			resp.Body.Close()
			if c.log != nil {
				c.log.Info("canonical PDF for %s is still rendering; retrying in %s", identifier, c.cfg.RenderWait)
			}
			time.Sleep(c.cfg.RenderWait)
			lastErr = domain.NewError(domain.ErrIOError, identifier+" still rendering after retries")
			continue
		default:
			resp.Body.Close()
			return nil, domain.NewError(domain.ErrIOError, fmt.Sprintf("GET %s returned %d", identifier, resp.StatusCode))
		}
	}
	return nil, lastErr
}

// GetOwner is a no-op for the canonical adapter: arxiv bucket extractions
// always have a nil owner (invariant 5).
func (c *Canonical) GetOwner(identifier, token string) (*string, error) {
	return nil, nil
}

func (c *Canonical) get(identifier, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, c.pdfURL(identifier), nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIOError, "building request", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIOError, "GET "+identifier, err)
	}
	return resp, nil
}

func isPDFContentType(contentType string) bool {
	return len(contentType) >= len("application/pdf") && contentType[:len("application/pdf")] == "application/pdf"
}
