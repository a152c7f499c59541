package source

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/op/go-logging"

	"github.com/arxiv/fulltext/internal/domain"
)

// PreviewConfig configures the submission-preview adapter (spec §4.2.2).
type PreviewConfig struct {
	Scheme     string
	Host       string
	Port       int
	PathPrefix string
	VerifyTLS  bool
	Timeout    time.Duration
}

// Preview is the PDF source adapter for the submission bucket. Preview
// identifiers are owner-tagged: the upstream HEAD/GET responses carry an
// ARXIV-OWNER header and an ETag content checksum.
type Preview struct {
	cfg        PreviewConfig
	httpClient *http.Client
	log        *logging.Logger
}

func NewPreview(cfg PreviewConfig, log *logging.Logger) *Preview {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS},
	}
	return &Preview{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		log:        log,
	}
}

func (p *Preview) baseURL(identifier string) string {
	return fmt.Sprintf("%s://%s:%d%s/%s", p.cfg.Scheme, p.cfg.Host, p.cfg.Port, p.cfg.PathPrefix, identifier)
}

// Exists performs a HEAD request and reports whether the preview exists.
func (p *Preview) Exists(identifier string) (bool, error) {
	resp, err := p.head(identifier, "")
	if err != nil {
		return false, err
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

// Retrieve fetches the preview PDF bytes, along with the owner reported
// by the upstream (spec §4.2.2). The ETag header is not read.
func (p *Preview) Retrieve(identifier, token string) (*Result, error) {
	req, err := http.NewRequest(http.MethodGet, p.baseURL(identifier)+"/content", nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIOError, "building request", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIOError, "GET "+identifier+"/content", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		owner := ownerFromHeader(resp.Header)
		return &Result{Body: resp.Body, Owner: owner}, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, domain.NewError(domain.ErrDoesNotExist, identifier+" not found upstream")
	default:
		resp.Body.Close()
		return nil, domain.NewError(domain.ErrIOError, fmt.Sprintf("GET %s/content returned %d", identifier, resp.StatusCode))
	}
}

// GetOwner short-circuits to the HEAD request, per spec §4.2.2.
func (p *Preview) GetOwner(identifier, token string) (*string, error) {
	resp, err := p.head(identifier, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	return ownerFromHeader(resp.Header), nil
}

func (p *Preview) head(identifier, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodHead, p.baseURL(identifier), nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIOError, "building request", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIOError, "HEAD "+identifier, err)
	}
	return resp, nil
}

func ownerFromHeader(h http.Header) *string {
	owner := h.Get("ARXIV-OWNER")
	if owner == "" {
		return nil
	}
	return &owner
}
