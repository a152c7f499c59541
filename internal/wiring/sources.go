// Package wiring holds the small amount of construction logic shared
// between cmd/fulltext-api and cmd/fulltext-worker, so the two process
// entry points don't duplicate how internal/config's plain structs turn
// into the adapters internal/source expects.
package wiring

import (
	"github.com/op/go-logging"

	"github.com/arxiv/fulltext/internal/config"
	"github.com/arxiv/fulltext/internal/domain"
	"github.com/arxiv/fulltext/internal/source"
)

// Sources builds the bucket -> adapter map both processes need.
func Sources(cfg config.Config, log *logging.Logger) map[domain.Bucket]source.Source {
	return map[domain.Bucket]source.Source{
		domain.BucketArxiv: source.NewCanonical(source.CanonicalConfig{
			Scheme:        cfg.Canonical.Scheme,
			Host:          cfg.Canonical.Host,
			Port:          cfg.Canonical.Port,
			PathPrefix:    cfg.Canonical.PathPrefix,
			VerifyTLS:     cfg.Canonical.VerifyTLS,
			Timeout:       cfg.Canonical.Timeout,
			RenderWait:    cfg.Canonical.RenderWait,
			RenderRetries: cfg.Canonical.RenderRetries,
		}, log),
		domain.BucketSubmission: source.NewPreview(source.PreviewConfig{
			Scheme:     cfg.Preview.Scheme,
			Host:       cfg.Preview.Host,
			Port:       cfg.Preview.Port,
			PathPrefix: cfg.Preview.PathPrefix,
			VerifyTLS:  cfg.Preview.VerifyTLS,
			Timeout:    cfg.Preview.Timeout,
		}, log),
	}
}
