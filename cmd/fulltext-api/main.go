// Command fulltext-api is the front-tier HTTP process (spec.md §5, §6.1).
// It wires Config into the Store, the two PDF source adapters, the
// Coordinator and the Controller, then exposes the four operations in
// internal/controller over the HTTP surface spec.md §6.1 describes.
//
// No example repo in this corpus pulls in a third-party HTTP router, so
// this binary uses net/http's own ServeMux (Go 1.22+ method/path
// patterns) rather than reaching for one — see DESIGN.md.
package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/op/go-logging"

	"github.com/arxiv/fulltext/internal/config"
	"github.com/arxiv/fulltext/internal/controller"
	"github.com/arxiv/fulltext/internal/coordinator"
	"github.com/arxiv/fulltext/internal/domain"
	flogging "github.com/arxiv/fulltext/internal/logging"
	"github.com/arxiv/fulltext/internal/resultstore"
	"github.com/arxiv/fulltext/internal/store"
	"github.com/arxiv/fulltext/internal/wiring"
)

func main() {
	cfg, err := config.FromEnvironment()
	if err != nil {
		panic(err)
	}
	log := flogging.Init(flogging.Config{LogDirectory: cfg.LogDirectory, LogToStderr: cfg.LogToStderr, LogLevel: cfg.LogLevel})
	log.Info("fulltext-api started")

	s := store.New(cfg.StorageVolume, log)
	if cfg.WaitForServices && !s.IsAvailable() {
		log.Fatal("storage volume unavailable at startup")
	}

	results, err := resultstore.Open(cfg.ResultBackendPath)
	if err != nil {
		log.Fatalf("opening result backend: %v", err)
	}
	defer results.Close()

	broker := coordinator.NewNsqdHTTPBroker(cfg.BrokerURL)
	coord := coordinator.New(s, results, broker, cfg.ExtractorVersion, log)

	sources := wiring.Sources(cfg, log)

	ctrl := controller.New(s, coord, sources, log)

	h := &httpHandlers{ctrl: ctrl, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", h.status)
	mux.HandleFunc("POST /{bucket}/{rest...}", h.start)
	mux.HandleFunc("GET /{bucket}/{rest...}", h.dispatch)

	log.Info("listening on :8080")
	if err := http.ListenAndServe(":8080", mux); err != nil {
		log.Fatalf("http server: %v", err)
	}
}

type httpHandlers struct {
	ctrl *controller.Controller
	log  *logging.Logger
}

func (h *httpHandlers) status(w http.ResponseWriter, r *http.Request) {
	if h.ctrl.ServiceStatus() {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
}

func (h *httpHandlers) start(w http.ResponseWriter, r *http.Request) {
	bucket := domain.Bucket(r.PathValue("bucket"))
	identifier := r.PathValue("rest")
	token := bearerToken(r)
	force := r.URL.Query().Get("force") == "true"

	outcome := h.ctrl.StartExtraction(bucket, identifier, token, force, controller.AllowAll)
	writeOutcome(w, outcome)
}

// dispatch serves every GET form spec.md §6.1 and the ground truth's
// routes.py describe under one bucket prefix:
//
//	{identifier}[/version/{v}](/status|/format/{f})?
//
// net/http's ServeMux wildcard can only trail a pattern, and an
// identifier may itself contain a slash (an old-style arxiv id, or any
// submission id), so the trailing /status, /format/{f} and /version/{v}
// segments are parsed out of the wildcard remainder by hand here rather
// than declared as separate mux patterns.
func (h *httpHandlers) dispatch(w http.ResponseWriter, r *http.Request) {
	bucket := domain.Bucket(r.PathValue("bucket"))
	identifier, version, format, isStatus := parseRetrievalPath(r.PathValue("rest"))

	var outcome controller.Outcome
	if isStatus {
		outcome = h.ctrl.TaskStatus(identifier, bucket, version, controller.AllowAll)
	} else {
		outcome = h.ctrl.Retrieve(identifier, bucket, version, format, controller.AllowAll)
	}
	writeOutcome(w, outcome)
}

// parseRetrievalPath splits a GET wildcard remainder into its
// identifier, optional version, format (defaulting to plain) and
// whether the request is for the /status form.
func parseRetrievalPath(rest string) (identifier, version string, format domain.Format, isStatus bool) {
	rest = strings.TrimSuffix(rest, "/")

	if trimmed, ok := trimTrailingSegment(rest, "status"); ok {
		isStatus = true
		rest = trimmed
	} else if trimmed, f, ok := trimTrailingPair(rest, "format"); ok {
		format = domain.Format(f)
		rest = trimmed
	}

	if trimmed, v, ok := trimTrailingPair(rest, "version"); ok {
		version = v
		rest = trimmed
	}

	identifier = rest
	if format == "" {
		format = domain.FormatPlain
	}
	return identifier, version, format, isStatus
}

// trimTrailingSegment reports whether path ends in "/"+segment, and if
// so returns path with that suffix removed.
func trimTrailingSegment(path, segment string) (string, bool) {
	suffix := "/" + segment
	if strings.HasSuffix(path, suffix) {
		return strings.TrimSuffix(path, suffix), true
	}
	return path, false
}

// trimTrailingPair reports whether path ends in "/"+key+"/"+value for
// some non-empty, slash-free value, and if so returns path with that
// suffix removed, plus the value.
func trimTrailingPair(path, key string) (string, string, bool) {
	prefix := "/" + key + "/"
	idx := strings.LastIndex(path, prefix)
	if idx == -1 {
		return path, "", false
	}
	value := path[idx+len(prefix):]
	if value == "" || strings.Contains(value, "/") {
		return path, "", false
	}
	return path[:idx], value, true
}

func writeOutcome(w http.ResponseWriter, outcome controller.Outcome) {
	switch outcome.Kind {
	case controller.OutcomeAccepted:
		w.Header().Set("Location", outcome.Location)
		w.WriteHeader(http.StatusAccepted)
	case controller.OutcomeSeeOther:
		w.Header().Set("Location", outcome.Location)
		w.WriteHeader(http.StatusSeeOther)
	case controller.OutcomeNotFound:
		w.WriteHeader(http.StatusNotFound)
	case controller.OutcomeServerError:
		w.WriteHeader(http.StatusInternalServerError)
	case controller.OutcomeOK:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(outcome.Extraction)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
