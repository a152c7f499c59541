// Package config loads the process-wide, immutable configuration
// described in spec.md §6.4. Following the teacher's config.json + env
// var pattern (bagman/config.go), deployment-environment values and
// secrets are read from the environment rather than checked in, while
// structural defaults are provided in code.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/op/go-logging"

	"github.com/arxiv/fulltext/internal/domain"
)

// Config is constructed once at process start and passed to every
// constructor by value. It is never read from a package-level global
// after startup (spec.md §9's note against ambient global config).
type Config struct {
	// StorageVolume is the root of the content-addressable filesystem
	// store (C2).
	StorageVolume string

	// ExtractorImage and ExtractorVersion identify the sandboxed
	// extractor (C4). ExtractorVersion is stamped onto every Extraction
	// record; ExtractorImage only onto succeeded ones.
	ExtractorImage   string
	ExtractorVersion string

	// WorkDir and MountDir are two paths for the same scratch volume:
	// WorkDir is where this process writes PDFs, MountDir is the path
	// the sandbox runtime bind-mounts into the container at /pdfs.
	WorkDir  string
	MountDir string

	// SandboxHost is the Docker Engine API endpoint the sandbox talks
	// to, e.g. unix:///var/run/docker.sock or tcp://docker:2375.
	SandboxHost string

	// Canonical and Preview configure the two PDF source adapters (C3).
	Canonical CanonicalConfig
	Preview   PreviewConfig

	// BrokerURL is the nsqd HTTP address the coordinator publishes
	// tasks to, e.g. http://localhost:4151.
	BrokerURL string

	// NsqLookupdAddress is the nsqlookupd address the worker-tier
	// consumer discovers nsqd instances through.
	NsqLookupdAddress string

	// ResultBackendPath is the directory of the embedded badger
	// database backing the result store (C10).
	ResultBackendPath string

	// LogDirectory, LogToStderr and LogLevel configure C9.
	LogDirectory string
	LogToStderr  bool
	LogLevel     logging.Level

	// WaitForServices, when true, makes the front-tier process check the
	// storage volume once at startup and exit if it is unavailable. It
	// does not wait or retry, and no other dependency is checked.
	WaitForServices bool
}

// CanonicalConfig mirrors source.CanonicalConfig's fields so Config has
// no import-cycle dependency on the source package.
type CanonicalConfig struct {
	Scheme        string
	Host          string
	Port          int
	PathPrefix    string
	VerifyTLS     bool
	Timeout       time.Duration
	RenderWait    time.Duration
	RenderRetries int
}

// PreviewConfig mirrors source.PreviewConfig's fields for the same
// reason.
type PreviewConfig struct {
	Scheme     string
	Host       string
	Port       int
	PathPrefix string
	VerifyTLS  bool
	Timeout    time.Duration
}

// FromEnvironment builds a Config from the variables listed in
// spec.md §6.4, applying the defaults a development deployment would
// want when a variable is unset. It returns ErrConfigurationError if a
// numeric, bool or log-level variable fails to parse; every variable
// has a default, so none is required.
func FromEnvironment() (Config, error) {
	cfg := Config{
		StorageVolume:     getenv("STORAGE_VOLUME", "/data/fulltext"),
		ExtractorImage:    getenv("EXTRACTOR_IMAGE", "arxiv/fulltext-extractor"),
		ExtractorVersion:  getenv("EXTRACTOR_VERSION", "1.0"),
		WorkDir:           getenv("WORKDIR", "/tmp/fulltext/work"),
		MountDir:          getenv("MOUNTDIR", "/tmp/fulltext/mount"),
		SandboxHost:       getenv("DOCKER_HOST", "unix:///var/run/docker.sock"),
		BrokerURL:         getenv("BROKER_URL", "http://localhost:4151"),
		NsqLookupdAddress: getenv("NSQ_LOOKUPD_ADDRESS", "localhost:4161"),
		ResultBackendPath: getenv("RESULT_BACKEND", "/data/fulltext-results"),
		LogDirectory:      getenv("LOG_DIRECTORY", "logs"),
	}

	var err error
	cfg.LogToStderr, err = getenvBool("LOG_TO_STDERR", false)
	if err != nil {
		return Config{}, err
	}

	waitVar := "WAIT_FOR_SERVICES"
	if os.Getenv(waitVar) == "" {
		waitVar = "WAIT_ON_STARTUP"
	}
	cfg.WaitForServices, err = getenvBool(waitVar, false)
	if err != nil {
		return Config{}, err
	}

	cfg.LogLevel, err = getenvLogLevel("LOG_LEVEL", logging.INFO)
	if err != nil {
		return Config{}, err
	}

	cfg.Canonical = CanonicalConfig{
		Scheme:     getenv("CANONICAL_SCHEME", "https"),
		Host:       getenv("CANONICAL_ENDPOINT", "arxiv.org"),
		PathPrefix: getenv("CANONICAL_PATH_PREFIX", ""),
		VerifyTLS:  true,
		Timeout:    30 * time.Second,
		RenderWait: 2 * time.Second,
	}
	cfg.Canonical.Port, err = getenvInt("CANONICAL_PORT", 443)
	if err != nil {
		return Config{}, err
	}
	cfg.Canonical.VerifyTLS, err = getenvBool("CANONICAL_VERIFY_TLS", true)
	if err != nil {
		return Config{}, err
	}
	cfg.Canonical.RenderRetries, err = getenvInt("CANONICAL_RENDER_RETRIES", 5)
	if err != nil {
		return Config{}, err
	}

	cfg.Preview = PreviewConfig{
		Scheme:     getenv("PREVIEW_SCHEME", "https"),
		Host:       getenv("PREVIEW_ENDPOINT", "submit.arxiv.org"),
		PathPrefix: getenv("PREVIEW_PATH_PREFIX", "/preview"),
		VerifyTLS:  true,
		Timeout:    30 * time.Second,
	}
	cfg.Preview.Port, err = getenvInt("PREVIEW_PORT", 443)
	if err != nil {
		return Config{}, err
	}
	cfg.Preview.VerifyTLS, err = getenvBool("PREVIEW_VERIFY_TLS", true)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func getenvInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.WrapError(domain.ErrConfigurationError, "parsing "+name, err)
	}
	return n, nil
}

func getenvBool(name string, fallback bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, domain.WrapError(domain.ErrConfigurationError, "parsing "+name, err)
	}
	return b, nil
}

func getenvLogLevel(name string, fallback logging.Level) (logging.Level, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	lvl, err := logging.LogLevel(v)
	if err != nil {
		return 0, domain.WrapError(domain.ErrConfigurationError, "parsing "+name, err)
	}
	return lvl, nil
}
