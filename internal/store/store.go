// Package store implements the filesystem-backed content-addressable
// store (spec §4.1): one meta.json plus up to two content blobs per
// (identifier, version, bucket) triple, laid out so that identifier style
// and extractor version are encoded directly in the path.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/op/go-logging"

	"github.com/arxiv/fulltext/internal/domain"
)

const metaFileName = "meta.json"

// Store is the filesystem-backed metadata and content store. It holds no
// mutable state beyond the volume root, so a single Store may be shared
// across request-serving goroutines and worker goroutines alike (spec §5).
type Store struct {
	Volume string
	log    *logging.Logger
}

// New returns a Store rooted at volume. It does not touch the filesystem;
// call IsAvailable to verify the volume is reachable and writable.
func New(volume string, log *logging.Logger) *Store {
	return &Store{Volume: volume, log: log}
}

// Store always writes meta.json. If format is non-empty and
// extraction.Content is non-nil, it additionally writes the named content
// blob. Parent directories are created as needed. Any I/O error is
// returned as ErrStorageFailed.
func (s *Store) Store(extraction *domain.Extraction, format domain.Format) error {
	dir := s.versionDir(extraction.Bucket, extraction.Identifier, extraction.Version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return domain.WrapError(domain.ErrStorageFailed, "creating version directory "+dir, err)
	}

	metaBytes, err := json.MarshalIndent(extraction.WithoutContent(), "", "  ")
	if err != nil {
		return domain.WrapError(domain.ErrStorageFailed, "marshalling metadata", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, metaFileName), metaBytes); err != nil {
		return domain.WrapError(domain.ErrStorageFailed, "writing "+metaFileName, err)
	}

	if format != "" && extraction.Content != nil {
		if err := writeFileAtomic(filepath.Join(dir, string(format)), []byte(*extraction.Content)); err != nil {
			return domain.WrapError(domain.ErrStorageFailed, "writing "+string(format)+" blob", err)
		}
	}
	return nil
}

// RetrieveOptions configures Retrieve. Version may be empty, in which
// case the latest version is resolved per §4.1.1.
type RetrieveOptions struct {
	Version  string
	Format   domain.Format
	Bucket   domain.Bucket
	MetaOnly bool
}

// Retrieve loads the metadata record for identifier/opts.Bucket, resolving
// to the latest version when opts.Version is empty. If opts.MetaOnly is
// false it also attempts to read the content blob for opts.Format; a
// missing blob is not an error (this is how "in progress" is observable
// to a reader, per spec §4.1).
func (s *Store) Retrieve(identifier string, opts RetrieveOptions) (*domain.Extraction, error) {
	version := opts.Version
	if version == "" {
		resolved, err := s.LatestVersion(opts.Bucket, identifier)
		if err != nil {
			return nil, err
		}
		version = resolved
	}

	dir := s.versionDir(opts.Bucket, identifier, version)
	metaPath := filepath.Join(dir, metaFileName)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewError(domain.ErrDoesNotExist, "no metadata for "+identifier+" version "+version)
		}
		return nil, domain.WrapError(domain.ErrStorageFailed, "reading "+metaPath, err)
	}

	var extraction domain.Extraction
	if err := json.Unmarshal(raw, &extraction); err != nil {
		return nil, domain.WrapError(domain.ErrStorageFailed, "parsing "+metaPath, err)
	}
	if extraction.Bucket != opts.Bucket {
		return nil, domain.NewError(domain.ErrDoesNotExist,
			fmt.Sprintf("metadata bucket %q does not match requested bucket %q", extraction.Bucket, opts.Bucket))
	}

	if !opts.MetaOnly {
		format := opts.Format
		if format == "" {
			format = domain.FormatPlain
		}
		blob, err := os.ReadFile(filepath.Join(dir, string(format)))
		if err == nil {
			content := string(blob)
			extraction.Content = &content
		} else if !os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrStorageFailed, "reading content blob", err)
		}
		// A missing blob is not fatal: Content stays nil, which is how
		// callers observe an in-progress or failed extraction.
	}

	return &extraction, nil
}

// LatestVersion enumerates the direct subdirectories of the identifier
// path (ignoring dotfiles) and returns the name of the last one after
// sorting per spec §4.1.1: parseable-as-float entries sort numerically;
// unparseable entries sort lexicographically before all parseable ones.
func (s *Store) LatestVersion(bucket domain.Bucket, identifier string) (string, error) {
	dir := s.identifierDir(bucket, identifier)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.NewError(domain.ErrDoesNotExist, "no versions for "+identifier)
		}
		return "", domain.WrapError(domain.ErrStorageFailed, "listing "+dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return "", domain.NewError(domain.ErrDoesNotExist, "no versions for "+identifier)
	}

	sort.Slice(names, func(i, j int) bool {
		return versionLess(names[i], names[j])
	})
	return names[len(names)-1], nil
}

// versionLess implements the total order spec §4.1.1 and §8 invariant 4
// require: two parseable versions compare numerically; a parseable
// version is always greater than an unparseable one; two unparseable
// versions compare lexicographically. This matches the source system's
// float(version) comparison with non-numeric tags sorting first, and is
// documented (not silently changed) per the Open Question in spec §9.
func versionLess(a, b string) bool {
	af, aok := parseVersionFloat(a)
	bf, bok := parseVersionFloat(b)
	switch {
	case aok && bok:
		return af < bf
	case aok && !bok:
		return false
	case !aok && bok:
		return true
	default:
		return a < b
	}
}

func parseVersionFloat(v string) (float64, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IsAvailable writes and removes a transient probe file under a dedicated
// subtree of the volume. Any failure (including the volume being entirely
// unreachable) returns false; it never returns an error, matching the
// health-check contract in spec §4.1.
func (s *Store) IsAvailable() bool {
	probeDir := filepath.Join(s.Volume, ".probe")
	if err := os.MkdirAll(probeDir, 0755); err != nil {
		return false
	}
	probeFile := filepath.Join(probeDir, "probe")
	if err := os.WriteFile(probeFile, []byte("ok"), 0644); err != nil {
		return false
	}
	if err := os.Remove(probeFile); err != nil {
		return false
	}
	return true
}

// identifierDir returns the path of the identifier directory (the parent
// of every version directory) for bucket/identifier, per the layout rules
// in spec §4.1.
func (s *Store) identifierDir(bucket domain.Bucket, identifier string) string {
	switch domain.ClassifyIdentifier(identifier) {
	case domain.IdentifierOldStyle:
		prefix, yymm, fullID, _ := domain.OldStyleParts(identifier)
		return filepath.Join(s.Volume, string(bucket), prefix, yymm, fullID)
	case domain.IdentifierNewStyle:
		yymm, fullID, _ := domain.NewStyleParts(identifier)
		return filepath.Join(s.Volume, string(bucket), yymm, fullID)
	default:
		return filepath.Join(s.Volume, string(bucket), identifier)
	}
}

func (s *Store) versionDir(bucket domain.Bucket, identifier, version string) string {
	return filepath.Join(s.identifierDir(bucket, identifier), version)
}

// writeFileAtomic writes data to a temp file in the same directory as
// path and renames it into place, so concurrent readers never observe a
// partially-written file (spec §5: "the implementation writes each file
// whole (no partial writers)").
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
