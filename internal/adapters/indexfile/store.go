// Package indexfile implements read and append logic over the line-oriented
// record log for one crate.
package indexfile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/rust-bucket/crate-index/internal/core/domain"
	"github.com/rust-bucket/crate-index/pkg/record"
	"go.trai.ch/zerr"
)

// Store reads and rewrites crate log files below an index root. It performs
// no locking; the transaction layer owns the file during a mutation.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the index working tree.
func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// ReadAll parses every line of the crate log at the given relative path, in
// insertion order. A missing file is domain.ErrCrateNotFound; a line that
// fails to parse is domain.ErrCorruptIndex, never silently skipped.
func (s *Store) ReadAll(relPath string) ([]record.Record, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(relPath))

	//nolint:gosec // Path is derived from a validated crate name
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.With(domain.ErrCrateNotFound, "path", relPath)
		}
		return nil, zerr.Wrap(err, "failed to read crate log")
	}

	return parse(relPath, data)
}

// Insert appends rec as the last line of the crate log, failing with
// domain.ErrDuplicateVersion if the version is already present. The first
// record of a log fixes the published casing of the crate name; later inserts
// must match it exactly.
func (s *Store) Insert(relPath string, rec record.Record) error {
	return s.rewrite(relPath, func(records []record.Record) ([]record.Record, error) {
		for _, existing := range records {
			if existing.SameVersion(rec.Version) {
				return nil, zerr.With(domain.With(domain.ErrDuplicateVersion,
					"crate", rec.Name), "version", rec.Version.String())
			}
		}
		if len(records) > 0 && records[0].Name != rec.Name {
			return nil, zerr.With(zerr.With(domain.With(domain.ErrInvalidName,
				"name", rec.Name), "published", records[0].Name),
				"reason", "name is too similar to existing crate")
		}
		return append(records, rec), nil
	})
}

// Patch locates the unique record matching version, applies mutate to it and
// rewrites that line in place, leaving all other lines untouched. Fails with
// domain.ErrVersionNotFound if no record matches.
func (s *Store) Patch(relPath string, version *semver.Version, mutate func(*record.Record)) error {
	return s.rewrite(relPath, func(records []record.Record) ([]record.Record, error) {
		for i := range records {
			if records[i].SameVersion(version) {
				mutate(&records[i])
				return records, nil
			}
		}
		return nil, zerr.With(domain.With(domain.ErrVersionNotFound,
			"path", relPath), "version", version.String())
	})
}

// rewrite reads the full log, transforms it in memory and atomically replaces
// the file. Line lengths vary, so byte-range patches are never form
// preserving; readers observe either the pre- or post-mutation content.
func (s *Store) rewrite(relPath string, transform func([]record.Record) ([]record.Record, error)) error {
	abs := filepath.Join(s.root, filepath.FromSlash(relPath))

	var records []record.Record

	//nolint:gosec // Path is derived from a validated crate name
	data, err := os.ReadFile(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First record for this crate.
	case err != nil:
		return zerr.Wrap(err, "failed to read crate log")
	default:
		if records, err = parse(relPath, data); err != nil {
			return err
		}
	}

	records, err = transform(records)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, rec := range records {
		line, err := rec.MarshalLine()
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	return replaceFile(abs, buf.Bytes())
}

func parse(relPath string, data []byte) ([]record.Record, error) {
	var records []record.Record
	for i, line := range bytes.Split(bytes.TrimSuffix(data, []byte("\n")), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		rec, err := record.UnmarshalLine(line)
		if err != nil {
			return nil, zerr.With(zerr.With(domain.With(domain.ErrCorruptIndex,
				"path", relPath), "line", i+1), "cause", err.Error())
		}
		records = append(records, rec)
	}
	return records, nil
}

// replaceFile writes content to a temporary file in the target directory and
// renames it over the destination, so a concurrent reader never observes a
// torn file.
func replaceFile(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return zerr.Wrap(err, "failed to create shard directory")
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".%s-*", filepath.Base(abs)))
	if err != nil {
		return zerr.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, "failed to write crate log")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, "failed to close temp file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // Index files are world readable
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, "failed to chmod temp file")
	}

	if err := os.Rename(tmpName, abs); err != nil {
		_ = os.Remove(tmpName)
		return zerr.Wrap(err, "failed to replace crate log")
	}
	return nil
}
