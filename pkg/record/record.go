// Package record implements the crate metadata model stored in an index,
// one JSON object per published version.
package record

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rust-bucket/crate-index/internal/core/domain"
	"go.trai.ch/zerr"
)

// MaxNameLength is the longest accepted crate name.
const MaxNameLength = 64

// checksums are SHA-256 digests, hex encoded.
const checksumLength = 64

var (
	nameRegexp     = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	checksumRegexp = regexp.MustCompile(`^[0-9a-fA-F]+$`)

	// Names the index refuses regardless of syntax.
	reservedNames = []string{"nul"}
)

// Record is one published version of one crate, as stored in the index.
//
// Field order is fixed so that re-serialising a record is byte-for-byte
// reproducible; the backing repository diffs these files and spurious
// reordering pollutes history.
type Record struct {
	// Name is the crate name as published. Names are compared
	// case-insensitively for uniqueness and for path sharding.
	Name string `json:"name"`

	// Version is the published semantic version.
	Version *semver.Version `json:"vers"`

	// Deps lists the crate's dependencies. Order is preserved for
	// reproducible output.
	Deps []Dependency `json:"deps,omitempty"`

	// Checksum is the SHA-256 digest of the .crate file, lowercase hex.
	Checksum string `json:"cksum"`

	// Features maps a feature name to the features it enables.
	Features map[string][]string `json:"features,omitempty"`

	// Yanked versions must not be selected by new resolutions but remain
	// readable.
	Yanked bool `json:"yanked"`

	// Links is the native-library link key from the crate manifest.
	// Pass-through, not validated.
	Links string `json:"links,omitempty"`
}

// New builds a record with the three required fields. Optional fields are set
// directly on the struct before Validate.
func New(name, version, checksum string) (Record, error) {
	vers, err := semver.StrictNewVersion(version)
	if err != nil {
		return Record{}, zerr.With(domain.With(domain.ErrInvalidVersion, "version", version), "cause", err.Error())
	}
	r := Record{
		Name:     name,
		Version:  vers,
		Checksum: checksum,
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Validate checks the record against the index rules and normalises it in
// place: the checksum is lowercased and dependency kinds default to normal.
// Validation never touches the filesystem.
func (r *Record) Validate() error {
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if r.Version == nil {
		return domain.With(domain.ErrInvalidVersion, "crate", r.Name)
	}
	if len(r.Checksum) != checksumLength || !checksumRegexp.MatchString(r.Checksum) {
		return domain.With(domain.ErrInvalidChecksum, "crate", r.Name)
	}
	r.Checksum = strings.ToLower(r.Checksum)

	for i := range r.Deps {
		if err := r.Deps[i].validate(); err != nil {
			return zerr.With(err, "crate", r.Name)
		}
	}
	return nil
}

// ValidateName checks a crate name alone: non-empty, ASCII letters, digits,
// '-' and '_', beginning with a letter, bounded length, not reserved.
func ValidateName(name string) error {
	switch {
	case name == "":
		return domain.With(domain.ErrInvalidName, "reason", "name is empty")
	case len(name) > MaxNameLength:
		return zerr.With(domain.With(domain.ErrInvalidName, "name", name), "reason", "name is too long")
	case !nameRegexp.MatchString(name):
		return zerr.With(domain.With(domain.ErrInvalidName, "name", name),
			"reason", "name must be [a-zA-Z][a-zA-Z0-9_-]*")
	}
	for _, reserved := range reservedNames {
		if strings.EqualFold(name, reserved) {
			return zerr.With(domain.With(domain.ErrInvalidName, "name", name), "reason", "name is reserved")
		}
	}
	return nil
}

// MarshalLine serialises the record as one index log line, without trailing
// newline.
func (r Record) MarshalLine() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to marshal record")
	}
	return data, nil
}

// UnmarshalLine parses one index log line.
func UnmarshalLine(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, zerr.Wrap(err, "failed to unmarshal record")
	}
	return r, nil
}

// SameVersion reports whether the record's version equals the given one under
// semver comparison (build metadata ignored).
func (r Record) SameVersion(v *semver.Version) bool {
	return r.Version != nil && v != nil && r.Version.Compare(v) == 0
}

// Kind classifies a dependency edge.
type Kind string

const (
	// KindNormal is a regular dependency.
	KindNormal Kind = "normal"
	// KindDev is a dependency used only during testing.
	KindDev Kind = "dev"
	// KindBuild is a dependency used only during building.
	KindBuild Kind = "build"
)

// Dependency is one dependency edge of a record.
type Dependency struct {
	// Name of the dependency. If renamed, this is the new name and the
	// original lives in Package.
	Name string `json:"name"`

	// Req is the semver requirement, a range expression rather than a
	// pinned version.
	Req string `json:"req"`

	// Features requested from the dependency.
	Features []string `json:"features,omitempty"`

	// Optional marks a dependency that is only pulled in by a feature.
	Optional bool `json:"optional"`

	// DefaultFeatures controls whether the dependency's default feature
	// set is enabled.
	DefaultFeatures bool `json:"default_features"`

	// Target is an optional platform filter such as "cfg(windows)".
	Target string `json:"target,omitempty"`

	// Kind is normal, dev or build.
	Kind Kind `json:"kind"`

	// Registry is the index URL of an alternate registry, empty when the
	// dependency comes from the current one.
	Registry string `json:"registry,omitempty"`

	// Package is the original name of a renamed dependency.
	Package string `json:"package,omitempty"`
}

func (d *Dependency) validate() error {
	if err := ValidateName(d.Name); err != nil {
		return zerr.With(domain.With(domain.ErrInvalidDependency, "dependency", d.Name),
			"reason", err.Error())
	}
	if _, err := semver.NewConstraint(d.Req); err != nil {
		return zerr.With(zerr.With(domain.With(domain.ErrInvalidDependency, "dependency", d.Name),
			"req", d.Req), "cause", err.Error())
	}
	switch d.Kind {
	case KindNormal, KindDev, KindBuild:
	case "":
		d.Kind = KindNormal
	default:
		return zerr.With(domain.With(domain.ErrInvalidDependency, "dependency", d.Name),
			"kind", string(d.Kind))
	}
	if d.Registry != "" {
		if _, err := url.Parse(d.Registry); err != nil {
			return zerr.With(domain.With(domain.ErrInvalidDependency, "dependency", d.Name),
				"cause", err.Error())
		}
	}
	return nil
}
