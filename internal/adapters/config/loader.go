// Package config provides the settings loader for the crate-index CLI.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is where the CLI looks for its settings.
const DefaultFileName = "crate-index.yaml"

// Settings are the operator-provided defaults for CLI runs. Flags override
// anything set here.
type Settings struct {
	// Root is the index working tree location.
	Root string `yaml:"root"`

	// Download is the .crate download URL template, required at init.
	Download string `yaml:"download"`

	// API is the optional registry API base URL.
	API string `yaml:"api"`

	// Origin is the optional remote the index pushes to.
	Origin string `yaml:"origin"`

	// AllowedRegistries lists registries crates may depend on.
	AllowedRegistries []string `yaml:"allowed_registries"`

	// Identity is the committer recorded on revisions.
	Identity Identity `yaml:"identity"`

	// LockTimeout bounds waiting for the index lock.
	LockTimeout Duration `yaml:"lock_timeout"`

	// SyncTimeout bounds retrying the push to origin.
	SyncTimeout Duration `yaml:"sync_timeout"`
}

// Identity is the committer name and email.
type Identity struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Duration wraps time.Duration so settings files can say "30s" or "1m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return zerr.Wrap(err, "failed to parse duration")
	}
	*d = Duration(parsed)
	return nil
}

// Load reads settings from the given path. A missing file yields zero
// settings, not an error, so flag-only runs work without a file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Settings{}, nil
		}
		return nil, zerr.Wrap(err, "failed to read settings file")
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, zerr.Wrap(err, "failed to parse settings file")
	}
	return &s, nil
}
