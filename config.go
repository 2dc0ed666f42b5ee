package crateindex

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rust-bucket/crate-index/internal/core/domain"
	"go.trai.ch/zerr"
)

// ConfigFileName is the root configuration object of a valid index.
const ConfigFileName = "config.json"

// CratesIOIndex is the URL of the crates.io index, for use as an allowed
// registry.
const CratesIOIndex = "https://github.com/rust-lang/crates.io-index"

// Config is the root configuration object stored at the top of the index.
type Config struct {
	// DL is the template for download URLs, with {crate} and {version}
	// placeholders.
	DL string `json:"dl"`

	// API is the optional base URL of the registry API.
	API string `json:"api,omitempty"`

	// AllowedRegistries lists the registries crates in this index may
	// depend on.
	AllowedRegistries []string `json:"allowed-registries,omitempty"`
}

func (c Config) write(root string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal config")
	}
	data = append(data, '\n')

	path := filepath.Join(root, ConfigFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // Index files are world readable
		return zerr.Wrap(err, "failed to write config")
	}
	return nil
}

func readConfig(root string) (Config, error) {
	path := filepath.Join(root, ConfigFileName)

	data, err := os.ReadFile(path) //nolint:gosec // Path is the caller's index root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, domain.With(domain.ErrCorruptIndex, "reason", "config.json is missing")
		}
		return Config{}, zerr.Wrap(err, "failed to read config")
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, zerr.With(domain.With(domain.ErrCorruptIndex,
			"reason", "config.json is not parseable"), "cause", err.Error())
	}
	if c.DL == "" {
		return Config{}, domain.With(domain.ErrCorruptIndex, "reason", "config.json has no dl template")
	}
	return c, nil
}
