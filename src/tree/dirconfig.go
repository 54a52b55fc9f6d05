package tree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const dirConfigFile = "config.toml"

// DirConfig holds the per-directory image configuration.
// The tree root carries package_manager, registry, and alpine_version;
// each version directory carries baseuri. A missing file is an empty config.
type DirConfig struct {
	// BaseURI is the upstream release-listing URI for a version line.
	BaseURI string `toml:"baseuri"`

	// Runtime is the runtime name; its uppercased form names the
	// ENV <RUNTIME>_VERSION declaration in templates (e.g. "node").
	Runtime string `toml:"runtime"`

	// PackageManager is the bundled package manager name (e.g. "npm").
	PackageManager string `toml:"package_manager"`

	// Registry is the package-manager registry base URL.
	Registry string `toml:"registry"`

	// AlpineVersion is the alpine base image version stamped into
	// alpine-variant Dockerfiles.
	AlpineVersion string `toml:"alpine_version"`
}

// LoadDirConfig reads config.toml from dir.
// A missing file yields the zero config, not an error.
func LoadDirConfig(dir string) (DirConfig, error) {
	var cfg DirConfig

	data, err := os.ReadFile(filepath.Join(dir, dirConfigFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", filepath.Join(dir, dirConfigFile), err)
	}
	return cfg, nil
}

// merge fills empty fields of cfg from the fallback config.
func (c DirConfig) merge(fallback DirConfig) DirConfig {
	if c.BaseURI == "" {
		c.BaseURI = fallback.BaseURI
	}
	if c.Runtime == "" {
		c.Runtime = fallback.Runtime
	}
	if c.PackageManager == "" {
		c.PackageManager = fallback.PackageManager
	}
	if c.Registry == "" {
		c.Registry = fallback.Registry
	}
	if c.AlpineVersion == "" {
		c.AlpineVersion = fallback.AlpineVersion
	}
	return c
}
