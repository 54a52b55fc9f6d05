package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".imageforge.yml"

// Config is the top-level ImageForge configuration.
type Config struct {
	// Root is the image tree root: one subdirectory per major version.
	Root string `yaml:"root"`

	// Manifest is the CI manifest path, relative to Root unless absolute.
	Manifest string `yaml:"manifest"`

	// KeysDir holds the trusted key lists (<category>.keys), relative to Root.
	KeysDir string `yaml:"keys_dir"`

	// Jobs caps concurrent stamping tasks. 0 means NumCPU.
	Jobs int `yaml:"jobs"`

	// HTTPTimeout is the upstream request timeout in seconds.
	HTTPTimeout int `yaml:"http_timeout"`

	// Arch overrides the detected target architecture (e.g. "arm64v8").
	Arch string `yaml:"arch"`
}

// Load reads configuration from a YAML file.
// If path is empty, it tries the default file.
// Returns sensible defaults if the file doesn't exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Root:        ".",
		Manifest:    ".gitlab-ci.yml",
		KeysDir:     "keys",
		HTTPTimeout: 10,
	}
}

func (c *Config) validate() error {
	if c.Root == "" {
		return fmt.Errorf("config: root must not be empty")
	}
	if c.Jobs < 0 {
		return fmt.Errorf("config: jobs must be >= 0, got %d", c.Jobs)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("config: http_timeout must be >= 0, got %d", c.HTTPTimeout)
	}
	return nil
}
