package storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config selects which history backend to use at runtime.
type Config struct {
	// Backend: "file" (default) or "sqlite".
	Backend string `json:"backend" yaml:"backend"`

	// BaseDir is the root directory for the file backend. Partition
	// directories are created under it on demand.
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// DSN is the database path for the sqlite backend. ":memory:" is
	// accepted for tests.
	DSN string `json:"dsn" yaml:"dsn"`
}

// LoadConfig reads a YAML config file. A missing path yields the
// zero config, which Open resolves to the file backend with its
// default base directory.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
