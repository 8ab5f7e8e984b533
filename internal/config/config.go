// Package config loads the YAML configuration of a lineage project.
package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendBadger Backend = "badger"
	BackendFile   Backend = "file"
)

// ProjectConfig locates the project checkout. Plan paths are resolved against Root.
type ProjectConfig struct {
	Root string `yaml:"root"`
}

// StoreConfig selects and tunes the persistence backend of the entity store.
type StoreConfig struct {
	Backend    Backend `yaml:"backend"`
	Path       string  `yaml:"path"`
	CacheSize  int     `yaml:"cache_size"`
	SyncWrites bool    `yaml:"sync_writes"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
}

type Config struct {
	Project ProjectConfig `yaml:"project"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Project: ProjectConfig{Root: "."},
		Store: StoreConfig{
			Backend:    BackendBadger,
			Path:       ".lineage/db",
			CacheSize:  1024,
			SyncWrites: true,
		},
		Log: LogConfig{Mode: "development"},
	}
}

// Load reads path on top of Default. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var err error
	if strings.TrimSpace(c.Project.Root) == "" {
		err = multierr.Append(err, errors.New("project.root is required"))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendBadger, BackendFile:
		if strings.TrimSpace(c.Store.Path) == "" {
			err = multierr.Append(err, errors.Errorf("store.path is required for backend %q", c.Store.Backend))
		}
	default:
		err = multierr.Append(err, errors.Errorf("invalid store.backend %q", c.Store.Backend))
	}
	if c.Store.CacheSize < 0 {
		err = multierr.Append(err, errors.New("store.cache_size must be >= 0"))
	}
	return err
}
