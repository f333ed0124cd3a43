// Package config loads margin settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// Config holds all settings. Command-line flags are applied on top by the
// caller, so precedence is flag > env > file > default.
type Config struct {
	// Folder holds the annotation blobs, relative to the vault root.
	Folder string `yaml:"folder"`
	// Backend selects the vault: fs or sqlite.
	Backend string `yaml:"backend"`
	// Root is the vault root for the fs backend.
	Root string `yaml:"root"`
	// DB is the database path for the sqlite backend.
	DB string `yaml:"db"`

	Color          string `yaml:"color"`
	ActiveColor    string `yaml:"active_color"`
	PreferPosition bool   `yaml:"prefer_position"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Folder:      "annotations",
		Backend:     BackendFS,
		Root:        ".",
		DB:          filepath.Join(homeDir(), ".margin", "margin.db"),
		Color:       "#fff3a3",
		ActiveColor: "#ffd54f",
		LogLevel:    "warn",
	}
}

// DefaultPath is $MARGIN_CONFIG, else ~/.margin/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("MARGIN_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(homeDir(), ".margin", "config.yaml")
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	for env, dst := range map[string]*string{
		"MARGIN_FOLDER":    &c.Folder,
		"MARGIN_BACKEND":   &c.Backend,
		"MARGIN_ROOT":      &c.Root,
		"MARGIN_DB":        &c.DB,
		"MARGIN_LOG_LEVEL": &c.LogLevel,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("MARGIN_PREFER_POSITION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MARGIN_PREFER_POSITION: %w", err)
		}
		c.PreferPosition = b
	}
	return nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFS:
		if c.Root == "" {
			return fmt.Errorf("config: fs backend needs a root")
		}
	case BackendSQLite:
		if c.DB == "" {
			return fmt.Errorf("config: sqlite backend needs a db path")
		}
	default:
		return fmt.Errorf("config: unknown backend %q (want %s or %s)", c.Backend, BackendFS, BackendSQLite)
	}
	if c.Folder == "" {
		return fmt.Errorf("config: annotation folder is empty")
	}
	return nil
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
