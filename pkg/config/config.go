package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/filter"
	"tempnotes/pkg/formatter"
	"tempnotes/pkg/models"
	"tempnotes/pkg/storage"
	"tempnotes/pkg/utils"
)

// EnvConfigPath overrides the config file location
const EnvConfigPath = "TEMPNOTES_CONFIG"

// Config holds application configuration
type Config struct {
	DataPath          string            `yaml:"data_path"`
	DefaultNotebook   string            `yaml:"default_notebook"`
	DeletePolicy      string            `yaml:"delete_policy"`
	SortOrder         string            `yaml:"sort_order"`
	HideArchivedInAll bool              `yaml:"hide_archived_in_all"`
	AutosaveDelay     time.Duration     `yaml:"autosave_delay"`
	ImageMaxWidth     int               `yaml:"image_max_width"`
	ImageQuality      int               `yaml:"image_quality"`
	Listen            string            `yaml:"listen"`
	Formatter         formatter.Options `yaml:"formatter"`
	Encryption        struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"encryption"`
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{
		DataPath:        GetDefaultDataPath(),
		DefaultNotebook: models.DefaultNotebook,
		DeletePolicy:    string(storage.DeleteToTrash),
		SortOrder:       string(filter.SortPinnedFirst),
		AutosaveDelay:   time.Second,
		ImageMaxWidth:   800,
		ImageQuality:    60,
		Listen:          "127.0.0.1:8080",
		Formatter:       formatter.DefaultOptions(),
	}
	return cfg
}

// GetDefaultDataPath returns the default path for storing notes
func GetDefaultDataPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(dir, "tempnotes", "data")
}

// GetConfigFilePath returns the path where the config file is stored
func GetConfigFilePath() (string, error) {
	if custom := os.Getenv(EnvConfigPath); custom != "" {
		return utils.ExpandHome(custom), nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", homeErr)
		}
		return filepath.Join(home, ".tempnotes", "config.yaml"), nil
	}
	return filepath.Join(dir, "tempnotes", "config.yaml"), nil
}

// Load reads the config file at path, using defaults for anything it does
// not set. A missing file yields the defaults. An empty path selects
// GetConfigFilePath.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigFilePath()
		if err != nil {
			return nil, errors.ErrConfigLoadFailed.WithCause(err)
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.ErrConfigLoadFailed.WithCause(err).WithContext("path", path)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ErrConfigLoadFailed.WithCause(err).WithContext("path", path).
				WithUserMessage("Configuration file is not valid YAML")
		}
	}

	cfg.DataPath = utils.ExpandHome(cfg.DataPath)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated fields and ranges
func (c *Config) Validate() error {
	if _, err := storage.ParseDeletePolicy(c.DeletePolicy); err != nil {
		return err
	}
	if _, err := filter.ParseSortOrder(c.SortOrder); err != nil {
		return errors.Wrap(err, errors.ErrTypeConfig, "INVALID_SORT_ORDER", "invalid sort order").
			WithContext("sort_order", c.SortOrder)
	}
	if c.DataPath == "" {
		return errors.New(errors.ErrTypeConfig, "MISSING_DATA_PATH", "data_path is required")
	}
	if c.AutosaveDelay < 0 {
		return errors.New(errors.ErrTypeConfig, "INVALID_AUTOSAVE_DELAY", "autosave_delay must not be negative")
	}
	if c.ImageQuality < 0 || c.ImageQuality > 100 {
		return errors.New(errors.ErrTypeConfig, "INVALID_IMAGE_QUALITY", "image_quality must be between 0 and 100").
			WithContext("image_quality", c.ImageQuality)
	}
	if models.IsBuiltinView(c.DefaultNotebook) {
		return errors.New(errors.ErrTypeConfig, "INVALID_DEFAULT_NOTEBOOK", "default_notebook uses a reserved view name").
			WithContext("default_notebook", c.DefaultNotebook)
	}
	return nil
}

// Save writes the configuration to path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.ErrConfigSaveFailed.WithCause(err).WithContext("path", path)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.ErrConfigSaveFailed.WithCause(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.ErrConfigSaveFailed.WithCause(err).WithContext("path", path)
	}
	return nil
}
