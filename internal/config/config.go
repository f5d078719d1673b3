package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tabmirror/internal/common"
	"tabmirror/pkg/errors"
	"tabmirror/pkg/models"
)

func GetConfigPath() string {
	if configPath := os.Getenv("TABMIRROR_CONFIG"); configPath != "" {
		return filepath.Dir(configPath)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tabmirror")
}

func GetConfigFile() string {
	if configFile := os.Getenv("TABMIRROR_CONFIG"); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			return filepath.Join(GetConfigPath(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// Load reads the configuration from the given file. An empty path falls
// back to TABMIRROR_CONFIG / ~/.tabmirror/config.yaml. A missing file is
// not an error: defaults are written in its place and returned, matching
// the tool's first-run behavior.
func Load(path string) (*models.Config, error) {
	if path == "" {
		path = GetConfigFile()
	}

	cleanedPath, err := common.CleanPath(path)
	if err != nil {
		return nil, errors.ConfigError("invalid config file path", "config")
	}

	if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
		cfg := models.DefaultConfig()
		if err := save(cfg, cleanedPath); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(cleanedPath) // #nosec G304 - path is validated
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigNotFound, "failed to read config file").
			WithSeverity(errors.SeverityCritical)
	}

	var cfg models.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to unmarshal config").
			WithSeverity(errors.SeverityCritical)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the default location
func Save(cfg *models.Config) error {
	return save(cfg, GetConfigFile())
}

func save(cfg *models.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func Exists() bool {
	_, err := os.Stat(GetConfigFile())
	return err == nil
}

// Validate checks the fields the run cannot proceed without
func Validate(cfg *models.Config) error {
	if cfg.Tableau.ServerURL == "" {
		return errors.ConfigError("tableau server URL is required", "tableau.server_url")
	}
	if cfg.Git.RepoURL == "" {
		return errors.ConfigError("git repository URL is required", "git.repo_url")
	}
	if cfg.Mirror.BaseDir == "" {
		return errors.ConfigError("mirror base directory is required", "mirror.base_dir")
	}
	if cfg.Sync.MaxWorkers < 1 {
		return errors.ConfigError("max_workers must be at least 1", "sync.max_workers")
	}
	return nil
}

func applyDefaults(cfg *models.Config) {
	def := models.DefaultConfig()
	if cfg.Sync.MaxWorkers == 0 {
		cfg.Sync.MaxWorkers = def.Sync.MaxWorkers
	}
	if cfg.Sync.ItemTimeout == "" {
		cfg.Sync.ItemTimeout = def.Sync.ItemTimeout
	}
	if cfg.Tableau.APIVersion == "" {
		cfg.Tableau.APIVersion = def.Tableau.APIVersion
	}
	if cfg.Tableau.Timeout == "" {
		cfg.Tableau.Timeout = def.Tableau.Timeout
	}
	if cfg.Git.Branch == "" {
		cfg.Git.Branch = def.Git.Branch
	}
	if cfg.Git.Author.Name == "" {
		cfg.Git.Author = def.Git.Author
	}
	if cfg.Mirror.BaseDir == "" {
		cfg.Mirror.BaseDir = def.Mirror.BaseDir
	}
}
