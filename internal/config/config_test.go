package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabmirror/pkg/errors"
	"tabmirror/pkg/models"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("TABMIRROR_CONFIG", "")
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".tabmirror"), GetConfigPath())
}

func TestGetConfigFileFromEnv(t *testing.T) {
	t.Setenv("TABMIRROR_CONFIG", "/tmp/custom/config.yaml")
	assert.Equal(t, "/tmp/custom/config.yaml", GetConfigFile())
}

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Sync.MaxWorkers)
	assert.False(t, cfg.Mirror.OverwriteExisting)

	// the default file must be written so the operator can edit it
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("TABMIRROR_CONFIG", "")

	testConfig := models.DefaultConfig()
	testConfig.Tableau.ServerURL = "https://tableau.internal.example.com"
	testConfig.Tableau.Site = "analytics"
	testConfig.Git.RepoURL = "https://git.example.com/bi/tableau-mirror.git"
	testConfig.Sync.MaxWorkers = 8

	require.NoError(t, Save(testConfig))
	assert.True(t, Exists())

	loaded, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, testConfig.Tableau.ServerURL, loaded.Tableau.ServerURL)
	assert.Equal(t, testConfig.Tableau.Site, loaded.Tableau.Site)
	assert.Equal(t, 8, loaded.Sync.MaxWorkers)
}

func TestLoadAppliesDefaults(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "config.yaml")

	minimal := `
tableau:
  server_url: https://tableau.example.com
git:
  repo_url: https://git.example.com/mirror.git
mirror:
  base_dir: Tableau_Projects
`
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Sync.MaxWorkers)
	assert.Equal(t, "main", cfg.Git.Branch)
	assert.Equal(t, "3.22", cfg.Tableau.APIVersion)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Config)
		field  string
	}{
		{"missing server", func(c *models.Config) { c.Tableau.ServerURL = "" }, "tableau.server_url"},
		{"missing git repo", func(c *models.Config) { c.Git.RepoURL = "" }, "git.repo_url"},
		{"missing base dir", func(c *models.Config) { c.Mirror.BaseDir = "" }, "mirror.base_dir"},
		{"bad workers", func(c *models.Config) { c.Sync.MaxWorkers = -1 }, "sync.max_workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetErrorCode(err))
		})
	}
}

func TestResolveTableauCredentials(t *testing.T) {
	t.Setenv("TABLEAU_USERNAME", "")
	t.Setenv("TABLEAU_PASSWORD", "")
	t.Setenv("TABLEAU_TOKEN_NAME", "")
	t.Setenv("TABLEAU_TOKEN_VALUE", "")

	_, err := ResolveTableauCredentials()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeCredentialsMissing, errors.GetErrorCode(err))

	t.Setenv("TABLEAU_TOKEN_NAME", "backup-token")
	t.Setenv("TABLEAU_TOKEN_VALUE", "s3cret")

	creds, err := ResolveTableauCredentials()
	require.NoError(t, err)
	assert.True(t, creds.UsesToken())

	t.Setenv("TABLEAU_TOKEN_NAME", "")
	t.Setenv("TABLEAU_TOKEN_VALUE", "")
	t.Setenv("TABLEAU_USERNAME", "backup-svc")
	t.Setenv("TABLEAU_PASSWORD", "hunter2")

	creds, err = ResolveTableauCredentials()
	require.NoError(t, err)
	assert.False(t, creds.UsesToken())
	assert.Equal(t, "backup-svc", creds.Username)
}
