package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := rootCmd
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetErr(b)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	assert.NoError(t, err)

	output := b.String()
	assert.Contains(t, output, "tabmirror")
	assert.Contains(t, output, "Tableau")
}

func TestRootCommandHelp(t *testing.T) {
	cmd := rootCmd
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetErr(b)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	assert.NoError(t, err)

	output := b.String()
	assert.Contains(t, output, "Available Commands:")
	assert.Contains(t, output, "sync")
	assert.Contains(t, output, "setup")
	assert.Contains(t, output, "status")
	assert.Contains(t, output, "version")
}

func TestInvalidCommand(t *testing.T) {
	cmd := rootCmd
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetErr(b)
	cmd.SetArgs([]string{"invalid-command"})

	err := cmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestConfigPathPrefersExplicitFlag(t *testing.T) {
	old := cfgFile
	defer func() { cfgFile = old }()

	cfgFile = "/etc/tabmirror/custom.yaml"
	assert.Equal(t, "/etc/tabmirror/custom.yaml", configPath())
}

func TestConfigPathUsesViperResolution(t *testing.T) {
	old := cfgFile
	defer func() {
		cfgFile = old
		viper.Reset()
	}()
	cfgFile = ""

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tableau:\n  server_url: https://tableau.example.com\n"), 0o600))

	viper.Reset()
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	assert.Equal(t, path, configPath())
	assert.Equal(t, "https://tableau.example.com", viper.GetString("tableau.server_url"))
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd
	b := bytes.NewBufferString("")
	cmd.SetOut(b)
	cmd.SetErr(b)
	cmd.SetArgs([]string{"version"})

	err := cmd.Execute()
	assert.NoError(t, err)
}
