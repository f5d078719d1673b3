package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "tabmirror",
		Short: "Mirror a Tableau Server site into a Git repository",
		Long: "tabmirror downloads the workbooks and published data sources of a Tableau\n" +
			"Server site into a local directory tree that mirrors the site's project\n" +
			"hierarchy, then commits and pushes the changes to a Git remote.",
	}
)

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.tabmirror/config.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.tabmirror")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// Missing config is fine: the loader writes defaults on first run.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: could not read config: %v\n", err)
		}
	}
}

// configPath returns the config file the CLI should load: the --config
// override when one was given, otherwise whatever viper resolved from its
// search paths. An empty result means no file was found anywhere and the
// loader falls back to its default location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return viper.ConfigFileUsed()
}
