package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/dosctl/internal/config"
	"github.com/muurk/dosctl/internal/logging"
	"github.com/muurk/dosctl/internal/ui"
)

var forceInit bool

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
	Long: `The configuration file holds discovery preferences, the API server address
and aliases that map friendly names to speaker addresses. Discovered speakers
are never stored.`,
}

// configInitCmd skips loading the file so a broken one can be replaced
var configInitCmd = &cobra.Command{
	Use:               "init",
	Short:             "Write a default configuration file",
	Args:              cobra.NoArgs,
	PersistentPreRunE: setupLogging,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}
		if err := config.CreateDefaultConfig(path, forceInit); err != nil {
			return err
		}
		ui.NewPrinter(nil).PrintSuccess("CONFIGURATION CREATED", map[string]string{"Path": path})
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  "Print the configuration after defaults and command line overrides are applied.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:               "path",
	Short:             "Print the configuration file path",
	Args:              cobra.NoArgs,
	PersistentPreRunE: setupLogging,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func setupLogging(cmd *cobra.Command, args []string) error {
	return logging.Initialize(logLevel)
}

func configFilePath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}
