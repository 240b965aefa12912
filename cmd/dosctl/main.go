// Dosctl discovers and controls Devialet speakers on the local network.
//
// It finds DOS devices over mDNS, probes each one for its device information
// and assembles them into speaker groups. Groups can be listed once, watched
// live in a terminal UI or served over a local HTTP API. Playback, volume and
// power commands are sent to a group through any of its speakers.
//
// Usage:
//
//	dosctl [command] [flags]
//
// See 'dosctl --help' for available commands.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/dosctl/internal/config"
	"github.com/muurk/dosctl/internal/logging"
	"github.com/muurk/dosctl/internal/ui"
	"github.com/muurk/dosctl/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		ui.NewPrinter(os.Stderr).PrintError("Command failed", err, nil)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
	settle     time.Duration
	attempts   int
	devicePort int
	jsonOutput bool
)

// cfg is loaded before any command runs
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dosctl",
	Short: "Devialet speaker discovery and control",
	Long: `Discover Devialet (DOS) speakers on the local network, group them the way
the speakers group themselves, and control playback of a group.

Discovery listens for mDNS announcements, probes every Phantom, Arch or Dialog
it hears about, and waits for announcements to settle before answering.`,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: OS config dir)/dosctl/config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); also "+logging.LogLevelEnvVar)
	rootCmd.PersistentFlags().DurationVar(&settle, "settle", 0, "Quiet period before discovery counts as settled")
	rootCmd.PersistentFlags().IntVar(&attempts, "attempts", 0, "Group query attempts before giving up")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", 0, "Device HTTP port")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(versionCmd)
}

// setup initializes logging and loads the configuration, letting flags
// override the file
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	level := logLevel
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		level = cfg.LogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}

	if settle > 0 {
		cfg.Discovery.SettleWindow = settle
	}
	if attempts > 0 {
		cfg.Discovery.Retry.Attempts = attempts
	}
	if devicePort > 0 {
		cfg.Discovery.Port = devicePort
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return printJSON(version.Get())
		}
		fmt.Println(version.Full())
		return nil
	},
}
