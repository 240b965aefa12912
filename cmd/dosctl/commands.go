package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/dosctl/internal/discovery"
	"github.com/muurk/dosctl/internal/logging"
	"github.com/muurk/dosctl/internal/mockdevice"
	"github.com/muurk/dosctl/internal/server"
	"github.com/muurk/dosctl/internal/tui"
	"github.com/muurk/dosctl/internal/ui"
)

// Command flags
var (
	serveListen     string
	mockListen      string
	mockID          string
	mockName        string
	mockGroup       string
	mockHost        string
	mockMember      bool
	mockNoAdvertise bool
)

func init() {
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mockDeviceCmd)
}

// groupsCmd lists the settled speaker groups
var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List speaker groups on the network",
	Long: `Discover speakers and print the groups they form.

The command waits until mDNS announcements have been quiet for the settle
window, then prints every group with its leader and members. If no group has
formed yet it retries with backoff before giving up.`,
	Example: `  # List groups with default settings
  dosctl groups

  # Slow network: wait longer for announcements
  dosctl groups --settle 3s --attempts 8

  # JSON output for scripting
  dosctl groups --json`,
	Args: cobra.NoArgs,
	RunE: runGroups,
}

func runGroups(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	session, err := startSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	groups, err := session.Groups(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		views := make([]server.GroupView, 0, len(groups))
		for _, g := range groups {
			views = append(views, server.NewGroupView(g))
		}
		return printJSON(views)
	}

	printer := ui.NewPrinter(nil)
	printer.PrintHeader("SPEAKER GROUPS", "dosctl groups", discoveryParams())
	printer.PrintGroups(groups)
	return nil
}

// devicesCmd lists every probed speaker
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List speakers on the network",
	Long: `Discover speakers and print every device that answered its probe,
including speakers whose group has no leader yet.`,
	Example: `  dosctl devices
  dosctl devices --json`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	session, err := startSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	// Groups waits for the scan to settle
	if _, err := session.Groups(ctx); err != nil {
		return err
	}
	devices := session.Devices()

	if jsonOutput {
		views := make([]server.DeviceView, 0, len(devices))
		for _, d := range devices {
			views = append(views, server.NewDeviceView(d))
		}
		return printJSON(views)
	}

	printer := ui.NewPrinter(nil)
	printer.PrintHeader("SPEAKERS", "dosctl devices", discoveryParams())
	printer.PrintDevices(devices)
	return nil
}

// watchCmd shows groups live in a terminal UI
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch speaker groups live",
	Long: `Open a terminal UI that shows groups as the speakers confirm them.

Selecting a group shows its volume, night mode and what is playing. The view
keeps running across probe failures and resubscribes on its own.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !ui.IsTerminal() {
		return fmt.Errorf("watch needs an interactive terminal; use 'dosctl serve' and /api/groups/watch instead")
	}

	ctx, stop := signalContext()
	defer stop()

	session, err := startSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	// The model quits on its own once ctx is cancelled
	model := tui.NewWatchModel(ctx, session, nil)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("watch error: %w", err)
	}
	return nil
}

// serveCmd exposes discovery over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve discovered groups over a local HTTP API",
	Long: `Run a discovery session and serve it over HTTP.

Endpoints:
  GET /api/health          readiness and device count
  GET /api/version         build information
  GET /api/devices         probed speakers
  GET /api/groups          settled groups (?timeout=5s bounds the wait)
  GET /api/groups/watch    WebSocket stream of confirmed groups`,
	Example: `  # Serve on the configured address (default 127.0.0.1:8780)
  dosctl serve

  # Listen on every interface
  dosctl serve --listen 0.0.0.0:8780 --log-level info`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "host:port to listen on (default from config, "+server.DefaultListen+")")
}

func runServe(cmd *cobra.Command, args []string) error {
	listen := cfg.Server.Listen
	if serveListen != "" {
		listen = serveListen
	}

	ctx, stop := signalContext()
	defer stop()

	session, err := startSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	srv := server.New(server.Config{Listen: listen}, session)

	printer := ui.NewPrinter(nil)
	printer.PrintSuccess("API SERVER RUNNING", map[string]string{
		"Groups": "http://" + listen + "/api/groups",
		"Watch":  "ws://" + listen + "/api/groups/watch",
		"Stop":   "Ctrl+C",
	})

	return srv.Start(ctx)
}

// mockDeviceCmd runs an emulated speaker
var mockDeviceCmd = &cobra.Command{
	Use:   "mock-device",
	Short: "Run an emulated speaker for testing",
	Long: `Serve the DOS IP control API from an in-memory speaker and advertise it
over mDNS, so discovery and control can be tried without hardware.

Real speakers serve on port 80; point discovery at the mock's port with --port.`,
	Example: `  # Leader of a one-speaker group on port 8080
  dosctl mock-device

  # On a second machine, a speaker joining the same group
  dosctl mock-device --id mock-0002 --name "Kitchen R" --member

  # Find them
  dosctl groups --port 8080`,
	Args: cobra.NoArgs,
	RunE: runMockDevice,
}

func init() {
	mockDeviceCmd.Flags().StringVar(&mockListen, "listen", ":8080", "host:port to serve on")
	mockDeviceCmd.Flags().StringVar(&mockID, "id", "mock-0001", "Device ID")
	mockDeviceCmd.Flags().StringVar(&mockName, "name", "Mock Speaker", "Device name")
	mockDeviceCmd.Flags().StringVar(&mockGroup, "group", "mock-group", "Group ID")
	mockDeviceCmd.Flags().StringVar(&mockHost, "host", "", "Advertised host name (default Phantom-<id>)")
	mockDeviceCmd.Flags().BoolVar(&mockMember, "member", false, "Join the group as a member instead of its leader")
	mockDeviceCmd.Flags().BoolVar(&mockNoAdvertise, "no-advertise", false, "Serve without mDNS advertisement")
}

func runMockDevice(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	listener, err := net.Listen("tcp", mockListen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", mockListen, err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	device := mockdevice.New(mockdevice.NewInfo(mockID, mockName, mockGroup, !mockMember))

	details := map[string]string{
		"Device ID": mockID,
		"Group":     mockGroup,
		"Role":      "leader",
		"Port":      strconv.Itoa(port),
	}
	if mockMember {
		details["Role"] = "member"
	}

	if !mockNoAdvertise {
		host := mockHost
		if host == "" {
			host = "Phantom-" + mockID
		}
		shutdown, err := mockdevice.Advertise(mockdevice.AdvertiseConfig{
			Instance: "Phantom I " + mockName,
			Host:     host,
			Port:     port,
		})
		if err != nil {
			_ = listener.Close()
			return err
		}
		defer shutdown()
		details["Host"] = host
	}

	ui.NewPrinter(nil).PrintSuccess("MOCK DEVICE RUNNING", details)
	return device.Serve(ctx, listener)
}

// startSession starts discovery with the loaded configuration
func startSession(ctx context.Context) (*discovery.Session, error) {
	opts := cfg.Discovery.SessionOptions()
	opts.OnRetry = func(err error, wait time.Duration) {
		logging.Debug("Discovery not ready, retrying", zap.Error(err), zap.Duration("wait", wait))
	}

	session := discovery.NewSession(opts)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func discoveryParams() map[string]string {
	return map[string]string{
		"settle":   cfg.Discovery.SettleWindow.String(),
		"attempts": strconv.Itoa(cfg.Discovery.Retry.Attempts),
		"port":     strconv.Itoa(cfg.Discovery.Port),
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
