package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/dosctl/internal/discovery"
	"github.com/muurk/dosctl/internal/dos"
	"github.com/muurk/dosctl/internal/ui"
)

// Control command flags
var assumeYes bool

// controlActions lists the actions of the control command with their argument
var controlActions = []struct {
	name string
	arg  string
}{
	{"play", ""},
	{"pause", ""},
	{"next", ""},
	{"previous", ""},
	{"mute", ""},
	{"unmute", ""},
	{"volume-up", ""},
	{"volume-down", ""},
	{"volume", "<0-100>"},
	{"night-mode", "<on|off>"},
	{"source", "<type|id>"},
	{"power-off", ""},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(controlCmd)
}

const targetHelp = `A target is a speaker address (192.168.1.20, 192.168.1.20:8080), an alias
from the config file, or the name or ID of a group. Group names are found
through discovery; commands go to the group's leader.`

// infoCmd prints the device information document of a speaker
var infoCmd = &cobra.Command{
	Use:   "info <target>",
	Short: "Show device information of a speaker",
	Long:  "Fetch and print the device information a speaker reports about itself.\n\n" + targetHelp,
	Example: `  dosctl info 192.168.1.20
  dosctl info living-room --json`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	client, _, err := resolveTarget(ctx, args[0])
	if err != nil {
		return err
	}

	info, err := client.DeviceInfo(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(info)
	}
	ui.NewPrinter(nil).PrintSuccess("DEVICE INFORMATION", ui.DeviceInfoDetails(info))
	return nil
}

// stateCmd prints the playback state of a group
var stateCmd = &cobra.Command{
	Use:   "state <target>",
	Short: "Show volume, night mode and playback of a group",
	Long:  "Print the volume, night mode and current source of the group a speaker belongs to.\n\n" + targetHelp,
	Example: `  dosctl state "Living Room"
  dosctl state 192.168.1.20 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runState,
}

func runState(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	client, name, err := resolveTarget(ctx, args[0])
	if err != nil {
		return err
	}

	state, err := client.State(ctx)
	if err != nil {
		return err
	}
	volume, err := client.Volume(ctx)
	if err != nil {
		return err
	}
	nightMode, err := client.NightMode(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(map[string]any{
			"target":    name,
			"volume":    volume,
			"nightMode": nightMode,
			"state":     state,
		})
	}
	ui.NewPrinter(nil).PrintSuccess(strings.ToUpper(name), ui.StateDetails(state, volume, nightMode))
	return nil
}

// controlCmd sends a command to a group
var controlCmd = &cobra.Command{
	Use:   "control <target> <action> [value]",
	Short: "Control playback, volume or power of a group",
	Long:  "Send a command to the group a speaker belongs to.\n\nActions:\n" + actionList() + "\n" + targetHelp,
	Example: `  dosctl control living-room pause
  dosctl control 192.168.1.20 volume 35
  dosctl control "Living Room" source spotifyconnect
  dosctl control "Living Room" power-off --yes`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runControl,
}

func init() {
	controlCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation before power-off")
}

func actionList() string {
	var b strings.Builder
	for _, a := range controlActions {
		fmt.Fprintf(&b, "  %-12s %s\n", a.name, a.arg)
	}
	return b.String()
}

func runControl(cmd *cobra.Command, args []string) error {
	action := args[1]
	var value string
	if len(args) == 3 {
		value = args[2]
	}
	if err := checkAction(action, value); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	client, name, err := resolveTarget(ctx, args[0])
	if err != nil {
		return err
	}

	details := map[string]string{"Target": name, "Action": action}
	if value != "" {
		details["Value"] = value
	}

	switch action {
	case "play":
		err = client.Play(ctx)
	case "pause":
		err = client.Pause(ctx)
	case "next":
		err = client.Next(ctx)
	case "previous":
		err = client.Previous(ctx)
	case "mute":
		err = client.Mute(ctx)
	case "unmute":
		err = client.Unmute(ctx)
	case "volume-up":
		err = client.VolumeUp(ctx)
	case "volume-down":
		err = client.VolumeDown(ctx)
	case "volume":
		level, convErr := strconv.Atoi(value)
		if convErr != nil {
			return fmt.Errorf("invalid volume %q: %w", value, convErr)
		}
		err = client.SetVolume(ctx, level)
		details["Value"] = strconv.Itoa(dos.ClampVolume(level))
	case "night-mode":
		err = client.SetNightMode(ctx, value == "on")
	case "source":
		var source dos.Source
		if source, err = findSource(ctx, client, value); err == nil {
			err = client.SelectSource(ctx, source)
			details["Value"] = fmt.Sprintf("%s (%s)", source.Type, source.SourceID)
		}
	case "power-off":
		if !assumeYes && !ui.PowerOffConfirmation(name).Ask(os.Stdin, os.Stdout) {
			return nil
		}
		err = client.PowerOff(ctx)
	}
	if err != nil {
		return err
	}

	ui.NewPrinter(nil).PrintSuccess("COMMAND SENT", details)
	return nil
}

// checkAction validates the action and its value before anything is sent
func checkAction(action, value string) error {
	for _, a := range controlActions {
		if a.name != action {
			continue
		}
		switch {
		case a.arg == "" && value != "":
			return fmt.Errorf("%s takes no value", action)
		case a.arg != "" && value == "":
			return fmt.Errorf("%s needs a value %s", action, a.arg)
		case action == "night-mode" && value != "on" && value != "off":
			return fmt.Errorf("night-mode must be on or off, got %q", value)
		}
		return nil
	}

	names := make([]string, 0, len(controlActions))
	for _, a := range controlActions {
		names = append(names, a.name)
	}
	return fmt.Errorf("unknown action %q (valid: %s)", action, strings.Join(names, ", "))
}

// findSource matches a source by ID first, then by type
func findSource(ctx context.Context, client *dos.Client, want string) (dos.Source, error) {
	sources, err := client.Sources(ctx)
	if err != nil {
		return dos.Source{}, err
	}
	for _, s := range sources {
		if s.SourceID == want {
			return s, nil
		}
	}
	for _, s := range sources {
		if strings.EqualFold(string(s.Type), want) {
			return s, nil
		}
	}

	available := make([]string, 0, len(sources))
	for _, s := range sources {
		available = append(available, string(s.Type))
	}
	return dos.Source{}, fmt.Errorf("no source %q (available: %s)", want, strings.Join(available, ", "))
}

// resolveTarget turns an alias, address or group name into a client for the
// target and a display name
func resolveTarget(ctx context.Context, target string) (*dos.Client, string, error) {
	resolved := cfg.ResolveAddress(target)

	if isAddress(resolved) {
		host, port := splitAddress(resolved, cfg.Discovery.Port)
		client := dos.NewClient(host, port)
		client.SetTimeout(cfg.Discovery.ProbeTimeout)
		return client, target, nil
	}

	session, err := startSession(ctx)
	if err != nil {
		return nil, "", err
	}
	defer session.Close()

	groups, err := session.Groups(ctx)
	if err != nil {
		return nil, "", err
	}
	g, ok := findGroup(groups, resolved)
	if !ok {
		return nil, "", fmt.Errorf("no group named %q on the network (run 'dosctl groups' to list them)", target)
	}

	client := g.Leader.Client()
	client.SetTimeout(cfg.Discovery.ProbeTimeout)
	return client, g.Name(), nil
}

func findGroup(groups []discovery.Group, want string) (discovery.Group, bool) {
	for _, g := range groups {
		if g.ID == want || strings.EqualFold(g.Name(), want) {
			return g, true
		}
	}
	return discovery.Group{}, false
}

// isAddress reports whether target looks like an IP or host name rather than
// a group name
func isAddress(target string) bool {
	if target == "localhost" || net.ParseIP(target) != nil {
		return true
	}
	if host, _, err := net.SplitHostPort(target); err == nil && host != "" {
		return true
	}
	return strings.Contains(target, ".") && !strings.Contains(target, " ")
}

// splitAddress separates an optional port from target
func splitAddress(target string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return host, defaultPort
	}
	return host, port
}
