package ui

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/dosctl/internal/discovery"
	"github.com/muurk/dosctl/internal/dos"
	"github.com/muurk/dosctl/internal/urls"
)

// ResultType indicates success, failure or warning
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result represents a result box (success, failure, or warning)
type Result struct {
	Type            ResultType        // Success, failure, or warning
	Title           string            // e.g., "Volume set"
	Details         map[string]string // Key-value details to display
	Error           error             // Error (for failure results)
	Troubleshooting []string          // Troubleshooting tips (for failure results)
	Width           int               // Terminal width
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details map[string]string) *Result {
	return &Result{
		Type:    ResultSuccess,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details map[string]string) *Result {
	return &Result{
		Type:    ResultWarning,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail adds a detail key-value pair
func (r *Result) AddDetail(key, value string) *Result {
	if r.Details == nil {
		r.Details = make(map[string]string)
	}
	r.Details[key] = value
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := r.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	lines := []string{""}
	var box lipgloss.Style

	switch r.Type {
	case ResultFailure:
		lines = append(lines, ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title)), "")
		if r.Error != nil {
			lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
		}
		if len(r.Troubleshooting) > 0 {
			lines = append(lines, renderTroubleshooting(r.Troubleshooting, width), "")
		}
		box = ErrorBoxStyle(width)
	case ResultWarning:
		lines = append(lines, WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title)), "")
		lines = append(lines, renderDetails(r.Details)...)
		box = WarningBoxStyle(width)
	default:
		lines = append(lines, SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title)), "")
		lines = append(lines, renderDetails(r.Details)...)
		box = SuccessBoxStyle(width)
	}

	return box.Padding(0, 2).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

func renderDetails(details map[string]string) []string {
	keys := make([]string, 0, len(details))
	for key := range details {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		lines = append(lines,
			ResultKeyStyle.Render(fmt.Sprintf("   %s:", key))+" "+ResultValueStyle.Render(details[key]))
	}
	return append(lines, "")
}

func renderTroubleshooting(tips []string, width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range tips {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}
	return TroubleshootingBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// Troubleshoot returns tips for a failed discovery or device call
func Troubleshoot(err error) []string {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, discovery.ErrDiscoveryExhausted):
		return []string{
			"Check the speakers are powered on and joined to this network",
			"mDNS needs multicast on UDP 5353; check your firewall and VPN",
			"Wi-Fi access points with client isolation block discovery",
			"Try a longer window with --settle or more --attempts",
			"See " + urls.Troubleshooting,
		}
	case discovery.IsProbeError(err):
		return []string{
			"A speaker answered mDNS but not on its control port",
			"Speakers still booting can refuse requests; run the command again",
			"Run with DOSCTL_LOG_LEVEL=debug to see which address failed",
		}
	case dos.IsNetworkError(err):
		return []string{
			"Check the address is reachable from this machine",
			"Use `dosctl devices` to find current speaker addresses",
		}
	case dos.IsDeviceError(err):
		return []string{
			"The speaker refused the command in its current state",
			"Use `dosctl state` to see which operations the source allows",
		}
	case dos.IsParseError(err), dos.IsValidationError(err):
		return []string{
			"The device answered with an unexpected document",
			"Check the device runs DOS firmware with IP control enabled",
			"Report the output of `dosctl info --json` at " + urls.Issues,
		}
	default:
		return nil
	}
}
