package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirmation is a warning box followed by a typed-phrase prompt
type Confirmation struct {
	Title    string
	Warnings []string
	Phrase   string // What the user must type, e.g. "yes"
	Width    int
}

// PowerOffConfirmation is the prompt shown before turning a system off
func PowerOffConfirmation(groupName string) *Confirmation {
	return &Confirmation{
		Title: "POWER OFF",
		Warnings: []string{
			fmt.Sprintf("Every speaker in %q will turn off", groupName),
			"Playback stops on all sources of the group",
			"The speakers can only be woken from the remote or the app",
		},
		Phrase: "yes",
		Width:  GetTerminalWidth(),
	}
}

// Render returns the warning box
func (c *Confirmation) Render() string {
	width := c.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	lines := []string{"", WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, c.Title)), ""}
	bullet := lipgloss.NewStyle().Foreground(TextColor)
	for _, warning := range c.Warnings {
		lines = append(lines, bullet.Render("   • "+warning))
	}
	lines = append(lines, "")

	return WarningBoxStyle(width).Padding(0, 2).Render(strings.Join(lines, "\n"))
}

// Ask prints the warning box and the prompt to out, then reads one line from
// in. It returns true only if the line equals the phrase.
func (c *Confirmation) Ask(in io.Reader, out io.Writer) bool {
	_, _ = fmt.Fprintln(out, c.Render())
	_, _ = fmt.Fprintln(out)

	prompt := lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	_, _ = fmt.Fprint(out, prompt.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", c.Phrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	_, _ = fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}

	if strings.TrimSpace(input) == c.Phrase {
		return true
	}

	_, _ = fmt.Fprintln(out, lipgloss.NewStyle().Foreground(MutedColor).Render("  Operation cancelled."))
	return false
}
