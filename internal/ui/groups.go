package ui

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/muurk/dosctl/internal/discovery"
	"github.com/muurk/dosctl/internal/dos"
)

var deviceColumns = []string{"", "NAME", "MODEL", "ADDRESS", "DEVICE ID", "FIRMWARE"}

func deviceRow(d discovery.Device) []string {
	marker := MemberMarker
	if d.IsLeader() {
		marker = LeaderMarker
	}
	return []string{
		marker,
		d.Info.DeviceName,
		d.Info.Model,
		net.JoinHostPort(d.Address, strconv.Itoa(d.Port)),
		string(d.ID),
		d.Info.Release.Version,
	}
}

func deviceTable(devices []discovery.Device, extra string) *table.Table {
	headers := deviceColumns
	if extra != "" {
		headers = append(append([]string(nil), deviceColumns...), extra)
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().PaddingRight(2)
			switch {
			case row == table.HeaderRow:
				return style.Inherit(TableHeaderStyle)
			case row >= 0 && row < len(devices) && devices[row].IsLeader():
				return style.Inherit(LeaderStyle)
			default:
				return style.Inherit(MemberStyle)
			}
		})
	for _, d := range devices {
		row := deviceRow(d)
		if extra != "" {
			row = append(row, d.GroupID())
		}
		t.Row(row...)
	}
	return t
}

// RenderGroup renders one group as a titled box listing its members
func RenderGroup(g discovery.Group, width int) string {
	return renderGroup(g, width, GroupBoxStyle(width))
}

// RenderSelectedGroup renders a group with a highlighted border
func RenderSelectedGroup(g discovery.Group, width int) string {
	return renderGroup(g, width, GroupBoxStyle(width).BorderForeground(SuccessColor))
}

func renderGroup(g discovery.Group, width int, box lipgloss.Style) string {
	if width < MinTerminalWidth {
		box = box.Width(MinTerminalWidth - 2)
	}
	title := GroupTitleStyle.Render(g.Name()) + "  " +
		lipgloss.NewStyle().Foreground(MutedColor).Render(fmt.Sprintf("group %s · %d %s", g.ID, len(g.Members), plural(len(g.Members), "speaker", "speakers")))
	body := deviceTable(g.Members, "").Render()
	return box.Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
}

// RenderGroups renders every group, or a notice when there are none
func RenderGroups(groups []discovery.Group, width int) string {
	if len(groups) == 0 {
		return lipgloss.NewStyle().Foreground(MutedColor).Render("  No speaker groups found.")
	}
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, RenderGroup(g, width))
	}
	return strings.Join(parts, "\n")
}

// RenderDevices renders a flat device table including each device's group
func RenderDevices(devices []discovery.Device, width int) string {
	if len(devices) == 0 {
		return lipgloss.NewStyle().Foreground(MutedColor).Render("  No speakers found.")
	}
	return lipgloss.NewStyle().MaxWidth(clampWidth(width)).Render(deviceTable(devices, "GROUP").Render())
}

// DeviceInfoDetails flattens a device information document into result details
func DeviceInfoDetails(info dos.DeviceInformation) map[string]string {
	role := "member"
	if info.IsSystemLeader {
		role = "leader"
	}
	return map[string]string{
		"Name":      info.DeviceName,
		"Model":     info.Model,
		"Device ID": info.DeviceID,
		"Serial":    info.Serial,
		"Group":     info.GroupID,
		"System":    info.SystemID,
		"Role":      role,
		"Firmware":  info.Release.Version,
		"Features":  strings.Join(info.AvailableFeatures, ", "),
	}
}

// StateDetails flattens the playback state of a group into result details.
// A nil state means no source is active.
func StateDetails(state *dos.GroupState, volume int, nightMode bool) map[string]string {
	details := map[string]string{
		"Volume":     strconv.Itoa(volume),
		"Night mode": onOff(nightMode),
	}
	if state == nil {
		details["Source"] = "none"
		return details
	}
	details["Source"] = string(state.Source.Type)
	details["Playing"] = state.PlayingState
	details["Muted"] = strconv.FormatBool(state.Muted())
	details["Operations"] = strings.Join(state.AvailableOperations, ", ")
	if state.PeerDeviceName != "" {
		details["Peer"] = state.PeerDeviceName
	}
	if m := state.Metadata; m != nil && m.Title != "" {
		details["Track"] = strings.TrimSuffix(m.Title+" · "+m.Artist, " · ")
	}
	return details
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
