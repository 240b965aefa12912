package ui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/muurk/dosctl/internal/discovery"
	"github.com/muurk/dosctl/internal/dos"
	"github.com/muurk/dosctl/internal/urls"
)

func testDevice(id, name, group string, leader bool) discovery.Device {
	return discovery.Device{
		ID:       discovery.DeviceID(id),
		Hostname: "Phantom-" + id,
		Address:  "192.168.1.10",
		Port:     80,
		Info: dos.DeviceInformation{
			DeviceID:       id,
			DeviceName:     name,
			GroupID:        group,
			IsSystemLeader: leader,
			Model:          "Phantom I",
			Release:        dos.Release{Version: "2.16.1"},
		},
	}
}

func TestHeaderRender_SortsParams(t *testing.T) {
	out := NewHeader("Speaker Groups", "dosctl groups", map[string]string{
		"Settle":  "500ms",
		"Service": "_http._tcp",
	}).SetWidth(80).Render()

	for _, want := range []string{"SPEAKER GROUPS", "dosctl groups", "_http._tcp", "500ms", "─"} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Service:") > strings.Index(out, "Settle:") {
		t.Errorf("params not sorted:\n%s", out)
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Volume set", map[string]string{"Volume": "40"}),
			want:   []string{"SUCCESS", "Volume set", "Volume:", "40"},
		},
		{
			name:   "failure",
			result: NewFailureResult("Discovery failed", errors.New("boom"), []string{"Check the network"}),
			want:   []string{"FAILED", "Discovery failed", "Error: boom", "Troubleshooting:", "Check the network"},
		},
		{
			name:   "warning",
			result: NewWarningResult("No source", nil).AddDetail("Group", "g1"),
			want:   []string{"WARNING", "No source", "Group:", "g1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(100).Render()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("result missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestTroubleshoot(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantTips bool
		contains string
	}{
		{"nil", nil, false, ""},
		{"exhausted", fmt.Errorf("%w (5 attempts)", discovery.ErrDiscoveryExhausted), true, "multicast"},
		{"exhausted links docs", discovery.ErrDiscoveryExhausted, true, urls.Troubleshooting},
		{"probe", &discovery.ProbeError{Address: "192.168.1.10", Err: errors.New("refused")}, true, "control port"},
		{"network", dos.ClassifyNetworkError(errors.New("reset"), dos.PathVolume), true, "reachable"},
		{"device", dos.NewDeviceError(dos.PathPlay, dos.ErrorBody{Code: "NoCurrentSource"}), true, "dosctl state"},
		{"validation", dos.NewValidationError(dos.PathDeviceInfo, "missing field"), true, "unexpected document"},
		{"other", errors.New("other"), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tips := Troubleshoot(tt.err)
			if (len(tips) > 0) != tt.wantTips {
				t.Fatalf("Troubleshoot() = %v, wantTips %v", tips, tt.wantTips)
			}
			if tt.contains != "" && !strings.Contains(strings.Join(tips, "\n"), tt.contains) {
				t.Errorf("tips %v do not mention %q", tips, tt.contains)
			}
		})
	}
}

func TestRenderGroups(t *testing.T) {
	leader := testDevice("A", "Salon", "g1", true)
	member := testDevice("B", "Salon R", "g1", false)
	group := discovery.Group{ID: "g1", Leader: leader, Members: []discovery.Device{leader, member}}

	out := RenderGroups([]discovery.Group{group}, 100)
	for _, want := range []string{"Salon", "group g1", "2 speakers", LeaderMarker, MemberMarker, "NAME", "2.16.1", "192.168.1.10:80"} {
		if !strings.Contains(out, want) {
			t.Errorf("groups output missing %q:\n%s", want, out)
		}
	}

	if out := RenderGroups(nil, 100); !strings.Contains(out, "No speaker groups found") {
		t.Errorf("empty groups output = %q", out)
	}
}

func TestRenderDevices(t *testing.T) {
	devices := []discovery.Device{
		testDevice("A", "Salon", "g1", true),
		testDevice("C", "Kitchen", "g2", false),
	}
	out := RenderDevices(devices, 100)
	for _, want := range []string{"GROUP", "Salon", "Kitchen", "g1", "g2"} {
		if !strings.Contains(out, want) {
			t.Errorf("devices output missing %q:\n%s", want, out)
		}
	}

	if out := RenderDevices(nil, 100); !strings.Contains(out, "No speakers found") {
		t.Errorf("empty devices output = %q", out)
	}
}

func TestDeviceInfoDetails(t *testing.T) {
	info := testDevice("A", "Salon", "g1", true).Info
	info.AvailableFeatures = []string{"nightMode", "equalizer"}

	details := DeviceInfoDetails(info)
	if details["Role"] != "leader" {
		t.Errorf("Role = %q, want leader", details["Role"])
	}
	if details["Features"] != "nightMode, equalizer" {
		t.Errorf("Features = %q", details["Features"])
	}

	info.IsSystemLeader = false
	if got := DeviceInfoDetails(info)["Role"]; got != "member" {
		t.Errorf("Role = %q, want member", got)
	}
}

func TestStateDetails(t *testing.T) {
	details := StateDetails(nil, 35, true)
	if details["Source"] != "none" || details["Volume"] != "35" || details["Night mode"] != "on" {
		t.Errorf("StateDetails(nil) = %v", details)
	}

	state := &dos.GroupState{
		AvailableOperations: []string{dos.OperationPlay, dos.OperationPause},
		MuteState:           "unmuted",
		PlayingState:        "playing",
		Source:              dos.Source{Type: dos.SourceSpotifyConnect},
		Metadata:            &dos.TrackMetadata{Title: "Song", Artist: "Band"},
	}
	details = StateDetails(state, 20, false)
	want := map[string]string{
		"Source":     "spotifyconnect",
		"Playing":    "playing",
		"Muted":      "false",
		"Operations": "play, pause",
		"Track":      "Song · Band",
		"Night mode": "off",
	}
	for key, value := range want {
		if details[key] != value {
			t.Errorf("details[%q] = %q, want %q", key, details[key], value)
		}
	}
	if _, ok := details["Peer"]; ok {
		t.Error("Peer should be omitted when empty")
	}
}

func TestConfirmationAsk(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"typed phrase", "yes\n", true},
		{"phrase without newline", "yes", true},
		{"padded phrase", "  yes  \n", true},
		{"refused", "no\n", false},
		{"empty input", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := PowerOffConfirmation("Salon")
			c.Width = 80
			if got := c.Ask(strings.NewReader(tt.input), &out); got != tt.want {
				t.Errorf("Ask(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "POWER OFF") {
				t.Errorf("prompt missing title:\n%s", out.String())
			}
			if tt.input == "no\n" && !strings.Contains(out.String(), "Operation cancelled") {
				t.Errorf("refusal not reported:\n%s", out.String())
			}
		})
	}
}

func TestPrinter_PrintErrorDerivesTips(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out).SetWidth(100)
	p.PrintError("Discovery failed", discovery.ErrDiscoveryExhausted, nil)

	s := out.String()
	if !strings.Contains(s, "Troubleshooting:") || !strings.Contains(s, "multicast") {
		t.Errorf("PrintError output missing derived tips:\n%s", s)
	}
}

func TestPrinter_Width(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{})
	if got := p.SetWidth(10).Width(); got != MinTerminalWidth {
		t.Errorf("Width() = %d, want %d", got, MinTerminalWidth)
	}
	if got := p.SetWidth(500).Width(); got != MaxContentWidth {
		t.Errorf("Width() = %d, want %d", got, MaxContentWidth)
	}
}
