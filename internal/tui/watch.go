package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/dosctl/internal/discovery"
	"github.com/muurk/dosctl/internal/dos"
	"github.com/muurk/dosctl/internal/ui"
)

// ResubscribeDelay is how long the watch screen waits before subscribing
// again after a stream ended on a probe failure
const ResubscribeDelay = 2 * time.Second

// Subscriber is the part of a discovery session the watch screen needs
type Subscriber interface {
	Subscribe(ctx context.Context) *discovery.Subscription
}

// Detail is the playback state of a group, fetched from its leader
type Detail struct {
	State     *dos.GroupState // nil when no source is active
	Volume    int
	NightMode bool
}

// FetchFunc loads the Detail of a group from its leader
type FetchFunc func(ctx context.Context, leader discovery.Device) (Detail, error)

// FetchDetail queries a leader over the DOS API
func FetchDetail(ctx context.Context, leader discovery.Device) (Detail, error) {
	client := leader.Client()
	state, err := client.State(ctx)
	if err != nil {
		return Detail{}, err
	}
	volume, err := client.Volume(ctx)
	if err != nil {
		return Detail{}, err
	}
	night, err := client.NightMode(ctx)
	if err != nil {
		return Detail{}, err
	}
	return Detail{State: state, Volume: volume, NightMode: night}, nil
}

// Messages for async operations
type subscribedMsg struct {
	sub *discovery.Subscription
}

type groupMsg struct {
	sub   *discovery.Subscription
	group discovery.Group
}

type streamEndedMsg struct {
	sub *discovery.Subscription
	err error
}

type resubscribeMsg struct{}

type detailMsg struct {
	groupID string
	detail  Detail
	err     error
}

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Details key.Binding
	Devices key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Details, k.Devices, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Details},
		{k.Devices, k.Refresh, k.Help, k.Quit},
	}
}

func newWatchKeyMap() watchKeyMap {
	return watchKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "previous group"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next group"),
		),
		Details: key.NewBinding(
			key.WithKeys("enter", " "),
			key.WithHelp("enter", "playback state"),
		),
		Devices: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "groups/devices"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "resubscribe"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// WatchModel is the live group view. It renders every group the session
// streams, keeps the latest version of each, and subscribes again when the
// stream ends on a probe failure.
type WatchModel struct {
	ctx     context.Context
	source  Subscriber
	fetch   FetchFunc
	sub     *discovery.Subscription
	groups  []discovery.Group
	details map[string]Detail

	Selected     int
	ShowDevices  bool
	Err          error // last stream or fetch error
	Resubscribed int
	LastUpdate   time.Time
	Quitting     bool

	Width   int
	Height  int
	Spinner spinner.Model
	Help    help.Model
	Keys    watchKeyMap
}

// NewWatchModel creates the watch screen. fetch may be nil, in which case
// FetchDetail is used.
func NewWatchModel(ctx context.Context, source Subscriber, fetch FetchFunc) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	if fetch == nil {
		fetch = FetchDetail
	}

	return WatchModel{
		ctx:     ctx,
		source:  source,
		fetch:   fetch,
		details: make(map[string]Detail),
		Spinner: s,
		Help:    help.New(),
		Keys:    newWatchKeyMap(),
	}
}

// Init subscribes and starts the spinner
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.subscribe(), m.Spinner.Tick)
}

func (m WatchModel) subscribe() tea.Cmd {
	source, ctx := m.source, m.ctx
	return func() tea.Msg {
		return subscribedMsg{sub: source.Subscribe(ctx)}
	}
}

// waitForGroup blocks until the subscription yields a group or ends
func waitForGroup(sub *discovery.Subscription) tea.Cmd {
	return func() tea.Msg {
		g, ok := <-sub.Groups()
		if !ok {
			return streamEndedMsg{sub: sub, err: sub.Err()}
		}
		return groupMsg{sub: sub, group: g}
	}
}

func (m WatchModel) fetchDetail(g discovery.Group) tea.Cmd {
	fetch, ctx := m.fetch, m.ctx
	leader := g.Leader.Clone()
	return func() tea.Msg {
		detail, err := fetch(ctx, leader)
		return detailMsg{groupID: g.ID, detail: detail, err: err}
	}
}

// Update handles messages and updates the model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)

	case subscribedMsg:
		if m.sub != nil {
			m.sub.Close()
		}
		m.sub = msg.sub
		return m, waitForGroup(msg.sub)

	case groupMsg:
		if msg.sub != m.sub {
			return m, nil
		}
		m.applyGroup(msg.group)
		m.LastUpdate = time.Now()
		return m, waitForGroup(msg.sub)

	case streamEndedMsg:
		if msg.sub != m.sub {
			return m, nil
		}
		m.sub = nil
		switch {
		case msg.err == nil:
			return m, nil
		case errors.Is(msg.err, discovery.ErrSessionClosed), errors.Is(msg.err, context.Canceled):
			m.Quitting = true
			return m, tea.Quit
		default:
			m.Err = msg.err
			return m, tea.Tick(ResubscribeDelay, func(time.Time) tea.Msg { return resubscribeMsg{} })
		}

	case resubscribeMsg:
		m.Resubscribed++
		return m, m.subscribe()

	case detailMsg:
		if msg.err != nil {
			m.Err = msg.err
			delete(m.details, msg.groupID)
			return m, nil
		}
		m.details[msg.groupID] = msg.detail
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m WatchModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		if m.sub != nil {
			m.sub.Close()
			m.sub = nil
		}
		m.Quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Up):
		if m.Selected > 0 {
			m.Selected--
		}

	case key.Matches(msg, m.Keys.Down):
		if m.Selected < len(m.groups)-1 {
			m.Selected++
		}

	case key.Matches(msg, m.Keys.Details):
		if g, ok := m.SelectedGroup(); ok {
			return m, m.fetchDetail(g)
		}

	case key.Matches(msg, m.Keys.Devices):
		m.ShowDevices = !m.ShowDevices

	case key.Matches(msg, m.Keys.Refresh):
		m.Err = nil
		return m, m.subscribe()

	case key.Matches(msg, m.Keys.Help):
		m.Help.ShowAll = !m.Help.ShowAll
	}
	return m, nil
}

// applyGroup records the latest version of a group. Devices that now belong
// to it are removed from any other group, and groups whose leader moved are
// dropped.
func (m *WatchModel) applyGroup(g discovery.Group) {
	selectedID := ""
	if sel, ok := m.SelectedGroup(); ok {
		selectedID = sel.ID
	}

	claimed := make(map[discovery.DeviceID]bool, len(g.Members))
	for _, d := range g.Members {
		claimed[d.ID] = true
	}

	groups := make([]discovery.Group, 0, len(m.groups)+1)
	for _, existing := range m.groups {
		if existing.ID == g.ID || claimed[existing.Leader.ID] {
			continue
		}
		members := existing.Members[:0:0]
		for _, d := range existing.Members {
			if !claimed[d.ID] {
				members = append(members, d)
			}
		}
		existing.Members = members
		groups = append(groups, existing)
	}
	groups = append(groups, g)
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	m.groups = groups

	m.Selected = 0
	for i, existing := range groups {
		if existing.ID == selectedID {
			m.Selected = i
		}
	}
}

// Groups returns the groups currently shown, sorted by ID
func (m WatchModel) Groups() []discovery.Group {
	return m.groups
}

// SelectedGroup returns the highlighted group
func (m WatchModel) SelectedGroup() (discovery.Group, bool) {
	if m.Selected < 0 || m.Selected >= len(m.groups) {
		return discovery.Group{}, false
	}
	return m.groups[m.Selected], true
}

// Devices returns every device of every shown group, sorted by ID
func (m WatchModel) Devices() []discovery.Device {
	var devices []discovery.Device
	for _, g := range m.groups {
		devices = append(devices, g.Members...)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}

// View renders the watch screen
func (m WatchModel) View() string {
	if m.Quitting {
		return ""
	}

	width := m.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	inner := width - 6

	var b strings.Builder
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	if m.Err != nil {
		b.WriteString(ErrorStyle.Render("  ✗ " + dos.ShortMessage(m.Err)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.ShowDevices:
		b.WriteString(ui.RenderDevices(m.Devices(), inner))
	case len(m.groups) == 0:
		b.WriteString(SubtitleStyle.Render("  Waiting for a group leader to answer..."))
	default:
		parts := make([]string, 0, len(m.groups))
		for i, g := range m.groups {
			if i == m.Selected {
				parts = append(parts, ui.RenderSelectedGroup(g, inner))
				if d, ok := m.details[g.ID]; ok {
					parts = append(parts, renderDetail(d, inner))
				}
				continue
			}
			parts = append(parts, ui.RenderGroup(g, inner))
		}
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left, parts...))
	}

	return RenderApplicationContainer(b.String(), m.Help.View(m.Keys), width, m.Height)
}

func (m WatchModel) renderStatus() string {
	if len(m.groups) == 0 {
		return fmt.Sprintf("%s %s", m.Spinner.View(), TitleStyle.Render("Watching the network for speakers"))
	}
	status := fmt.Sprintf("%d %s · %d speakers", len(m.groups), pluralize(len(m.groups), "group", "groups"), len(m.Devices()))
	if !m.LastUpdate.IsZero() {
		status += " · updated " + m.LastUpdate.Format("15:04:05")
	}
	if m.Resubscribed > 0 {
		status += fmt.Sprintf(" · resubscribed %d×", m.Resubscribed)
	}
	return fmt.Sprintf("%s %s", m.Spinner.View(), TitleStyle.Render(status))
}

func renderDetail(d Detail, width int) string {
	details := ui.StateDetails(d.State, d.Volume, d.NightMode)
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, ui.ResultKeyStyle.Render(k+":")+" "+ui.ResultValueStyle.Render(details[k]))
	}
	return DetailStyle.Width(width - 2).Render(strings.Join(lines, "\n"))
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
