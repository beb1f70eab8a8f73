package tui

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-midirouter/midi"
	"go-midirouter/packet"
	"go-midirouter/route"
	"go-midirouter/theme"
	"go-midirouter/widgets"
)

const (
	shownLines   = 20
	shownMatches = 6
)

type logLine struct {
	ev    route.Event
	sysex bool
	bad   bool
	text  string
}

type device struct {
	id    string
	kind  midi.ControllerType
	cable uint8
}

type Model struct {
	Feed  *Feed
	Theme *theme.Theme

	maxLines   int
	lines      []logLine
	matches    []MatchMsg
	identities map[route.Endpoint]midi.Identity
	devices    []device
	pads       widgets.PadGrid
	in, out    int

	paused    bool
	sysexOnly bool
	quitting  bool
}

func NewModel(feed *Feed, th *theme.Theme, maxLines int) Model {
	if maxLines <= 0 {
		maxLines = 200
	}
	return Model{
		Feed:       feed,
		Theme:      th,
		maxLines:   maxLines,
		identities: make(map[route.Endpoint]midi.Identity),
	}
}

func (m Model) Init() tea.Cmd {
	return listen(m.Feed)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
		case "s":
			m.sysexOnly = !m.sysexOnly
		case "c":
			m.lines = nil
			m.matches = nil
			m.pads = widgets.PadGrid{}
		}
		return m, nil

	case EventMsg:
		m.event(route.Event(msg))
		return m, listen(m.Feed)

	case MatchMsg:
		m.matches = append(m.matches, msg)
		if len(m.matches) > shownMatches {
			m.matches = m.matches[len(m.matches)-shownMatches:]
		}
		return m, listen(m.Feed)

	case IdentityMsg:
		m.identities[msg.From] = msg.ID
		return m, listen(m.Feed)

	case DeviceEventMsg:
		m.devices = slices.DeleteFunc(m.devices, func(d device) bool { return d.id == msg.ID })
		if msg.Type == midi.DeviceConnected {
			m.devices = append(m.devices, device{id: msg.ID, kind: msg.Kind, cable: msg.Cable})
			slices.SortFunc(m.devices, func(a, b device) int { return int(a.cable) - int(b.cable) })
		}
		return m, listen(m.Feed)
	}

	return m, nil
}

func (m *Model) event(ev route.Event) {
	if ev.Dir == route.Incoming {
		m.in++
	} else {
		m.out++
	}
	if ev.Dir == route.Incoming && m.isLaunchpad(ev.Endpoint) {
		if row, col, ok := midi.PadAt(ev.Packet); ok {
			m.pads.Press(row, col)
		}
	}
	if m.paused {
		return
	}

	line := logLine{ev: ev}
	if msg, err := packet.Decode(ev.Packet); err != nil {
		line.bad = true
		line.text = fmt.Sprintf("% X  %v", ev.Packet[:], err)
	} else {
		line.sysex = msg.IsSysex()
		line.text = msg.String()
	}
	m.lines = append(m.lines, line)
	if len(m.lines) > m.maxLines {
		m.lines = m.lines[len(m.lines)-m.maxLines:]
	}
}

func (m Model) isLaunchpad(ep route.Endpoint) bool {
	if ep.Kind != route.KindUSB {
		return false
	}
	for _, d := range m.devices {
		if d.cable == ep.Index && d.kind == midi.ControllerLaunchpad {
			return true
		}
	}
	return false
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	th := m.Theme
	headerStyle := lipgloss.NewStyle().Foreground(th.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	textStyle := lipgloss.NewStyle().Foreground(th.FG())
	sysexStyle := lipgloss.NewStyle().Foreground(th.Sysex())
	matchStyle := lipgloss.NewStyle().Foreground(th.Success())
	warnStyle := lipgloss.NewStyle().Foreground(th.Warning())

	state := ""
	if m.paused {
		state += "  PAUSED"
	}
	if m.sysexOnly {
		state += "  SYSEX"
	}
	header := headerStyle.Render(fmt.Sprintf("go-midirouter  in:%d out:%d  dropped:%d%s",
		m.in, m.out, m.Feed.Dropped(), state))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")

	// Devices
	if len(m.devices) == 0 {
		out.WriteString(dimStyle.Render("no MIDI devices - connect one any time"))
		out.WriteString("\n")
	}
	showPads := false
	for _, d := range m.devices {
		line := fmt.Sprintf("usb:%-2d %-10s %s", d.cable, d.kind, d.id)
		if id, ok := m.identities[route.USB(packet.CableNumber(d.cable))]; ok {
			line += "  " + id.String()
		}
		out.WriteString(textStyle.Render(line))
		out.WriteString("\n")
		if d.kind == midi.ControllerLaunchpad {
			showPads = true
		}
	}

	if showPads {
		out.WriteString("\n")
		out.WriteString(widgets.RenderPadGrid(m.pads, th.RGB(1), th.RGB(0.2), th.Symbols))
		out.WriteString("\n")
	}

	// Matches
	if len(m.matches) > 0 {
		out.WriteString("\n")
		for _, mt := range m.matches {
			out.WriteString(matchStyle.Render(fmt.Sprintf("%c %-12s %-8s %s",
				th.Symbols.Match, mt.Listener, mt.From, mt.Captures)))
			out.WriteString("\n")
		}
	}

	// Traffic
	out.WriteString("\n")
	var shown []logLine
	for _, l := range slices.Backward(m.lines) {
		if m.sysexOnly && !l.sysex {
			continue
		}
		shown = append(shown, l)
		if len(shown) == shownLines {
			break
		}
	}
	slices.Reverse(shown)
	for _, l := range shown {
		arrow := th.Symbols.In
		if l.ev.Dir == route.Outgoing {
			arrow = th.Symbols.Out
		}
		text := fmt.Sprintf("%c %-9s %s", arrow, l.ev.Endpoint, l.text)
		switch {
		case l.bad:
			out.WriteString(warnStyle.Render(text))
		case l.sysex:
			out.WriteString(sysexStyle.Render(text))
		default:
			out.WriteString(textStyle.Render(text))
		}
		out.WriteString("\n")
	}

	// Help line
	out.WriteString("\n")
	out.WriteString(dimStyle.Render(widgets.RenderKeyHelp([]widgets.KeySection{{
		Keys: []widgets.KeyBinding{
			{Key: "p", Desc: "pause log"},
			{Key: "s", Desc: "SysEx only"},
			{Key: "c", Desc: "clear"},
			{Key: "q", Desc: "quit"},
		},
	}})))

	return out.String()
}
