package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midirouter/midi"
	"go-midirouter/packet"
	"go-midirouter/route"
	"go-midirouter/sysex"
	"go-midirouter/theme"
)

func newTestModel() Model {
	return NewModel(NewFeed(8), theme.New(nil), 4)
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func noteOn(cable packet.CableNumber, note byte) route.Event {
	return route.Event{
		Dir:      route.Incoming,
		Endpoint: route.USB(cable),
		Packet:   packet.New(cable, packet.CINNoteOn, 0x90, note, 0x7F),
	}
}

func TestModelCountsAndTrims(t *testing.T) {
	m := newTestModel()
	for i := range 6 {
		m = update(t, m, EventMsg(noteOn(0, byte(60+i))))
	}
	m = update(t, m, EventMsg(route.Event{Dir: route.Outgoing, Endpoint: route.Serial(0), Packet: packet.SysexEmpty().Packet(0)}))

	assert.Equal(t, 6, m.in)
	assert.Equal(t, 1, m.out)
	assert.Len(t, m.lines, 4)
	assert.True(t, m.lines[3].sysex)
}

func TestModelPauseAndFilter(t *testing.T) {
	m := newTestModel()
	m = update(t, m, key("p"))
	m = update(t, m, EventMsg(noteOn(0, 60)))
	assert.Empty(t, m.lines)
	assert.Equal(t, 1, m.in)

	m = update(t, m, key("p"))
	m = update(t, m, key("s"))
	m = update(t, m, EventMsg(noteOn(0, 61)))
	m = update(t, m, EventMsg(route.Event{Dir: route.Incoming, Endpoint: route.USB(0), Packet: packet.SysexSingleByte(0x42).Packet(0)}))
	view := m.View()
	assert.Contains(t, view, "SYSEX")
	assert.Contains(t, view, "42")
	assert.NotContains(t, view, "NoteOn")

	m = update(t, m, key("c"))
	assert.Empty(t, m.lines)
}

func TestModelBadPacket(t *testing.T) {
	m := newTestModel()
	m = update(t, m, EventMsg(route.Event{Dir: route.Incoming, Endpoint: route.USB(0), Packet: packet.Packet{0x00, 1, 2, 3}}))
	require.Len(t, m.lines, 1)
	assert.True(t, m.lines[0].bad)
}

func TestModelMirrorsLaunchpad(t *testing.T) {
	m := newTestModel()
	m = update(t, m, DeviceEventMsg{Type: midi.DeviceConnected, ID: "lp", Kind: midi.ControllerLaunchpad, Cable: 1})
	m = update(t, m, DeviceEventMsg{Type: midi.DeviceConnected, ID: "drum", Kind: midi.ControllerPort, Cable: 0})
	require.Len(t, m.devices, 2)
	assert.Equal(t, "drum", m.devices[0].id)

	m = update(t, m, EventMsg(noteOn(1, 11)))
	m = update(t, m, EventMsg(noteOn(0, 22)))
	assert.True(t, m.pads[0][0])
	assert.False(t, m.pads[1][1])

	m = update(t, m, IdentityMsg{From: route.USB(1), ID: midi.Identity{DeviceID: 0x7F, Manufacturer: []byte{0x00, 0x20, 0x29}}})
	view := m.View()
	assert.Contains(t, view, "launchpad")
	assert.Contains(t, view, "00 20 29")

	m = update(t, m, DeviceEventMsg{Type: midi.DeviceDisconnected, ID: "lp"})
	assert.Len(t, m.devices, 1)
	assert.NotContains(t, m.View(), "launchpad")
}

func TestModelMatches(t *testing.T) {
	m := newTestModel()
	for range shownMatches + 2 {
		m = update(t, m, MatchMsg{Listener: "identity", From: route.USB(2), Captures: sysex.CaptureBuffer{}})
	}
	assert.Len(t, m.matches, shownMatches)
	assert.Contains(t, m.View(), "identity")
}

func TestFeedDropsWhenFull(t *testing.T) {
	f := NewFeed(1)
	f.Event(noteOn(0, 60))
	f.Match("x")(route.USB(0), sysex.CaptureBuffer{})
	assert.Equal(t, uint64(1), f.Dropped())

	msg := listen(f)()
	_, ok := msg.(EventMsg)
	assert.True(t, ok)
}

func TestQuit(t *testing.T) {
	m := newTestModel()
	next, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.Empty(t, next.View())
}
