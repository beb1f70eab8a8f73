package tui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"go-midirouter/midi"
	"go-midirouter/route"
	"go-midirouter/sysex"
)

type EventMsg route.Event

type MatchMsg struct {
	Listener string
	From     route.Endpoint
	Captures sysex.CaptureBuffer
}

type IdentityMsg struct {
	From route.Endpoint
	ID   midi.Identity
}

type DeviceEventMsg struct {
	Type  midi.DeviceEventType
	ID    string
	Kind  midi.ControllerType
	Cable uint8
}

// Feed carries router activity to the UI. Posting never blocks; when the
// UI falls behind messages are counted and dropped.
type Feed struct {
	msgs    chan tea.Msg
	dropped atomic.Uint64
}

func NewFeed(size int) *Feed {
	return &Feed{msgs: make(chan tea.Msg, size)}
}

func (f *Feed) post(msg tea.Msg) {
	select {
	case f.msgs <- msg:
	default:
		f.dropped.Add(1)
	}
}

// Event posts a routed packet; use it as a router observer
func (f *Feed) Event(ev route.Event) {
	f.post(EventMsg(ev))
}

// Match returns a listener handler that posts matches under name
func (f *Feed) Match(name string) route.Handler {
	return func(from route.Endpoint, c sysex.CaptureBuffer) {
		f.post(MatchMsg{Listener: name, From: from, Captures: c})
	}
}

func (f *Feed) Identity(from route.Endpoint, id midi.Identity) {
	f.post(IdentityMsg{From: from, ID: id})
}

// Device posts a connect or disconnect
func (f *Feed) Device(ev midi.DeviceEvent) {
	msg := DeviceEventMsg{Type: ev.Type, ID: ev.ID}
	if ev.Controller != nil {
		msg.Kind = ev.Controller.Type()
		msg.Cable = uint8(ev.Controller.Cable())
	}
	f.post(msg)
}

// Dropped counts messages lost because the UI was busy
func (f *Feed) Dropped() uint64 {
	return f.dropped.Load()
}

func listen(f *Feed) tea.Cmd {
	return func() tea.Msg {
		return <-f.msgs
	}
}
