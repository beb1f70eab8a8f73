package midi

import (
	"go-midirouter/packet"
	"go-midirouter/sysex"
)

// ControllerType identifies the kind of controller
type ControllerType int

const (
	ControllerUnknown ControllerType = iota
	ControllerLaunchpad
	ControllerPort
)

func (t ControllerType) String() string {
	switch t {
	case ControllerLaunchpad:
		return "launchpad"
	case ControllerPort:
		return "port"
	}
	return "unknown"
}

// Controller is a host MIDI device seen as a USB-MIDI packet endpoint
type Controller interface {
	ID() string
	Type() ControllerType
	Cable() packet.CableNumber

	// Inbound packets from the device, addressed to Cable()
	Packets() <-chan packet.Packet

	// Output to the device
	Send(p packet.Packet) error
	SendSysex(s *sysex.Sysex) error

	// Lifecycle
	Close() error
}
