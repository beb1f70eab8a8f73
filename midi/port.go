package midi

import (
	"fmt"
	"sync"

	"go-midirouter/debug"
	"go-midirouter/packet"
	"go-midirouter/sysex"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// PortController handles any host MIDI in/out port pair
type PortController struct {
	id       string
	cable    packet.CableNumber
	send     func(msg gomidi.Message) error
	stopFunc func()

	mu  sync.Mutex
	out Assembler

	// inMu guards packets against a driver callback racing Close
	inMu      sync.Mutex
	closed    bool
	closeOnce sync.Once
	packets   chan packet.Packet
}

// NewPortController opens the ports; either may be nil
func NewPortController(id string, cable packet.CableNumber, inPort drivers.In, outPort drivers.Out) (*PortController, error) {
	pc := newPortController(id, cable, nil)

	// Open output
	if outPort != nil {
		send, err := gomidi.SendTo(outPort)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		pc.send = send
	}

	// Open input
	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			pc.receive(msg)
		}, gomidi.UseSysEx(), gomidi.HandleError(func(err error) {
			debug.Log("port", "%s: listen error: %v", id, err)
		}))
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		pc.stopFunc = stop
	}

	return pc, nil
}

func newPortController(id string, cable packet.CableNumber, send func(gomidi.Message) error) *PortController {
	return &PortController{
		id:      id,
		cable:   cable,
		send:    send,
		packets: make(chan packet.Packet, 256),
	}
}

// receive converts a port message and queues its packets, dropping when
// the consumer falls behind
func (pc *PortController) receive(msg gomidi.Message) {
	ps, err := ToPackets(msg, pc.cable)
	if err != nil {
		debug.Log("port", "%s: drop %v: %v", pc.id, msg, err)
		return
	}
	pc.inMu.Lock()
	defer pc.inMu.Unlock()
	if pc.closed {
		return
	}
	for _, p := range ps {
		select {
		case pc.packets <- p:
		default:
			debug.LogEvery(100, "port", "%s: inbound queue full", pc.id)
		}
	}
}

func (pc *PortController) ID() string {
	return pc.id
}

func (pc *PortController) Type() ControllerType {
	return ControllerPort
}

func (pc *PortController) Cable() packet.CableNumber {
	return pc.cable
}

func (pc *PortController) Packets() <-chan packet.Packet {
	return pc.packets
}

// Send queues one packet; a port message goes out once it is complete
func (pc *PortController) Send(p packet.Packet) error {
	pc.mu.Lock()
	msg, ok := pc.out.Push(p)
	pc.mu.Unlock()
	if !ok || pc.send == nil {
		return nil
	}
	return pc.send(msg)
}

// SendSysex drains an encoder into the port
func (pc *PortController) SendSysex(s *sysex.Sysex) error {
	for p := range s.Packets() {
		if err := pc.Send(p); err != nil {
			return err
		}
	}
	return nil
}

// Close stops listening and closes Packets. It is safe to call more than once
// and late driver callbacks are dropped.
func (pc *PortController) Close() error {
	pc.closeOnce.Do(func() {
		if pc.stopFunc != nil {
			pc.stopFunc()
		}
		pc.inMu.Lock()
		pc.closed = true
		close(pc.packets)
		pc.inMu.Unlock()
	})
	return nil
}
