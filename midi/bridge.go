package midi

import (
	"go-midirouter/packet"
	"go-midirouter/sysex"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// maxSysex bounds the bytes an Assembler buffers for one message
const maxSysex = 64 * 1024

// ToPackets splits a port message into USB-MIDI packets
func ToPackets(msg gomidi.Message, cable packet.CableNumber) ([]packet.Packet, error) {
	var data []byte
	if msg.GetSysEx(&data) {
		return sysex.New(sysex.Seq(data...)).OnCable(cable).Collect(), nil
	}
	m, err := packet.FromMIDI(msg)
	if err != nil {
		return nil, err
	}
	return []packet.Packet{m.Packet(cable)}, nil
}

// Assembler joins a packet stream back into port messages. Realtime
// messages pass through without disturbing a SysEx in progress; SysEx
// fragments outside a message are dropped.
type Assembler struct {
	buf     []byte
	inSysex bool
}

// Push feeds one packet and returns a complete message when there is one
func (a *Assembler) Push(p packet.Packet) (gomidi.Message, bool) {
	m, err := packet.Decode(p)
	if err != nil {
		return nil, false
	}
	if !m.IsSysex() {
		return m.MIDI(), true
	}

	if m.Opens() {
		a.buf = a.buf[:0]
		a.inSysex = true
	}
	if !a.inSysex {
		return nil, false
	}
	a.buf = append(a.buf, m.Data()...)
	if len(a.buf) > maxSysex {
		a.buf = a.buf[:0]
		a.inSysex = false
		return nil, false
	}
	if !m.Terminal() {
		return nil, false
	}
	a.inSysex = false
	return gomidi.SysEx(a.buf), true
}
