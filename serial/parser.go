// Package serial carries USB-MIDI packets over a DIN MIDI UART.
package serial

import (
	"go-midirouter/packet"

	gomidi "gitlab.com/gomidi/midi/v2"
)

const (
	sysexStart = 0xF0
	sysexEnd   = 0xF7
)

// Parser turns a DIN MIDI byte stream into packets. SysEx is split into
// the same packet sequence the sysex encoder produces for the same data.
type Parser struct {
	cable packet.CableNumber

	// short messages
	running byte
	data    [2]byte
	n       int

	// sysex
	inSysex bool
	started bool
	window  [3]byte
	wlen    int
}

func NewParser(cable packet.CableNumber) *Parser {
	return &Parser{cable: cable}
}

// Feed consumes one byte and returns a packet when one is complete
func (p *Parser) Feed(b byte) (packet.Packet, bool) {
	switch {
	case b >= 0xF8:
		// realtime never disturbs the message around it
		return p.short(gomidi.Message{b})
	case b == sysexStart:
		p.running = 0
		p.inSysex = true
		p.started = true
		p.wlen = 0
		return packet.Packet{}, false
	case b == sysexEnd:
		if !p.inSysex {
			return packet.Packet{}, false
		}
		return p.endSysex()
	case b >= 0x80:
		p.inSysex = false
		return p.status(b)
	case p.inSysex:
		return p.sysexData(b)
	}
	return p.dataByte(b)
}

// Reset drops any partial message and the running status
func (p *Parser) Reset() {
	*p = Parser{cable: p.cable}
}

func (p *Parser) status(b byte) (packet.Packet, bool) {
	p.n = 0
	switch packet.StatusLen(b) {
	case 0:
		p.running = 0
		return packet.Packet{}, false
	case 1:
		p.running = 0
		return p.short(gomidi.Message{b})
	}
	p.running = b
	return packet.Packet{}, false
}

func (p *Parser) dataByte(b byte) (packet.Packet, bool) {
	if p.running == 0 {
		return packet.Packet{}, false
	}
	p.data[p.n] = b
	p.n++
	if p.n < packet.StatusLen(p.running)-1 {
		return packet.Packet{}, false
	}
	msg := append(gomidi.Message{p.running}, p.data[:p.n]...)
	p.n = 0
	if p.running >= 0xF0 {
		// system common has no running status
		p.running = 0
	}
	return p.short(msg)
}

func (p *Parser) short(msg gomidi.Message) (packet.Packet, bool) {
	m, err := packet.FromMIDI(msg)
	if err != nil {
		return packet.Packet{}, false
	}
	return m.Packet(p.cable), true
}

func (p *Parser) sysexData(b byte) (packet.Packet, bool) {
	p.window[p.wlen] = b
	p.wlen++
	w := p.window
	switch {
	case p.started && p.wlen == 2:
		p.started = false
		p.wlen = 0
		return packet.SysexBegin(w[0], w[1]).Packet(p.cable), true
	case p.wlen == 3:
		p.wlen = 0
		return packet.SysexCont(w[0], w[1], w[2]).Packet(p.cable), true
	}
	return packet.Packet{}, false
}

func (p *Parser) endSysex() (packet.Packet, bool) {
	p.inSysex = false
	w, n, start := p.window, p.wlen, p.started
	p.wlen = 0
	p.started = false

	var m packet.Message
	switch {
	case start && n == 0:
		m = packet.SysexEmpty()
	case start:
		m = packet.SysexSingleByte(w[0])
	case n == 0:
		m = packet.SysexEnd()
	case n == 1:
		m = packet.SysexEnd1(w[0])
	default:
		m = packet.SysexEnd2(w[0], w[1])
	}
	return m.Packet(p.cable), true
}
