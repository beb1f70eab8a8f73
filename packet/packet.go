// Package packet implements USB-MIDI event packets and their decoding into
// protocol messages.
//
// A packet is four bytes: the cable number and code index number (CIN) in
// the first byte, followed by up to three MIDI bytes.
package packet

import "fmt"

// CableNumber addresses one of the 16 virtual cables of a USB-MIDI interface
type CableNumber uint8

const (
	CableMin CableNumber = 0
	CableMax CableNumber = 15
)

// CodeIndex is the USB-MIDI code index number
type CodeIndex uint8

const (
	CINMisc          CodeIndex = 0x0 // reserved
	CINCableEvent    CodeIndex = 0x1 // reserved
	CINCommon2       CodeIndex = 0x2
	CINCommon3       CodeIndex = 0x3
	CINSysexStart    CodeIndex = 0x4 // start or continue
	CINSysexEnd1     CodeIndex = 0x5 // also single byte system common
	CINSysexEnd2     CodeIndex = 0x6
	CINSysexEnd3     CodeIndex = 0x7
	CINNoteOff       CodeIndex = 0x8
	CINNoteOn        CodeIndex = 0x9
	CINPolyPressure  CodeIndex = 0xA
	CINControlChange CodeIndex = 0xB
	CINProgramChange CodeIndex = 0xC
	CINChanPressure  CodeIndex = 0xD
	CINPitchBend     CodeIndex = 0xE
	CINSingleByte    CodeIndex = 0xF
)

const (
	sysexStart = 0xF0
	sysexEnd   = 0xF7
)

// Packet is a raw USB-MIDI event packet
type Packet [4]byte

// New builds a packet from its parts
func New(cable CableNumber, cin CodeIndex, b0, b1, b2 byte) Packet {
	return Packet{byte(cable&0x0F)<<4 | byte(cin&0x0F), b0, b1, b2}
}

func (p Packet) Cable() CableNumber {
	return CableNumber(p[0] >> 4)
}

func (p Packet) CodeIndex() CodeIndex {
	return CodeIndex(p[0] & 0x0F)
}

// WithCable returns a copy of the packet addressed to another cable
func (p Packet) WithCable(cable CableNumber) Packet {
	p[0] = byte(cable&0x0F)<<4 | p[0]&0x0F
	return p
}

// Payload returns the MIDI bytes the code index says are significant
func (p Packet) Payload() []byte {
	return p[1 : 1+payloadLen(p.CodeIndex())]
}

func (p Packet) String() string {
	return fmt.Sprintf("cable=%d cin=%X % X", p.Cable(), byte(p.CodeIndex()), p[1:])
}

func payloadLen(cin CodeIndex) int {
	switch cin {
	case CINSysexEnd1, CINSingleByte:
		return 1
	case CINCommon2, CINSysexEnd2, CINProgramChange, CINChanPressure:
		return 2
	case CINCommon3, CINSysexStart, CINSysexEnd3, CINNoteOff, CINNoteOn,
		CINPolyPressure, CINControlChange, CINPitchBend:
		return 3
	}
	return 0
}
