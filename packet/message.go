package packet

import (
	"errors"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

var (
	ErrReserved = errors.New("reserved code index")
	ErrFraming  = errors.New("invalid sysex framing")
	ErrStatus   = errors.New("status does not match code index")
	ErrLength   = errors.New("invalid message length")
)

// Kind identifies the shape of a decoded message
type Kind int

const (
	KindSysexEmpty      Kind = iota // F0 F7
	KindSysexSingleByte             // F0 a F7
	KindSysexBegin                  // F0 a b ...
	KindSysexCont                   // ... a b c ...
	KindSysexEnd                    // ... F7
	KindSysexEnd1                   // ... a F7
	KindSysexEnd2                   // ... a b F7
	KindChannel
	KindCommon
	KindRealtime
)

var kindNames = [...]string{
	KindSysexEmpty:      "SysexEmpty",
	KindSysexSingleByte: "SysexSingleByte",
	KindSysexBegin:      "SysexBegin",
	KindSysexCont:       "SysexCont",
	KindSysexEnd:        "SysexEnd",
	KindSysexEnd1:       "SysexEnd1",
	KindSysexEnd2:       "SysexEnd2",
	KindChannel:         "Channel",
	KindCommon:          "Common",
	KindRealtime:        "Realtime",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Message is a decoded packet. For SysEx kinds the bytes are the payload
// without F0/F7 framing; for every other kind they are the raw MIDI bytes.
type Message struct {
	kind Kind
	data [3]byte
	n    int
}

func SysexEmpty() Message { return Message{kind: KindSysexEmpty} }
func SysexSingleByte(a byte) Message { return Message{kind: KindSysexSingleByte, data: [3]byte{a}, n: 1} }
func SysexBegin(a, b byte) Message { return Message{kind: KindSysexBegin, data: [3]byte{a, b}, n: 2} }
func SysexCont(a, b, c byte) Message { return Message{kind: KindSysexCont, data: [3]byte{a, b, c}, n: 3} }
func SysexEnd() Message { return Message{kind: KindSysexEnd} }
func SysexEnd1(a byte) Message { return Message{kind: KindSysexEnd1, data: [3]byte{a}, n: 1} }
func SysexEnd2(a, b byte) Message { return Message{kind: KindSysexEnd2, data: [3]byte{a, b}, n: 2} }

// FromMIDI converts a short (non SysEx) MIDI message
func FromMIDI(msg gomidi.Message) (Message, error) {
	if len(msg) == 0 {
		return Message{}, ErrLength
	}
	status := msg[0]
	want := StatusLen(status)
	if want == 0 {
		return Message{}, fmt.Errorf("%w: % X", ErrStatus, []byte(msg))
	}
	if len(msg) != want {
		return Message{}, fmt.Errorf("%w: status %02X wants %d bytes, got %d", ErrLength, status, want, len(msg))
	}
	m := Message{kind: statusKind(status), n: want}
	copy(m.data[:], msg)
	for _, b := range m.data[1:m.n] {
		if b >= 0x80 {
			return Message{}, fmt.Errorf("%w: data byte %02X", ErrStatus, b)
		}
	}
	return m, nil
}

// StatusLen is the total length of a short message starting with status,
// or 0 for SysEx framing and undefined status bytes.
func StatusLen(status byte) int {
	switch {
	case status < 0x80:
		return 0
	case status < 0xF0:
		switch status & 0xF0 {
		case 0xC0, 0xD0:
			return 2
		}
		return 3
	case status == 0xF1, status == 0xF3:
		return 2
	case status == 0xF2:
		return 3
	case status == 0xF6:
		return 1
	case status >= 0xF8:
		return 1
	}
	return 0
}

func statusKind(status byte) Kind {
	switch {
	case status < 0xF0:
		return KindChannel
	case status >= 0xF8:
		return KindRealtime
	}
	return KindCommon
}

func (m Message) Kind() Kind {
	return m.kind
}

// Data returns the message bytes
func (m Message) Data() []byte {
	out := make([]byte, m.n)
	copy(out, m.data[:m.n])
	return out
}

func (m Message) IsSysex() bool {
	return m.kind <= KindSysexEnd2
}

// Opens reports whether the message starts a new SysEx message
func (m Message) Opens() bool {
	switch m.kind {
	case KindSysexEmpty, KindSysexSingleByte, KindSysexBegin:
		return true
	}
	return false
}

// Terminal reports whether the message completes a SysEx message
func (m Message) Terminal() bool {
	switch m.kind {
	case KindSysexEmpty, KindSysexSingleByte, KindSysexEnd, KindSysexEnd1, KindSysexEnd2:
		return true
	}
	return false
}

// MIDI returns the gomidi form of a short message, nil for SysEx fragments
func (m Message) MIDI() gomidi.Message {
	if m.IsSysex() {
		return nil
	}
	return gomidi.Message(m.Data())
}

// Packet encodes the message for the given cable
func (m Message) Packet(cable CableNumber) Packet {
	d := m.data
	switch m.kind {
	case KindSysexEmpty:
		return New(cable, CINSysexEnd2, sysexStart, sysexEnd, 0)
	case KindSysexSingleByte:
		return New(cable, CINSysexEnd3, sysexStart, d[0], sysexEnd)
	case KindSysexBegin:
		return New(cable, CINSysexStart, sysexStart, d[0], d[1])
	case KindSysexCont:
		return New(cable, CINSysexStart, d[0], d[1], d[2])
	case KindSysexEnd:
		return New(cable, CINSysexEnd1, sysexEnd, 0, 0)
	case KindSysexEnd1:
		return New(cable, CINSysexEnd2, d[0], sysexEnd, 0)
	case KindSysexEnd2:
		return New(cable, CINSysexEnd3, d[0], d[1], sysexEnd)
	case KindChannel:
		return New(cable, CodeIndex(d[0]>>4), d[0], d[1], d[2])
	case KindRealtime:
		return New(cable, CINSingleByte, d[0], 0, 0)
	case KindCommon:
		switch m.n {
		case 1:
			return New(cable, CINSysexEnd1, d[0], 0, 0)
		case 2:
			return New(cable, CINCommon2, d[0], d[1], 0)
		}
		return New(cable, CINCommon3, d[0], d[1], d[2])
	}
	return Packet{}
}

func (m Message) String() string {
	if m.IsSysex() {
		return fmt.Sprintf("%s % X", m.kind, m.data[:m.n])
	}
	return m.MIDI().String()
}

// Decode turns a packet into a message. Packets that are not a valid
// USB-MIDI event return an error wrapping one of the sentinel errors.
func Decode(p Packet) (Message, error) {
	cin := p.CodeIndex()
	b0, b1, b2 := p[1], p[2], p[3]
	switch cin {
	case CINMisc, CINCableEvent:
		return Message{}, fmt.Errorf("%w: %X", ErrReserved, byte(cin))

	case CINCommon2:
		if b0 != 0xF1 && b0 != 0xF3 {
			return Message{}, fmt.Errorf("%w: %02X for cin %X", ErrStatus, b0, byte(cin))
		}
		return FromMIDI(gomidi.Message{b0, b1})

	case CINCommon3:
		if b0 != 0xF2 {
			return Message{}, fmt.Errorf("%w: %02X for cin %X", ErrStatus, b0, byte(cin))
		}
		return FromMIDI(gomidi.Message{b0, b1, b2})

	// SysEx framing is decided by the CIN and where F0/F7 sit; data bytes
	// pass through unchecked.
	case CINSysexStart:
		if b0 == sysexStart {
			return SysexBegin(b1, b2), nil
		}
		return SysexCont(b0, b1, b2), nil

	case CINSysexEnd1:
		switch b0 {
		case sysexEnd:
			return SysexEnd(), nil
		case 0xF6:
			return FromMIDI(gomidi.Message{b0})
		}

	case CINSysexEnd2:
		if b1 == sysexEnd {
			if b0 == sysexStart {
				return SysexEmpty(), nil
			}
			return SysexEnd1(b0), nil
		}

	case CINSysexEnd3:
		if b2 == sysexEnd {
			if b0 == sysexStart {
				return SysexSingleByte(b1), nil
			}
			return SysexEnd2(b0, b1), nil
		}

	case CINSingleByte:
		if b0 >= 0xF8 || b0 == 0xF6 {
			return FromMIDI(gomidi.Message{b0})
		}
		return Message{}, fmt.Errorf("%w: %02X for cin %X", ErrStatus, b0, byte(cin))

	default:
		if CodeIndex(b0>>4) != cin {
			return Message{}, fmt.Errorf("%w: %02X for cin %X", ErrStatus, b0, byte(cin))
		}
		return FromMIDI(gomidi.Message(p[1 : 1+payloadLen(cin)]))
	}
	return Message{}, fmt.Errorf("%w: %s", ErrFraming, p)
}
