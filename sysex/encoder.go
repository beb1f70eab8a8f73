package sysex

import (
	"iter"
	"slices"

	"go-midirouter/packet"
)

const windowSize = 3

// Sysex produces the USB-MIDI packets of one SysEx message built from a
// token list. Only Seq, Val and Buf tokens contribute bytes. A Sysex is
// drained once by a single consumer and cannot be restarted.
type Sysex struct {
	tokens []Token
	cable  packet.CableNumber

	// current token to produce from
	tokIdx int
	// current index inside token
	byteIdx int
	started bool

	window [windowSize]byte
	wlen   int
}

func New(tokens ...Token) *Sysex {
	return &Sysex{tokens: slices.Clone(tokens)}
}

// OnCable addresses the produced packets to cable
func (s *Sysex) OnCable(cable packet.CableNumber) *Sysex {
	s.cable = cable
	return s
}

// Next returns the next packet, or false once the message is complete.
func (s *Sysex) Next() (packet.Packet, bool) {
	m, ok := s.NextMessage()
	if !ok {
		return packet.Packet{}, false
	}
	return m.Packet(s.cable), true
}

// NextMessage is Next before packet encoding
func (s *Sysex) NextMessage() (packet.Message, bool) {
	if s.exhausted() {
		return packet.Message{}, false
	}
	start := !s.started
	s.started = true
	s.fill()

	if !start && s.wlen < windowSize {
		s.finish()
	}

	switch {
	case start && s.wlen == 0:
		s.finish()
		return packet.SysexEmpty(), true
	case start && s.wlen == 1:
		s.finish()
		return packet.SysexSingleByte(s.pop()), true
	case start:
		return packet.SysexBegin(s.pop(), s.pop()), true
	case s.wlen == 0:
		return packet.SysexEnd(), true
	case s.wlen == 1:
		return packet.SysexEnd1(s.pop()), true
	case s.wlen == 2:
		return packet.SysexEnd2(s.pop(), s.pop()), true
	}
	return packet.SysexCont(s.pop(), s.pop(), s.pop()), true
}

// Packets drains the encoder as an iterator
func (s *Sysex) Packets() iter.Seq[packet.Packet] {
	return func(yield func(packet.Packet) bool) {
		for {
			p, ok := s.Next()
			if !ok || !yield(p) {
				return
			}
		}
	}
}

// Collect drains the encoder into a slice
func (s *Sysex) Collect() []packet.Packet {
	return slices.Collect(s.Packets())
}

// fill walks the tokens until the window holds 3 bytes or the tokens run out
func (s *Sysex) fill() {
	for s.wlen < windowSize && s.tokIdx < len(s.tokens) {
		tok := &s.tokens[s.tokIdx]
		switch tok.kind {
		case KindSeq, KindBuf:
			if s.byteIdx < len(tok.bytes) {
				s.push(tok.bytes[s.byteIdx])
				s.byteIdx++
			}
			if s.byteIdx >= len(tok.bytes) {
				s.nextToken()
			}
		case KindVal:
			s.push(tok.val)
			s.nextToken()
		case KindSkip, KindCap:
			s.nextToken()
		}
	}
}

func (s *Sysex) nextToken() {
	s.tokIdx++
	s.byteIdx = 0
}

// finish moves the cursor past the token list; the next call reports exhaustion
func (s *Sysex) finish() {
	s.tokIdx = len(s.tokens) + 1
}

func (s *Sysex) exhausted() bool {
	return s.tokIdx > len(s.tokens)
}

func (s *Sysex) push(b byte) {
	s.window[s.wlen] = b
	s.wlen++
}

func (s *Sysex) pop() byte {
	b := s.window[0]
	copy(s.window[:], s.window[1:s.wlen])
	s.wlen--
	return b
}
