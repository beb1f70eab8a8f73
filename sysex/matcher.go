package sysex

import (
	"slices"

	"go-midirouter/packet"
)

type matchState uint8

const (
	stateIdle     matchState = iota // between messages
	stateMatching                   // every byte so far agreed with the pattern
	stateFailed                     // mismatch; waiting for the next message
)

// Matcher recognizes SysEx messages that follow a pattern. It is fed one
// packet at a time and returns the captured fields when a whole message
// matched. A mismatch only spoils the current message; the next message
// start resets the matcher.
//
// A Matcher does no locking. Callers sharing one across goroutines must
// hold their own lock around each Match call.
type Matcher struct {
	pattern []Token
	state   matchState

	// current token to match against; len(pattern) or more means failed
	tokIdx int
	// current index inside token
	byteIdx  int
	captured CaptureBuffer
}

func NewMatcher(pattern ...Token) *Matcher {
	return &Matcher{pattern: slices.Clone(pattern)}
}

// Pattern returns a copy of the matcher's pattern
func (m *Matcher) Pattern() []Token {
	return slices.Clone(m.pattern)
}

// Match feeds one packet. Packets that do not decode are ignored.
func (m *Matcher) Match(p packet.Packet) (CaptureBuffer, bool) {
	msg, err := packet.Decode(p)
	if err != nil {
		return CaptureBuffer{}, false
	}
	return m.MatchMessage(msg)
}

// MatchMessage feeds one decoded message
func (m *Matcher) MatchMessage(msg packet.Message) (CaptureBuffer, bool) {
	data := msg.Data()
	switch msg.Kind() {
	case packet.KindSysexEmpty:
		// empty SysEx is accepted whatever the pattern
		m.begin()
	case packet.KindSysexSingleByte, packet.KindSysexBegin:
		m.begin()
		m.advanceAll(data)
	case packet.KindSysexCont, packet.KindSysexEnd, packet.KindSysexEnd1, packet.KindSysexEnd2:
		m.advanceAll(data)
	default:
		m.fail()
	}

	if !msg.Terminal() {
		return CaptureBuffer{}, false
	}
	matched := m.state == stateMatching
	m.state = stateIdle
	if !matched {
		return CaptureBuffer{}, false
	}
	return m.captured.Clone(), true
}

// Reset abandons the message in progress
func (m *Matcher) Reset() {
	m.state = stateIdle
	m.tokIdx = 0
	m.byteIdx = 0
	m.captured.clear()
}

func (m *Matcher) begin() {
	m.tokIdx = 0
	m.byteIdx = 0
	m.captured.clear()
	m.state = stateMatching
}

func (m *Matcher) advanceAll(data []byte) {
	for _, b := range data {
		if !m.advance(b) {
			return
		}
	}
}

// advance returns true if b matched the pattern or was captured, false if
// it diverges. Once it returns false every later call also returns false
// until a new message begins.
func (m *Matcher) advance(b byte) bool {
	if m.state != stateMatching {
		return false
	}
	for m.tokIdx < len(m.pattern) && m.pattern[m.tokIdx].Width() == 0 {
		m.tokIdx++
	}
	// fast exit if the match previously failed
	if m.tokIdx >= len(m.pattern) {
		return m.fail()
	}

	tok := &m.pattern[m.tokIdx]
	switch tok.kind {
	case KindSeq, KindVal:
		if tok.at(m.byteIdx) != b {
			return m.fail()
		}
	case KindSkip, KindBuf:
	case KindCap:
		m.captured.append(tok.tag, b)
	}

	m.byteIdx++
	if m.byteIdx >= tok.Width() {
		m.tokIdx++
		m.byteIdx = 0
	}
	return true
}

func (m *Matcher) fail() bool {
	m.tokIdx = len(m.pattern)
	if m.state == stateMatching {
		m.state = stateFailed
	}
	return false
}
