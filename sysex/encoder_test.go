package sysex_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midirouter/packet"
	"go-midirouter/sysex"
)

func decodeAll(t *testing.T, ps []packet.Packet) []packet.Message {
	t.Helper()
	out := make([]packet.Message, len(ps))
	for i, p := range ps {
		m, err := packet.Decode(p)
		require.NoError(t, err, p.String())
		out[i] = m
	}
	return out
}

func seqOf(n int) []byte {
	bs := make([]byte, n)
	for i := range bs {
		bs[i] = byte(i + 1)
	}
	return bs
}

func TestEncoderWindowing(t *testing.T) {
	cases := []struct {
		n    int
		want []packet.Message
	}{
		{0, []packet.Message{packet.SysexEmpty()}},
		{1, []packet.Message{packet.SysexSingleByte(1)}},
		{2, []packet.Message{packet.SysexBegin(1, 2), packet.SysexEnd()}},
		{3, []packet.Message{packet.SysexBegin(1, 2), packet.SysexEnd1(3)}},
		{4, []packet.Message{packet.SysexBegin(1, 2), packet.SysexEnd2(3, 4)}},
		{5, []packet.Message{packet.SysexBegin(1, 2), packet.SysexCont(3, 4, 5), packet.SysexEnd()}},
		{6, []packet.Message{packet.SysexBegin(1, 2), packet.SysexCont(3, 4, 5), packet.SysexEnd1(6)}},
		{7, []packet.Message{packet.SysexBegin(1, 2), packet.SysexCont(3, 4, 5), packet.SysexEnd2(6, 7)}},
		{8, []packet.Message{packet.SysexBegin(1, 2), packet.SysexCont(3, 4, 5), packet.SysexCont(6, 7, 8), packet.SysexEnd()}},
	}
	for _, c := range cases {
		got := decodeAll(t, sysex.New(sysex.Seq(seqOf(c.n)...)).Collect())
		assert.Equal(t, c.want, got, "payload of %d bytes", c.n)
	}
}

func TestEncoderSplitsAcrossTokens(t *testing.T) {
	s := sysex.New(
		sysex.Val(0x00),
		sysex.Seq(0x20, 0x29),
		sysex.Val(0x02),
		sysex.Seq(0x0C, 0x00),
		sysex.Val(0x7F),
	)
	got := decodeAll(t, s.Collect())
	assert.Equal(t, []packet.Message{
		packet.SysexBegin(0x00, 0x20),
		packet.SysexCont(0x29, 0x02, 0x0C),
		packet.SysexEnd2(0x00, 0x7F),
	}, got)
}

func TestEncoderExhaustionIsIdempotent(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5} {
		s := sysex.New(sysex.Seq(seqOf(n)...))
		for range s.Packets() {
		}
		for i := 0; i < 3; i++ {
			_, ok := s.Next()
			assert.False(t, ok, "payload of %d bytes, pull %d", n, i)
		}
	}
}

func TestEncoderEmptyTokenList(t *testing.T) {
	s := sysex.New()
	p, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, packet.SysexEmpty().Packet(0), p)
	_, ok = s.Next()
	assert.False(t, ok)
}

func TestEncoderSkipAndCapEmitNothing(t *testing.T) {
	s := sysex.New(
		sysex.Skip(4),
		sysex.Val(0x01),
		sysex.Cap(sysex.DeviceID),
		sysex.Cap(sysex.Dump(8)),
		sysex.Val(0x02),
		sysex.Skip(1),
	)
	got := decodeAll(t, s.Collect())
	assert.Equal(t, []packet.Message{packet.SysexBegin(0x01, 0x02), packet.SysexEnd()}, got)
}

func TestEncoderEmitsBuf(t *testing.T) {
	s := sysex.New(sysex.Val(0x10), sysex.Buf([]byte{0x20, 0x30, 0x40}))
	got := decodeAll(t, s.Collect())
	assert.Equal(t, []packet.Message{packet.SysexBegin(0x10, 0x20), packet.SysexEnd2(0x30, 0x40)}, got)
}

func TestEncoderCable(t *testing.T) {
	for _, p := range sysex.New(sysex.Seq(1, 2, 3, 4, 5)).OnCable(7).Collect() {
		assert.Equal(t, packet.CableNumber(7), p.Cable())
	}
}

func TestBytes(t *testing.T) {
	tokens := []sysex.Token{sysex.Val(1), sysex.Skip(2), sysex.Seq(2, 3), sysex.Cap(sysex.ValueU7), sysex.Buf([]byte{4})}
	assert.Equal(t, []byte{1, 2, 3, 4}, sysex.Bytes(tokens))
}
