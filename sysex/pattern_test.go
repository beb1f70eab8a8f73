package sysex_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midirouter/sysex"
)

func TestParsePattern(t *testing.T) {
	tokens, err := sysex.ParsePattern("7e cap:device 06.02 dump:3 skip:2 buf:0A0b cap:value")
	require.NoError(t, err)
	require.Len(t, tokens, 7)

	assert.Equal(t, sysex.KindVal, tokens[0].Kind())
	assert.Equal(t, []byte{0x7E}, tokens[0].Emitted())
	tag, ok := tokens[1].Tag()
	assert.True(t, ok)
	assert.Equal(t, sysex.DeviceID, tag)
	assert.Equal(t, []byte{0x06, 0x02}, tokens[2].Emitted())
	tag, _ = tokens[3].Tag()
	assert.Equal(t, sysex.Dump(3), tag)
	assert.Equal(t, 2, tokens[4].Width())
	assert.Equal(t, sysex.KindBuf, tokens[5].Kind())
	assert.Equal(t, []byte{0x0A, 0x0B}, tokens[5].Emitted())

	assert.Equal(t, "7E cap:device 06.02 dump:3 skip:2 buf:0A0B cap:value", sysex.FormatPattern(tokens))
}

func TestFormatParseRoundTrip(t *testing.T) {
	text := "00.20.29 02. 0C cap:msb cap:lsb skip:0 dump:12"
	tokens, err := sysex.ParsePattern(text)
	require.NoError(t, err)
	again, err := sysex.ParsePattern(sysex.FormatPattern(tokens))
	require.NoError(t, err)
	assert.Equal(t, tokens, again)
}

func TestParsePatternErrors(t *testing.T) {
	for _, text := range []string{
		"GG",
		"100",
		"skip:-1",
		"skip:x",
		"cap:dump",
		"cap:nope",
		"buf:0",
		"what:1",
	} {
		_, err := sysex.ParsePattern(text)
		assert.ErrorIs(t, err, sysex.ErrPattern, text)
	}
}

func TestTagOrder(t *testing.T) {
	assert.True(t, sysex.Channel.Less(sysex.Velocity))
	assert.True(t, sysex.LsbValueU4.Less(sysex.Dump(0)))
	assert.True(t, sysex.Dump(3).Less(sysex.Dump(8)))
	assert.Equal(t, 0, sysex.Dump(4).Compare(sysex.Dump(4)))
	assert.Equal(t, 1, sysex.ValueU7.Size())
	assert.Equal(t, 16, sysex.Dump(16).Size())
}

func TestBind(t *testing.T) {
	pattern := []sysex.Token{sysex.Val(0x42), sysex.Cap(sysex.ParamID), sysex.Cap(sysex.Dump(3)), sysex.Cap(sysex.ValueU7)}

	m := sysex.NewMatcher(pattern...)
	var captured sysex.CaptureBuffer
	var ok bool
	for p := range sysex.New(sysex.Seq(0x42, 0x10, 0x01, 0x02, 0x03, 0x7F)).Packets() {
		if c, hit := m.Match(p); hit {
			captured, ok = c, true
		}
	}
	require.True(t, ok)

	bound := sysex.Bind(pattern, captured)
	assert.Equal(t, []byte{0x42, 0x10, 0x01, 0x02, 0x03, 0x7F}, sysex.Bytes(bound))
}

func TestBindPadsAndKeepsMissing(t *testing.T) {
	pattern := []sysex.Token{sysex.Cap(sysex.Dump(3)), sysex.Cap(sysex.Channel)}
	m := sysex.NewMatcher(sysex.Cap(sysex.Dump(3)))
	c, ok := m.Match(sysex.New(sysex.Val(9)).Collect()[0])
	require.True(t, ok)

	bound := sysex.Bind(pattern, c)
	assert.Equal(t, []byte{9, 0, 0}, sysex.Bytes(bound))
	assert.Equal(t, sysex.KindCap, bound[1].Kind())
}

func TestCaptureBufferString(t *testing.T) {
	m := sysex.NewMatcher(sysex.Cap(sysex.Dump(2)), sysex.Cap(sysex.DeviceID))
	var c sysex.CaptureBuffer
	for p := range sysex.New(sysex.Seq(0x01, 0x02, 0x10)).Packets() {
		if got, ok := m.Match(p); ok {
			c = got
		}
	}
	assert.Equal(t, "{device=10 dump:2=01 02}", c.String())
	var tags []sysex.Tag
	for tag := range c.All() {
		tags = append(tags, tag)
	}
	assert.Equal(t, []sysex.Tag{sysex.DeviceID, sysex.Dump(2)}, tags)
}
