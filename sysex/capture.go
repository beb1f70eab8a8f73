package sysex

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Capture is one captured field
type Capture struct {
	Tag   Tag
	Bytes []byte
}

// CaptureBuffer maps tags to captured bytes, ordered by tag
type CaptureBuffer struct {
	entries []Capture
}

func (c *CaptureBuffer) find(tag Tag) (int, bool) {
	return slices.BinarySearchFunc(c.entries, tag, func(e Capture, t Tag) int {
		return e.Tag.Compare(t)
	})
}

// append records one byte under tag, allocating the buffer on first use
func (c *CaptureBuffer) append(tag Tag, b byte) {
	i, ok := c.find(tag)
	if !ok {
		c.entries = slices.Insert(c.entries, i, Capture{Tag: tag, Bytes: make([]byte, 0, tag.Size())})
	}
	c.entries[i].Bytes = append(c.entries[i].Bytes, b)
}

func (c *CaptureBuffer) clear() {
	c.entries = c.entries[:0]
}

// Clone returns an independent copy
func (c CaptureBuffer) Clone() CaptureBuffer {
	out := CaptureBuffer{entries: make([]Capture, len(c.entries))}
	for i, e := range c.entries {
		out.entries[i] = Capture{Tag: e.Tag, Bytes: slices.Clone(e.Bytes)}
	}
	return out
}

func (c CaptureBuffer) Len() int {
	return len(c.entries)
}

func (c CaptureBuffer) Get(tag Tag) ([]byte, bool) {
	i, ok := c.find(tag)
	if !ok {
		return nil, false
	}
	return c.entries[i].Bytes, true
}

// Byte returns the first byte captured under a scalar tag
func (c CaptureBuffer) Byte(tag Tag) (byte, bool) {
	bs, ok := c.Get(tag)
	if !ok || len(bs) == 0 {
		return 0, false
	}
	return bs[0], true
}

// Nibbles reassembles a value split into a high and a low 4 bit capture
func (c CaptureBuffer) Nibbles(msb, lsb Tag) (byte, bool) {
	hi, ok := c.Byte(msb)
	if !ok {
		return 0, false
	}
	lo, ok := c.Byte(lsb)
	if !ok {
		return 0, false
	}
	return hi&0x0F<<4 | lo&0x0F, true
}

// Tags lists the captured tags in order
func (c CaptureBuffer) Tags() []Tag {
	out := make([]Tag, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Tag
	}
	return out
}

// All iterates the captures in tag order
func (c CaptureBuffer) All() iter.Seq2[Tag, []byte] {
	return func(yield func(Tag, []byte) bool) {
		for _, e := range c.entries {
			if !yield(e.Tag, e.Bytes) {
				return
			}
		}
	}
}

func (c CaptureBuffer) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range c.entries {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s=% X", e.Tag, e.Bytes)
	}
	sb.WriteByte('}')
	return sb.String()
}
