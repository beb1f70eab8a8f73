// Package sysex generates and recognizes System Exclusive messages from
// declarative token patterns.
//
// The same pattern serves both directions: a Sysex encoder turns it into
// USB-MIDI packets, and a Matcher checks an incoming packet stream against
// it one byte at a time, capturing tagged fields as they stream in.
package sysex

import (
	"cmp"
	"fmt"
)

// TagKind is the semantic field a Tag names
type TagKind uint8

const (
	TagChannel TagKind = iota
	TagVelocity
	TagDeviceID
	TagParamID   // parameter code (cutoff, delay, etc.)
	TagControlID // control code (knob, pad, etc.)
	TagValueU7
	TagMsbValueU4
	TagLsbValueU4
	TagDump // raw data
)

var tagNames = [...]string{
	TagChannel:    "channel",
	TagVelocity:   "velocity",
	TagDeviceID:   "device",
	TagParamID:    "param",
	TagControlID:  "control",
	TagValueU7:    "value",
	TagMsbValueU4: "msb",
	TagLsbValueU4: "lsb",
	TagDump:       "dump",
}

// Tag labels a captured field. Tags are comparable and totally ordered:
// by kind, then by dump width.
type Tag struct {
	kind TagKind
	n    int
}

var (
	Channel    = Tag{kind: TagChannel}
	Velocity   = Tag{kind: TagVelocity}
	DeviceID   = Tag{kind: TagDeviceID}
	ParamID    = Tag{kind: TagParamID}
	ControlID  = Tag{kind: TagControlID}
	ValueU7    = Tag{kind: TagValueU7}
	MsbValueU4 = Tag{kind: TagMsbValueU4}
	LsbValueU4 = Tag{kind: TagLsbValueU4}
)

// Dump is a raw capture of n consecutive bytes
func Dump(n int) Tag {
	if n < 0 {
		n = 0
	}
	return Tag{kind: TagDump, n: n}
}

func (t Tag) Kind() TagKind {
	return t.kind
}

// Size is the number of bytes captured under the tag
func (t Tag) Size() int {
	if t.kind == TagDump {
		return t.n
	}
	return 1
}

func (t Tag) Compare(o Tag) int {
	if c := cmp.Compare(t.kind, o.kind); c != 0 {
		return c
	}
	return cmp.Compare(t.n, o.n)
}

func (t Tag) Less(o Tag) bool {
	return t.Compare(o) < 0
}

func (t Tag) String() string {
	if t.kind == TagDump {
		return fmt.Sprintf("dump:%d", t.n)
	}
	if int(t.kind) < len(tagNames) {
		return tagNames[t.kind]
	}
	return fmt.Sprintf("tag(%d)", t.kind)
}
