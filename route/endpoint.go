// Package route moves USB-MIDI packets between endpoints and feeds
// SysEx listeners.
package route

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go-midirouter/packet"
)

var ErrEndpoint = errors.New("bad endpoint")

// EndpointKind is the transport an endpoint lives on
type EndpointKind uint8

const (
	KindUSB EndpointKind = iota
	KindSerial
	KindApp
)

var kindNames = map[EndpointKind]string{
	KindUSB:    "usb",
	KindSerial: "serial",
	KindApp:    "app",
}

func (k EndpointKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind" + strconv.Itoa(int(k))
}

// AnyIndex in a forwarding rule stands for every index of a kind. As a
// target it means the index the packet came in on.
const AnyIndex uint8 = 0xFF

// Endpoint is one packet source or sink. USB endpoints are indexed by
// cable number.
type Endpoint struct {
	Kind  EndpointKind
	Index uint8
}

func USB(cable packet.CableNumber) Endpoint { return Endpoint{KindUSB, uint8(cable)} }
func Serial(n uint8) Endpoint { return Endpoint{KindSerial, n} }
func App(n uint8) Endpoint { return Endpoint{KindApp, n} }
func AnyOf(kind EndpointKind) Endpoint { return Endpoint{kind, AnyIndex} }

func (e Endpoint) String() string {
	if e.Index == AnyIndex {
		return e.Kind.String() + ":*"
	}
	return e.Kind.String() + ":" + strconv.Itoa(int(e.Index))
}

// Wildcard reports whether e matches every index of its kind
func (e Endpoint) Wildcard() bool {
	return e.Index == AnyIndex
}

// ParseEndpoint reads "usb:3", "serial:0", "app:1" or "usb:*". A bare
// kind means index 0.
func ParseEndpoint(s string) (Endpoint, error) {
	name, idx, hasIdx := strings.Cut(strings.TrimSpace(strings.ToLower(s)), ":")
	var e Endpoint
	found := false
	for k, n := range kindNames {
		if n == name {
			e.Kind, found = k, true
		}
	}
	if !found {
		return e, fmt.Errorf("%w: %q", ErrEndpoint, s)
	}
	if !hasIdx {
		return e, nil
	}
	if idx == "*" {
		e.Index = AnyIndex
		return e, nil
	}
	n, err := strconv.ParseUint(idx, 10, 8)
	if err != nil || n >= uint64(AnyIndex) {
		return e, fmt.Errorf("%w: index in %q", ErrEndpoint, s)
	}
	if e.Kind == KindUSB && n > uint64(packet.CableMax) {
		return e, fmt.Errorf("%w: cable %d out of range", ErrEndpoint, n)
	}
	e.Index = uint8(n)
	return e, nil
}

// Direction says whether a packet enters or leaves the router
type Direction uint8

const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) String() string {
	if d == Incoming {
		return "in"
	}
	return "out"
}

// Event is one packet crossing an endpoint
type Event struct {
	Dir      Direction
	Endpoint Endpoint
	Packet   packet.Packet
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %s", e.Dir, e.Endpoint, e.Packet)
}
