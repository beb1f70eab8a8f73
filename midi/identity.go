package midi

import (
	"errors"
	"fmt"

	"go-midirouter/sysex"
)

const (
	universalNonRealtime = 0x7E
	subGeneralInfo       = 0x06
	identityRequest      = 0x01
	identityReply        = 0x02

	// AllDevices addresses every device on the bus
	AllDevices byte = 0x7F
)

var ErrIncompleteIdentity = errors.New("incomplete identity reply")

// Identity is a device's answer to a universal device inquiry
type Identity struct {
	DeviceID     byte
	Manufacturer []byte // 1 byte, or 3 bytes starting with 00
	Family       uint16
	Member       uint16
	Version      [4]byte
}

func (id Identity) String() string {
	return fmt.Sprintf("dev=%02X mfr=% X family=%04X member=%04X version=%d.%d.%d.%d",
		id.DeviceID, id.Manufacturer, id.Family, id.Member,
		id.Version[0], id.Version[1], id.Version[2], id.Version[3])
}

// IdentityRequest builds a universal device inquiry
func IdentityRequest(device byte) []sysex.Token {
	return []sysex.Token{
		sysex.Val(universalNonRealtime),
		sysex.Val(device),
		sysex.Seq(subGeneralInfo, identityRequest),
	}
}

// IdentityReply matches replies from manufacturers with 3 byte IDs
func IdentityReply() []sysex.Token {
	return []sysex.Token{
		sysex.Val(universalNonRealtime),
		sysex.Cap(sysex.DeviceID),
		sysex.Seq(subGeneralInfo, identityReply),
		sysex.Cap(sysex.Dump(3)),
		sysex.Cap(sysex.Dump(8)),
	}
}

// IdentityReplyShort matches replies from manufacturers with 1 byte IDs
func IdentityReplyShort() []sysex.Token {
	return []sysex.Token{
		sysex.Val(universalNonRealtime),
		sysex.Cap(sysex.DeviceID),
		sysex.Seq(subGeneralInfo, identityReply),
		sysex.Cap(sysex.Dump(1)),
		sysex.Cap(sysex.Dump(8)),
	}
}

// ParseIdentity reads the captures of either identity reply pattern.
// A reply cut short still matches, so every field is checked for length.
func ParseIdentity(c sysex.CaptureBuffer) (Identity, error) {
	var id Identity
	dev, ok := c.Byte(sysex.DeviceID)
	if !ok {
		return id, fmt.Errorf("%w: no device id", ErrIncompleteIdentity)
	}
	id.DeviceID = dev

	if mfr, ok := c.Get(sysex.Dump(3)); ok {
		if len(mfr) != 3 || mfr[0] != 0x00 {
			return id, fmt.Errorf("%w: manufacturer % X", ErrIncompleteIdentity, mfr)
		}
		id.Manufacturer = mfr
	} else if mfr, ok := c.Get(sysex.Dump(1)); ok && len(mfr) == 1 && mfr[0] != 0x00 {
		id.Manufacturer = mfr
	} else {
		return id, fmt.Errorf("%w: no manufacturer", ErrIncompleteIdentity)
	}

	rest, ok := c.Get(sysex.Dump(8))
	if !ok || len(rest) != 8 {
		return id, fmt.Errorf("%w: %d of 8 version bytes", ErrIncompleteIdentity, len(rest))
	}
	id.Family = uint16(rest[0]) | uint16(rest[1])<<7
	id.Member = uint16(rest[2]) | uint16(rest[3])<<7
	copy(id.Version[:], rest[4:])
	return id, nil
}
