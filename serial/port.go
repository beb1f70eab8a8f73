package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go-midirouter/debug"
	"go-midirouter/packet"

	goserial "go.bug.st/serial"
)

// DefaultBaud is the DIN MIDI line rate
const DefaultBaud = 31250

const readTimeout = 100 * time.Millisecond

// Port is a DIN MIDI endpoint on a serial device
type Port struct {
	name   string
	port   goserial.Port
	cable  packet.CableNumber
	writer *Writer
}

// List returns the names of the serial devices on this machine
func List() ([]string, error) {
	return goserial.GetPortsList()
}

// Open opens the named serial device. Baud 0 means DefaultBaud.
func Open(name string, baud int, cable packet.CableNumber) (*Port, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &goserial.Mode{BaudRate: baud}
	p, err := goserial.Open(name, mode)
	if err != nil {
		debug.Logger().Error("serial: failed to open port", "device", name, "baud", baud, "err", err)
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	debug.Logger().Info("serial: port opened", "device", name, "baud", baud)
	return &Port{name: name, port: p, cable: cable, writer: NewWriter(p)}, nil
}

func (p *Port) Name() string {
	return p.name
}

func (p *Port) Cable() packet.CableNumber {
	return p.cable
}

// ReadPackets reads until ctx is done or the device fails, calling fn
// for every parsed packet
func (p *Port) ReadPackets(ctx context.Context, fn func(packet.Packet)) error {
	return readPackets(ctx, p.port, NewParser(p.cable), fn)
}

func readPackets(ctx context.Context, r io.Reader, parser *Parser, fn func(packet.Packet)) error {
	buf := make([]byte, 128)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if pkt, ok := parser.Feed(b); ok {
				fn(pkt)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("serial read: %w", err)
		}
	}
}

// Send writes one packet to the device
func (p *Port) Send(pkt packet.Packet) error {
	if err := p.writer.WritePacket(pkt); err != nil {
		debug.Logger().Error("serial: write error", "device", p.name, "err", err)
		return err
	}
	return nil
}

func (p *Port) Close() error {
	debug.Logger().Info("serial: closing port", "device", p.name)
	return p.port.Close()
}
