package serial

import (
	"fmt"
	"io"
	"sync"

	"go-midirouter/packet"
)

// Encode returns the DIN wire bytes of a packet, or an error when the
// packet does not decode
func Encode(p packet.Packet) ([]byte, error) {
	if _, err := packet.Decode(p); err != nil {
		return nil, err
	}
	return p.Payload(), nil
}

// Writer writes packets to a DIN stream, omitting repeated channel
// status bytes
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	running byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WritePacket writes one packet
func (w *Writer) WritePacket(p packet.Packet) error {
	data, err := Encode(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if status := data[0]; status >= 0x80 && status < 0xF8 {
		switch {
		case status >= 0xF0:
			w.running = 0
		case status == w.running:
			data = data[1:]
		default:
			w.running = status
		}
	}
	_, err = w.w.Write(data)
	return err
}

// Flush forgets the running status so the next message is sent in full
func (w *Writer) Flush() {
	w.mu.Lock()
	w.running = 0
	w.mu.Unlock()
}
