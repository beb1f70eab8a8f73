package midi

import (
	"fmt"
	"sync/atomic"

	"go-midirouter/debug"
	"go-midirouter/packet"
	"go-midirouter/sysex"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

var ledSendCount uint64

// Launchpad X SysEx header (after F0): Novation, Launchpad X
var launchpadHeader = sysex.Seq(0x00, 0x20, 0x29, 0x02, 0x0C)

const (
	lpCmdLayout     = 0x00
	lpCmdLighting   = 0x03
	lpCmdBrightness = 0x08
	lpCmdFeedback   = 0x0A

	// LayoutProgrammer is the layout that reports raw pad notes
	LayoutProgrammer byte = 0x7F
)

// Launchpad X palette colors
const (
	ColorOff    uint8 = 0
	ColorDim    uint8 = 1
	ColorRed    uint8 = 5
	ColorOrange uint8 = 9
	ColorGreen  uint8 = 13
	ColorBlue   uint8 = 45
	ColorYellow uint8 = 69
	ColorWhite  uint8 = 127
)

// Channel modes for SetLED (use as 'mode' parameter)
const (
	ChannelStatic uint8 = 0 // solid color
	ChannelFlash  uint8 = 1 // flashing A/B alternating
	ChannelPulse  uint8 = 2 // pulsing (fades)
)

// LEDUpdate is one pad color for SetLEDBatch
type LEDUpdate struct {
	Row, Col int
	Color    uint8 // palette index 0-127
}

// LaunchpadController handles a Novation Launchpad X
type LaunchpadController struct {
	*PortController
}

// NewLaunchpadController opens the ports and switches to programmer mode
func NewLaunchpadController(id string, cable packet.CableNumber, inPort drivers.In, outPort drivers.Out) (*LaunchpadController, error) {
	pc, err := NewPortController(id, cable, inPort, outPort)
	if err != nil {
		return nil, err
	}
	lp := &LaunchpadController{PortController: pc}
	if err := lp.setup(); err != nil {
		pc.Close()
		return nil, fmt.Errorf("launchpad setup: %w", err)
	}
	return lp, nil
}

func (lp *LaunchpadController) setup() error {
	// F0 00 20 29 02 0C 00 7F F7
	if err := lp.SendSysex(LaunchpadLayout(LayoutProgrammer)); err != nil {
		return err
	}
	// F0 00 20 29 02 0C 08 <brightness> F7
	if err := lp.SendSysex(LaunchpadBrightness(0x7F)); err != nil {
		return err
	}
	// F0 00 20 29 02 0C 0A 01 01 F7
	return lp.SendSysex(LaunchpadFeedback(true, true))
}

func (lp *LaunchpadController) Type() ControllerType {
	return ControllerLaunchpad
}

// SetLED lights one pad with a palette color
func (lp *LaunchpadController) SetLED(row, col int, color uint8, mode uint8) error {
	m, err := packet.FromMIDI(gomidi.NoteOn(mode, rowColToNote(row, col), color))
	if err != nil {
		return err
	}
	atomic.AddUint64(&ledSendCount, 1)
	return lp.Send(m.Packet(lp.cable))
}

// SetLEDBatch lights many pads with one lighting SysEx
func (lp *LaunchpadController) SetLEDBatch(updates []LEDUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if err := lp.SendSysex(LaunchpadLighting(updates)); err != nil {
		return err
	}

	atomic.AddUint64(&ledSendCount, uint64(len(updates)))

	count := atomic.LoadUint64(&ledSendCount)
	if count%100 < uint64(len(updates)) {
		debug.Log("lp-send", "batch count=%d (this batch=%d)", count, len(updates))
	}
	return nil
}

func (lp *LaunchpadController) Close() error {
	// Clear all LEDs on close via batch
	var updates []LEDUpdate
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			if row == 8 && col == 8 {
				continue // no LED at 8,8
			}
			updates = append(updates, LEDUpdate{Row: row, Col: col})
		}
	}
	if err := lp.SetLEDBatch(updates); err != nil {
		debug.Log("lp-send", "clear on close: %v", err)
	}
	return lp.PortController.Close()
}

// LaunchpadLayout selects a layout
func LaunchpadLayout(layout byte) *sysex.Sysex {
	return sysex.New(launchpadHeader, sysex.Val(lpCmdLayout), sysex.Val(layout))
}

// LaunchpadLayoutQuery asks for the current layout
func LaunchpadLayoutQuery() *sysex.Sysex {
	return sysex.New(launchpadHeader, sysex.Val(lpCmdLayout))
}

// LaunchpadLayoutReply matches the answer to LaunchpadLayoutQuery
func LaunchpadLayoutReply() []sysex.Token {
	return []sysex.Token{launchpadHeader, sysex.Val(lpCmdLayout), sysex.Cap(sysex.ValueU7)}
}

func LaunchpadBrightness(level byte) *sysex.Sysex {
	return sysex.New(launchpadHeader, sysex.Val(lpCmdBrightness), sysex.Val(level&0x7F))
}

// LaunchpadFeedback enables LED feedback for internal and external input
func LaunchpadFeedback(internal, external bool) *sysex.Sysex {
	return sysex.New(launchpadHeader, sysex.Val(lpCmdFeedback), sysex.Val(boolByte(internal)), sysex.Val(boolByte(external)))
}

// LaunchpadLighting builds F0 00 20 29 02 0C 03 (<type> <index> <color>)... F7
func LaunchpadLighting(updates []LEDUpdate) *sysex.Sysex {
	specs := make([]byte, 0, 3*len(updates))
	for _, u := range updates {
		specs = append(specs, ChannelStatic, rowColToNote(u.Row, u.Col), u.Color&0x7F)
	}
	return sysex.New(launchpadHeader, sysex.Val(lpCmdLighting), sysex.Buf(specs))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Launchpad X note mapping
// 8x8 Grid:  Row 0 (bottom) = notes 11-18, Row 7 = notes 81-88
// Side col:  Col 8 (right side scene buttons) = notes 19, 29, 39, 49, 59, 69, 79, 89
// Top row:   Row 8 (top control row) = CC 91-98

func rowColToNote(row, col int) uint8 {
	// Top row uses CC, but for LED control we use notes 91-98
	if row == 8 {
		return uint8(91 + col)
	}
	return uint8((row+1)*10 + col + 1)
}

func noteToRowCol(note uint8) (row, col int) {
	// Top row notes (91-98)
	if note >= 91 && note <= 98 {
		return 8, int(note - 91)
	}
	row = int(note/10) - 1
	col = int(note%10) - 1
	// Accept 8x8 grid (rows 0-7, cols 0-7) plus side column (col 8)
	if row < 0 || row > 7 || col < 0 || col > 8 {
		return -1, -1
	}
	return row, col
}

// ccToRowCol converts CC messages to row/col (for top row buttons)
func ccToRowCol(cc uint8) (row, col int) {
	if cc >= 91 && cc <= 98 {
		return 8, int(cc - 91)
	}
	return -1, -1
}

// PadAt reports which pad a Launchpad packet was pressed on
func PadAt(p packet.Packet) (row, col int, ok bool) {
	m, err := packet.Decode(p)
	if err != nil || m.IsSysex() {
		return -1, -1, false
	}
	msg := m.MIDI()
	var channel, note, velocity, cc, value uint8
	switch {
	case msg.GetNoteOn(&channel, &note, &velocity) && velocity > 0:
		row, col = noteToRowCol(note)
	case msg.GetControlChange(&channel, &cc, &value) && value > 0:
		row, col = ccToRowCol(cc)
	default:
		return -1, -1, false
	}
	return row, col, row >= 0
}
