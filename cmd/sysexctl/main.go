package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-midirouter/config"
	"go-midirouter/debug"
	"go-midirouter/midi"
	"go-midirouter/packet"
	"go-midirouter/route"
	"go-midirouter/serial"
	"go-midirouter/sysex"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	if os.Getenv("SYSEXCTL_DEBUG") != "" {
		debug.Init(os.Stderr, slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "send":
		err = sendPattern(args)
	case "inquiry":
		err = inquiry(ctx, args)
	case "listen":
		err = listen(ctx, args)
	case "launchpad":
		err = launchpad(ctx, args)
	case "serial":
		err = monitorSerial(ctx, args)
	case "config":
		err = configCmd(args)
	default:
		usage()
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("sysexctl - SysEx tools")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                        - List MIDI and serial ports")
	fmt.Println("  send <port> <pattern>       - Send a SysEx built from a pattern")
	fmt.Println("  inquiry <port>              - Ask a device for its identity")
	fmt.Println("  listen <port> <pattern>     - Print every SysEx matching a pattern")
	fmt.Println("  launchpad [port]            - Query layout and light the diagonal")
	fmt.Println("  serial <device> [baud]      - Monitor a DIN MIDI serial port")
	fmt.Println("  config init                 - Write the default config")
	fmt.Println("  config add <port> [type]    - Add a controller to the config")
	fmt.Println("")
	fmt.Println("Patterns are space separated: F0/F7 are implied, e.g.")
	fmt.Println("  7E 7F 06.01                 identity request")
	fmt.Println("  7E cap:device 06.02 dump:3  identity reply prefix")
	fmt.Println("")
	fmt.Println("Set SYSEXCTL_DEBUG=1 to log to stderr.")
}

var errUsage = errors.New("missing arguments, run without arguments for help")

func listPorts() error {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! The MIDI driver is hung.")
	}

	fmt.Println("\n=== Serial Ports ===")
	names, err := serial.List()
	if err != nil {
		return err
	}
	for i, name := range names {
		fmt.Printf("  %d: %s\n", i, name)
	}
	return nil
}

// findPorts returns the first input and output whose names contain
// fragment, ignoring case
func findPorts(fragment string) (drivers.In, drivers.Out) {
	fragment = strings.ToLower(fragment)
	var in drivers.In
	var out drivers.Out
	for _, p := range gomidi.GetInPorts() {
		if strings.Contains(strings.ToLower(p.String()), fragment) {
			in = p
			break
		}
	}
	for _, p := range gomidi.GetOutPorts() {
		if strings.Contains(strings.ToLower(p.String()), fragment) {
			out = p
			break
		}
	}
	return in, out
}

func openPort(fragment string) (*midi.PortController, error) {
	in, out := findPorts(fragment)
	switch {
	case in == nil && out == nil:
		return nil, fmt.Errorf("no MIDI port matching %q", fragment)
	case out != nil:
		fmt.Printf("Using output: %s\n", out.String())
	}
	if in != nil {
		fmt.Printf("Using input: %s\n", in.String())
	}
	return midi.NewPortController(fragment, 0, in, out)
}

// attach wires a port into a fresh router on usb:0 and starts dispatching
func attach(ctx context.Context, pc *midi.PortController) *route.Router {
	r := route.New()
	ep := route.USB(pc.Cable())
	r.Attach(ep, pc)

	events := make(chan route.Event, 256)
	go route.Pump(ctx, ep, pc.Packets(), events)
	go r.Run(ctx, events)
	return r
}

func sendPattern(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	tokens, err := sysex.ParsePattern(strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	pc, err := openPort(args[0])
	if err != nil {
		return err
	}
	defer pc.Close()

	fmt.Printf("Sending: F0 % X F7\n", sysex.Bytes(tokens))
	for p := range sysex.New(tokens...).Packets() {
		fmt.Printf("  %s\n", p)
	}
	return pc.SendSysex(sysex.New(tokens...))
}

func inquiry(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	pc, err := openPort(args[0])
	if err != nil {
		return err
	}
	defer pc.Close()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	r := attach(ctx, pc)
	found := make(chan midi.Identity, 1)
	svc := &route.InquiryService{
		Endpoint: route.USB(pc.Cable()),
		Device:   midi.AllDevices,
		Interval: time.Second,
		OnIdentity: func(from route.Endpoint, id midi.Identity) {
			select {
			case found <- id:
			default:
			}
		},
	}
	if err := route.StartAll(ctx, r, svc); err != nil {
		return err
	}

	fmt.Println("Waiting for identity reply...")
	select {
	case id := <-found:
		fmt.Printf("Identity: %s\n", id)
		return nil
	case <-ctx.Done():
		return errors.New("no identity reply")
	}
}

func listen(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	tokens, err := sysex.ParsePattern(strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	pc, err := openPort(args[0])
	if err != nil {
		return err
	}
	defer pc.Close()

	r := attach(ctx, pc)
	r.Listen("cli", tokens, func(from route.Endpoint, c sysex.CaptureBuffer) {
		fmt.Printf("[%s] %s match %s\n", time.Now().Format("15:04:05"), from, c)
	})

	fmt.Printf("Listening for %s. Ctrl+C to exit.\n", sysex.FormatPattern(tokens))
	<-ctx.Done()
	return nil
}

func launchpad(ctx context.Context, args []string) error {
	name := "launchpad"
	if len(args) > 0 {
		name = args[0]
	}
	in, out := findPorts(name)
	if in == nil || out == nil {
		return errors.New("no Launchpad found")
	}
	fmt.Printf("Using: %s / %s\n", in.String(), out.String())

	lp, err := midi.NewLaunchpadController(out.String(), 0, in, out)
	if err != nil {
		return err
	}
	defer lp.Close()

	r := attach(ctx, lp.PortController)
	layout := make(chan byte, 1)
	r.Listen("layout", midi.LaunchpadLayoutReply(), func(_ route.Endpoint, c sysex.CaptureBuffer) {
		if b, ok := c.Byte(sysex.ValueU7); ok {
			select {
			case layout <- b:
			default:
			}
		}
	})
	if err := r.Send(route.USB(lp.Cable()), midi.LaunchpadLayoutQuery()); err != nil {
		return err
	}
	select {
	case b := <-layout:
		fmt.Printf("Layout: %02X\n", b)
	case <-time.After(time.Second):
		fmt.Println("No layout reply")
	}

	fmt.Println("Lighting up diagonal (green)...")
	var updates []midi.LEDUpdate
	for i := 0; i < 8; i++ {
		updates = append(updates, midi.LEDUpdate{Row: i, Col: i, Color: midi.ColorGreen})
	}
	if err := lp.SetLEDBatch(updates); err != nil {
		return err
	}
	if err := lp.SetLED(8, 0, midi.ColorRed, midi.ChannelPulse); err != nil {
		return err
	}

	fmt.Println("Press pads to see them. Ctrl+C to clear and exit.")
	r.Observe(func(ev route.Event) {
		if ev.Dir != route.Incoming {
			return
		}
		if row, col, ok := midi.PadAt(ev.Packet); ok {
			fmt.Printf("  pad %d,%d\n", row, col)
		}
	})
	<-ctx.Done()
	return nil
}

func monitorSerial(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	baud := serial.DefaultBaud
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("baud: %w", err)
		}
		baud = n
	}

	port, err := serial.Open(args[0], baud, 0)
	if err != nil {
		return err
	}
	defer port.Close()

	fmt.Printf("Monitoring %s at %d baud. Ctrl+C to exit.\n", port.Name(), baud)
	return port.ReadPackets(ctx, func(p packet.Packet) {
		msg, err := packet.Decode(p)
		if err != nil {
			fmt.Printf("  %s  %v\n", p, err)
			return
		}
		fmt.Printf("  %s  %s\n", p, msg)
	})
}

func configCmd(args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	switch args[0] {
	case "init":
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.DefaultConfig().SaveFile(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
	case "add":
		if len(args) < 2 {
			return errUsage
		}
		ctrl := config.ControllerConfig{PortName: args[1], Type: config.ControllerGeneric, AutoConnect: true}
		if len(args) > 2 {
			ctrl.Type = config.ControllerType(args[2])
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.AddController(ctrl)
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Added %s (%s)\n", ctrl.PortName, ctrl.Type)
	default:
		return fmt.Errorf("unknown config command %q", args[0])
	}
	return nil
}
