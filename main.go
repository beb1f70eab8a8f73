package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-midirouter/config"
	"go-midirouter/debug"
	"go-midirouter/metrics"
	"go-midirouter/midi"
	"go-midirouter/packet"
	"go-midirouter/route"
	"go-midirouter/serial"
	"go-midirouter/sysex"
	"go-midirouter/theme"
	"go-midirouter/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Optional config file argument, else ~/.config/go-midirouter
	var cfg *config.Config
	var err error
	if len(os.Args) > 1 {
		cfg, err = config.LoadFile(os.Args[1])
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	switch {
	case cfg.Debug:
		if err := debug.Enable(""); err != nil {
			return err
		}
		defer debug.Disable()
	case cfg.UI.Disabled:
		debug.Init(os.Stderr, slog.LevelInfo)
	}
	log := debug.Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	opts := []route.Option{route.WithMetrics(m)}
	if cfg.DefaultRoutes {
		opts = append(opts, route.WithDefaultRoutes())
	}
	router := route.New(opts...)

	feed := tui.NewFeed(1024)
	if !cfg.UI.Disabled {
		router.Observe(feed.Event)
	}
	if err := configure(router, cfg, feed); err != nil {
		return err
	}

	events := make(chan route.Event, 1024)

	// DIN ports
	for i, sc := range cfg.Serial {
		baud := sc.Baud
		if baud == 0 {
			baud = serial.DefaultBaud
		}
		port, err := serial.Open(sc.Device, baud, 0)
		if err != nil {
			log.Error("serial port unavailable", "device", sc.Device, "err", err)
			continue
		}
		defer port.Close()

		ep := route.Serial(uint8(i))
		router.Attach(ep, port)
		go func() {
			err := port.ReadPackets(ctx, func(p packet.Packet) {
				select {
				case events <- route.Event{Dir: route.Incoming, Endpoint: ep, Packet: p}:
				case <-ctx.Done():
				}
			})
			if err != nil && ctx.Err() == nil {
				log.Error("serial read failed", "device", sc.Device, "err", err)
			}
		}()
	}

	// Host MIDI devices (hot-plug)
	devices := midi.NewDeviceManager(midi.ManagerOptions{
		Include:  cfg.IncludePorts(),
		Exclude:  cfg.Ports.Exclude,
		PollRate: cfg.PollRate(),
	})
	go devices.Run(ctx)
	go trackDevices(ctx, router, devices.Events(), events, m, feed)

	services, err := buildServices(cfg, feed)
	if err != nil {
		return err
	}
	if err := route.StartAll(ctx, router, services...); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, m)
	}

	go router.Run(ctx, events)

	if cfg.UI.Disabled {
		fmt.Println("go-midirouter")
		fmt.Println("Connect MIDI devices any time - they'll be detected automatically")
		<-ctx.Done()
		return nil
	}

	th := theme.New(nil)
	if cfg.UI.Palette != "" {
		palette, err := theme.LoadGPL(cfg.UI.Palette)
		if err != nil {
			return err
		}
		th = theme.New(palette)
	}

	model := tui.NewModel(feed, th, cfg.UI.MaxEvents)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// configure applies the routes and listeners from the config
func configure(router *route.Router, cfg *config.Config, feed *tui.Feed) error {
	for _, rc := range cfg.Routes {
		from, err := route.ParseEndpoint(rc.From)
		if err != nil {
			return err
		}
		to, err := parseEndpoints(rc.To)
		if err != nil {
			return err
		}
		router.Forward(from, to...)
	}

	for _, lc := range cfg.Listeners {
		pattern, err := sysex.ParsePattern(lc.Pattern)
		if err != nil {
			return fmt.Errorf("listener %s: %w", lc.Name, err)
		}
		from, err := parseEndpoints(lc.From)
		if err != nil {
			return fmt.Errorf("listener %s: %w", lc.Name, err)
		}
		var response []sysex.Token
		if lc.Response != "" {
			if response, err = sysex.ParsePattern(lc.Response); err != nil {
				return fmt.Errorf("listener %s response: %w", lc.Name, err)
			}
		}

		notify := matchHandler(cfg, feed, lc.Name)
		router.Listen(lc.Name, pattern, func(ep route.Endpoint, c sysex.CaptureBuffer) {
			notify(ep, c)
			if response == nil {
				return
			}
			// Answer on the endpoint the request came from
			if err := router.Send(ep, sysex.New(sysex.Bind(response, c)...)); err != nil {
				debug.Log("listen", "%s: respond to %s: %v", lc.Name, ep, err)
			}
		}, from...)
	}
	return nil
}

func matchHandler(cfg *config.Config, feed *tui.Feed, name string) route.Handler {
	if !cfg.UI.Disabled {
		return feed.Match(name)
	}
	return func(ep route.Endpoint, c sysex.CaptureBuffer) {
		debug.Logger().Info("match", "listener", name, "from", ep.String(), "captures", c.String())
	}
}

func parseEndpoints(names []string) ([]route.Endpoint, error) {
	eps := make([]route.Endpoint, 0, len(names))
	for _, s := range names {
		ep, err := route.ParseEndpoint(s)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

func buildServices(cfg *config.Config, feed *tui.Feed) ([]route.Service, error) {
	var services []route.Service
	for _, q := range cfg.Inquiry {
		ep, err := route.ParseEndpoint(q.Endpoint)
		if err != nil {
			return nil, err
		}
		interval := time.Duration(q.IntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 5 * time.Second
		}
		device := byte(q.Device)
		if device == 0 {
			device = midi.AllDevices
		}
		svc := &route.InquiryService{Endpoint: ep, Device: device, Interval: interval}
		if !cfg.UI.Disabled {
			svc.OnIdentity = feed.Identity
		}
		services = append(services, svc)
	}

	for _, pc := range cfg.Pulse {
		ep, err := route.ParseEndpoint(pc.Endpoint)
		if err != nil {
			return nil, err
		}
		var setup []sysex.Token
		if pc.Setup != "" {
			if setup, err = sysex.ParsePattern(pc.Setup); err != nil {
				return nil, err
			}
		}
		notes := make([]uint8, len(pc.Notes))
		for i, n := range pc.Notes {
			notes[i] = uint8(n)
		}
		interval := time.Duration(pc.IntervalMillis) * time.Millisecond
		if interval <= 0 {
			interval = 500 * time.Millisecond
		}
		services = append(services, &route.PulseService{
			Endpoint: ep,
			Setup:    setup,
			Channel:  uint8(pc.Channel),
			Notes:    notes,
			Interval: interval,
		})
	}
	return services, nil
}

// trackDevices attaches each controller to the router on its cable and
// pumps its input until it disconnects
func trackDevices(ctx context.Context, router *route.Router, devs <-chan midi.DeviceEvent, events chan<- route.Event, m *metrics.Metrics, feed *tui.Feed) {
	attached := make(map[string]route.Endpoint)
	for ev := range devs {
		switch ev.Type {
		case midi.DeviceConnected:
			ep := route.USB(ev.Controller.Cable())
			router.Attach(ep, ev.Controller)
			attached[ev.ID] = ep
			go route.Pump(ctx, ep, ev.Controller.Packets(), events)
			debug.Logger().Info("device connected", "id", ev.ID, "type", ev.Controller.Type().String(), "endpoint", ep.String())
		case midi.DeviceDisconnected:
			if ep, ok := attached[ev.ID]; ok {
				router.Detach(ep)
				delete(attached, ev.ID)
			}
			debug.Logger().Info("device disconnected", "id", ev.ID)
		}
		m.SetDevices(len(attached))
		feed.Device(ev)
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	debug.Logger().Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		debug.Logger().Error("metrics server failed", "err", err)
	}
}
