package route

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go-midirouter/debug"
	"go-midirouter/metrics"
	"go-midirouter/packet"
	"go-midirouter/sysex"
)

var ErrNoSink = errors.New("no sink attached")

// Sink accepts packets leaving the router
type Sink interface {
	Send(p packet.Packet) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(p packet.Packet) error

func (f SinkFunc) Send(p packet.Packet) error { return f(p) }

// Option configures a Router
type Option func(*Router)

// WithMetrics counts traffic on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithDefaultRoutes installs the stock rules: USB input echoes back to
// the cable it came from and out of serial 0
func WithDefaultRoutes() Option {
	return func(r *Router) {
		r.rules[AnyOf(KindUSB)] = []Endpoint{AnyOf(KindUSB), Serial(0)}
	}
}

// Router dispatches events between endpoints
type Router struct {
	mu        sync.RWMutex
	sinks     map[Endpoint]Sink
	rules     map[Endpoint][]Endpoint
	listeners []*Listener
	observers []func(Event)
	metrics   *metrics.Metrics

	// serializes deliveries so a SysEx sent in one piece is not split
	// by forwarded traffic
	outMu sync.Mutex
}

func New(opts ...Option) *Router {
	r := &Router{
		sinks: make(map[Endpoint]Sink),
		rules: make(map[Endpoint][]Endpoint),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach makes s the sink for outgoing packets on ep
func (r *Router) Attach(ep Endpoint, s Sink) {
	r.mu.Lock()
	r.sinks[ep] = s
	r.mu.Unlock()
	debug.Log("route", "attach %s", ep)
}

func (r *Router) Detach(ep Endpoint) {
	r.mu.Lock()
	delete(r.sinks, ep)
	r.mu.Unlock()
	debug.Log("route", "detach %s", ep)
}

// Forward adds a rule sending incoming packets from one endpoint (or
// every endpoint of a kind, with AnyIndex) to others
func (r *Router) Forward(from Endpoint, to ...Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range to {
		if !slices.Contains(r.rules[from], t) {
			r.rules[from] = append(r.rules[from], t)
		}
	}
}

// ClearRoutes removes every forwarding rule
func (r *Router) ClearRoutes() {
	r.mu.Lock()
	r.rules = make(map[Endpoint][]Endpoint)
	r.mu.Unlock()
}

// Routes returns the targets for packets coming in on ep
func (r *Router) Routes(ep Endpoint) []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.targets(ep)
}

func (r *Router) targets(from Endpoint) []Endpoint {
	var out []Endpoint
	add := func(rules []Endpoint) {
		for _, t := range rules {
			if t.Wildcard() {
				t = Endpoint{t.Kind, from.Index}
			}
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	add(r.rules[from])
	add(r.rules[AnyOf(from.Kind)])
	return out
}

// Listen registers a SysEx listener. With no endpoints it hears every
// incoming packet.
func (r *Router) Listen(name string, pattern []sysex.Token, h Handler, from ...Endpoint) *Listener {
	l := newListener(name, pattern, h, from)
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
	debug.Log("route", "listen %s: %s", name, sysex.FormatPattern(pattern))
	return l
}

func (r *Router) Unlisten(l *Listener) {
	r.mu.Lock()
	r.listeners = slices.DeleteFunc(r.listeners, func(x *Listener) bool { return x == l })
	r.mu.Unlock()
}

// Listeners returns the registered listeners
func (r *Router) Listeners() []*Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.listeners)
}

// Observe calls fn for every event the router dispatches. fn runs on the
// dispatching goroutine and must not block.
func (r *Router) Observe(fn func(Event)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Dispatch handles one event: incoming packets go to the listeners and
// then along the forwarding rules, outgoing packets go to their sink
func (r *Router) Dispatch(ev Event) error {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()

	r.metrics.RecordPacket(ev.Dir.String(), ev.Endpoint.String())
	for _, fn := range observers {
		fn(ev)
	}

	if ev.Dir == Outgoing {
		r.outMu.Lock()
		defer r.outMu.Unlock()
		return r.deliver(ev.Endpoint, ev.Packet)
	}
	return r.incoming(ev)
}

func (r *Router) incoming(ev Event) error {
	msg, err := packet.Decode(ev.Packet)
	if err != nil {
		r.metrics.RecordDecodeError(ev.Endpoint.String())
		debug.LogEvery(50, "route", "%s: %v", ev.Endpoint, err)
		return nil
	}
	if msg.Terminal() {
		r.metrics.RecordSysex(ev.Endpoint.String())
	}

	r.mu.RLock()
	listeners := slices.Clone(r.listeners)
	targets := r.targets(ev.Endpoint)
	r.mu.RUnlock()

	for _, l := range listeners {
		if !l.accepts(ev.Endpoint) {
			continue
		}
		if captures, ok := l.Feed(ev.Packet); ok {
			r.metrics.RecordMatch(l.name)
			debug.Log("route", "%s matched on %s: %s", l.name, ev.Endpoint, captures)
			if l.handler != nil {
				l.handler(ev.Endpoint, captures)
			}
		}
	}

	var errs []error
	for _, to := range targets {
		if err := r.Dispatch(Event{Dir: Outgoing, Endpoint: to, Packet: ev.Packet}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver must be called with outMu held
func (r *Router) deliver(ep Endpoint, p packet.Packet) error {
	r.mu.RLock()
	sink := r.sinks[ep]
	r.mu.RUnlock()
	if sink == nil {
		return nil
	}
	if ep.Kind == KindUSB {
		p = p.WithCable(packet.CableNumber(ep.Index))
	}
	if err := sink.Send(p); err != nil {
		r.metrics.RecordSendError(ep.String())
		return fmt.Errorf("send to %s: %w", ep, err)
	}
	return nil
}

// Send delivers a whole SysEx to ep with no other traffic in between
func (r *Router) Send(ep Endpoint, s *sysex.Sysex) error {
	r.mu.RLock()
	_, ok := r.sinks[ep]
	observers := r.observers
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSink, ep)
	}

	r.outMu.Lock()
	defer r.outMu.Unlock()
	for p := range s.Packets() {
		ev := Event{Dir: Outgoing, Endpoint: ep, Packet: p}
		r.metrics.RecordPacket(ev.Dir.String(), ep.String())
		for _, fn := range observers {
			fn(ev)
		}
		if err := r.deliver(ep, p); err != nil {
			return err
		}
	}
	return nil
}

// Run dispatches events until ctx is done or events is closed
func (r *Router) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := r.Dispatch(ev); err != nil {
				debug.Log("route", "%s: %v", ev, err)
			}
		}
	}
}

// Pump turns a packet stream from ep into incoming events until the
// stream closes or ctx is done
func Pump(ctx context.Context, ep Endpoint, packets <-chan packet.Packet, events chan<- Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-packets:
			if !ok {
				return
			}
			select {
			case events <- Event{Dir: Incoming, Endpoint: ep, Packet: p}:
			case <-ctx.Done():
				return
			}
		}
	}
}
