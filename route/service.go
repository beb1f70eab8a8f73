package route

import (
	"context"
	"errors"
	"time"

	"go-midirouter/debug"
	"go-midirouter/midi"
	"go-midirouter/sysex"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Service is a background task driving the router. Start returns once
// the task is running; the task stops when ctx is done.
type Service interface {
	Name() string
	Start(ctx context.Context, r *Router) error
}

// StartAll starts every service, stopping at the first failure
func StartAll(ctx context.Context, r *Router, services ...Service) error {
	for _, s := range services {
		if err := s.Start(ctx, r); err != nil {
			return err
		}
		debug.Logger().Info("service active", "name", s.Name())
	}
	return nil
}

// every calls fn now and then on each tick until ctx is done
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	fn()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// InquiryService asks devices on an endpoint who they are and reports
// every identity reply
type InquiryService struct {
	Endpoint Endpoint
	Device   byte
	Interval time.Duration
	// OnIdentity is called on the dispatching goroutine
	OnIdentity func(from Endpoint, id midi.Identity)
}

func (s *InquiryService) Name() string {
	return "inquiry " + s.Endpoint.String()
}

func (s *InquiryService) Start(ctx context.Context, r *Router) error {
	if s.Interval <= 0 {
		return errors.New("inquiry: interval must be positive")
	}
	handle := func(from Endpoint, c sysex.CaptureBuffer) {
		id, err := midi.ParseIdentity(c)
		if err != nil {
			// the other reply pattern will read this one
			debug.Log("inquiry", "%s: %v", from, err)
			return
		}
		r.metrics.RecordIdentity(id.DeviceID, id.Manufacturer, id.Family, id.Member)
		debug.Log("inquiry", "%s: %s", from, id)
		if s.OnIdentity != nil {
			s.OnIdentity(from, id)
		}
	}
	long := r.Listen("identity", midi.IdentityReply(), handle, s.Endpoint)
	short := r.Listen("identity-short", midi.IdentityReplyShort(), handle, s.Endpoint)

	go func() {
		defer r.Unlisten(long)
		defer r.Unlisten(short)
		every(ctx, s.Interval, func() {
			if err := r.Send(s.Endpoint, sysex.New(midi.IdentityRequest(s.Device)...)); err != nil {
				debug.LogEvery(10, "inquiry", "%v", err)
			}
		})
	}()
	return nil
}

// PulseService sends an optional setup SysEx and then toggles a set of
// notes on an endpoint at a fixed rate
type PulseService struct {
	Endpoint Endpoint
	Setup    []sysex.Token
	Channel  uint8
	Notes    []uint8
	Interval time.Duration

	on bool
}

func (s *PulseService) Name() string {
	return "pulse " + s.Endpoint.String()
}

func (s *PulseService) Start(ctx context.Context, r *Router) error {
	if s.Interval <= 0 {
		return errors.New("pulse: interval must be positive")
	}
	go every(ctx, s.Interval, func() {
		if err := s.tick(r); err != nil {
			debug.LogEvery(10, "pulse", "%v", err)
		}
	})
	return nil
}

func (s *PulseService) tick(r *Router) error {
	if len(s.Setup) > 0 {
		if err := r.Send(s.Endpoint, sysex.New(s.Setup...)); err != nil {
			return err
		}
	}
	s.on = !s.on
	for _, note := range s.Notes {
		msg := gomidi.NoteOff(s.Channel, note)
		if s.on {
			msg = gomidi.NoteOn(s.Channel, note, 0x7F)
		}
		ps, err := midi.ToPackets(msg, 0)
		if err != nil {
			return err
		}
		for _, p := range ps {
			if err := r.Dispatch(Event{Dir: Outgoing, Endpoint: s.Endpoint, Packet: p}); err != nil {
				return err
			}
		}
	}
	return nil
}
