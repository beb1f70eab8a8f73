package route

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-midirouter/metrics"
	"go-midirouter/midi"
	"go-midirouter/packet"
	"go-midirouter/sysex"
)

// recorder is a sink that keeps what it was sent
type recorder struct {
	mu  sync.Mutex
	got []packet.Packet
}

func (r *recorder) Send(p packet.Packet) error {
	r.mu.Lock()
	r.got = append(r.got, p)
	r.mu.Unlock()
	return nil
}

func (r *recorder) packets() []packet.Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]packet.Packet(nil), r.got...)
}

func feedIn(t *testing.T, r *Router, ep Endpoint, ps ...packet.Packet) {
	t.Helper()
	for _, p := range ps {
		require.NoError(t, r.Dispatch(Event{Dir: Incoming, Endpoint: ep, Packet: p}))
	}
}

func noteOn(cable packet.CableNumber) packet.Packet {
	return packet.New(cable, packet.CINNoteOn, 0x90, 60, 100)
}

func TestParseEndpoint(t *testing.T) {
	cases := map[string]Endpoint{
		"usb":      USB(0),
		"usb:3":    USB(3),
		"Serial:1": Serial(1),
		"app:2":    App(2),
		"usb:*":    AnyOf(KindUSB),
	}
	for in, want := range cases {
		got, err := ParseEndpoint(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "midi:0", "usb:16", "serial:x", "app:255"} {
		_, err := ParseEndpoint(bad)
		assert.ErrorIs(t, err, ErrEndpoint, bad)
	}
	assert.Equal(t, "usb:*", AnyOf(KindUSB).String())
	assert.Equal(t, "serial:0", Serial(0).String())
}

func TestDefaultRoutesEchoUSB(t *testing.T) {
	r := New(WithDefaultRoutes())
	usb2, usb5, din := &recorder{}, &recorder{}, &recorder{}
	r.Attach(USB(2), usb2)
	r.Attach(USB(5), usb5)
	r.Attach(Serial(0), din)

	feedIn(t, r, USB(2), noteOn(2))

	assert.Equal(t, []packet.Packet{noteOn(2)}, usb2.packets())
	assert.Empty(t, usb5.packets())
	assert.Equal(t, []packet.Packet{noteOn(2)}, din.packets())
}

func TestSerialInputGoesNowhereByDefault(t *testing.T) {
	r := New(WithDefaultRoutes())
	usb := &recorder{}
	r.Attach(USB(0), usb)
	feedIn(t, r, Serial(0), noteOn(0))
	assert.Empty(t, usb.packets())
}

func TestForwardRecables(t *testing.T) {
	r := New()
	r.Forward(Serial(0), USB(3), USB(3))
	usb := &recorder{}
	r.Attach(USB(3), usb)

	feedIn(t, r, Serial(0), noteOn(0))
	assert.Equal(t, []packet.Packet{noteOn(3)}, usb.packets())
	assert.Equal(t, []Endpoint{USB(3)}, r.Routes(Serial(0)))

	r.ClearRoutes()
	assert.Empty(t, r.Routes(Serial(0)))
}

func TestListenerDeliversCaptures(t *testing.T) {
	r := New()
	var got []sysex.CaptureBuffer
	var from []Endpoint
	r.Listen("param", sysex.MustParsePattern("00.20.6B 7F cap:param cap:value"), func(ep Endpoint, c sysex.CaptureBuffer) {
		from = append(from, ep)
		got = append(got, c)
	}, USB(1))

	msg := sysex.New(sysex.Seq(0x00, 0x20, 0x6B, 0x7F, 0x10, 0x42)).OnCable(1).Collect()
	feedIn(t, r, USB(1), msg...)
	// same message on another endpoint is not heard
	feedIn(t, r, USB(2), msg...)

	require.Len(t, got, 1)
	assert.Equal(t, []Endpoint{USB(1)}, from)
	v, ok := got[0].Byte(sysex.ValueU7)
	require.True(t, ok)
	assert.Equal(t, byte(0x42), v)
}

func TestListenerWildcardAndUnlisten(t *testing.T) {
	r := New()
	var n int
	l := r.Listen("any-usb", []sysex.Token{sysex.Val(0x7D)}, func(Endpoint, sysex.CaptureBuffer) { n++ }, AnyOf(KindUSB))
	msg := sysex.New(sysex.Val(0x7D)).Collect()

	feedIn(t, r, USB(4), msg...)
	feedIn(t, r, Serial(0), msg...)
	assert.Equal(t, 1, n)
	assert.Equal(t, "7D", l.Pattern())

	r.Unlisten(l)
	assert.Empty(t, r.Listeners())
	feedIn(t, r, USB(4), msg...)
	assert.Equal(t, 1, n)
}

func TestSendKeepsSysexTogether(t *testing.T) {
	r := New(WithDefaultRoutes())
	usb := &recorder{}
	r.Attach(USB(0), usb)

	payload := make([]byte, 60)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, r.Send(USB(0), sysex.New(sysex.Buf(payload))))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			assert.NoError(t, r.Dispatch(Event{Dir: Incoming, Endpoint: USB(0), Packet: noteOn(0)}))
		}
	}()
	wg.Wait()

	// every SysEx arrives as one unbroken run of packets
	var inSysex bool
	for _, p := range usb.packets() {
		m, err := packet.Decode(p)
		require.NoError(t, err)
		if !m.IsSysex() {
			assert.False(t, inSysex, "note inside a SysEx")
			continue
		}
		inSysex = !m.Terminal()
	}
}

func TestSendWithoutSink(t *testing.T) {
	r := New()
	err := r.Send(Serial(1), sysex.New(sysex.Val(1)))
	assert.ErrorIs(t, err, ErrNoSink)
}

func TestSendErrorIsReturned(t *testing.T) {
	r := New(WithMetrics(metrics.New()))
	r.Attach(USB(0), SinkFunc(func(packet.Packet) error { return errors.New("gone") }))
	err := r.Dispatch(Event{Dir: Outgoing, Endpoint: USB(0), Packet: noteOn(0)})
	assert.ErrorContains(t, err, "gone")
}

func TestObserveAndRun(t *testing.T) {
	r := New(WithDefaultRoutes())
	var mu sync.Mutex
	var seen []Event
	r.Observe(func(ev Event) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan Event)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, events) }()

	packets := make(chan packet.Packet, 2)
	packets <- noteOn(1)
	packets <- packet.Packet{0x10, 0, 0, 0}
	close(packets)
	Pump(ctx, USB(1), packets, events)
	close(events)
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	assert.Equal(t, Event{Incoming, USB(1), noteOn(1)}, seen[0])
	assert.Equal(t, Outgoing, seen[1].Dir)
	assert.Equal(t, Serial(0), seen[2].Endpoint)
	assert.Equal(t, Incoming, seen[3].Dir)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, New().Run(ctx, make(chan Event)), context.Canceled)
}

func TestInquiryService(t *testing.T) {
	r := New(WithMetrics(metrics.New()))
	sent := make(chan packet.Packet, 16)
	r.Attach(USB(0), SinkFunc(func(p packet.Packet) error {
		sent <- p
		return nil
	}))

	ids := make(chan midi.Identity, 2)
	svc := &InquiryService{
		Endpoint: USB(0),
		Device:   midi.AllDevices,
		Interval: time.Hour,
		OnIdentity: func(_ Endpoint, id midi.Identity) {
			ids <- id
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, StartAll(ctx, r, svc))

	// the first request goes out immediately
	var req []packet.Packet
	for len(req) < 2 {
		select {
		case p := <-sent:
			req = append(req, p)
		case <-time.After(time.Second):
			t.Fatal("no identity request")
		}
	}
	assert.Equal(t, sysex.New(midi.IdentityRequest(midi.AllDevices)...).Collect(), req)

	reply := sysex.New(sysex.Seq(0x7E, 0x00, 0x06, 0x02, 0x41, 0x01, 0x02, 0x03, 0x04, 0x01, 0x00, 0x00, 0x00)).Collect()
	feedIn(t, r, USB(0), reply...)

	select {
	case id := <-ids:
		assert.Equal(t, []byte{0x41}, id.Manufacturer)
		assert.Equal(t, uint16(0x101), id.Family)
	case <-time.After(time.Second):
		t.Fatal("no identity")
	}
	assert.Empty(t, ids)
}

func TestPulseServiceToggles(t *testing.T) {
	r := New()
	out := &recorder{}
	r.Attach(Serial(0), out)

	svc := &PulseService{
		Endpoint: Serial(0),
		Setup:    []sysex.Token{sysex.Seq(0x00, 0x20, 0x6B, 0x7F, 0x42)},
		Channel:  1,
		Notes:    []uint8{36, 38},
	}
	require.NoError(t, svc.tick(r))
	require.NoError(t, svc.tick(r))

	var notes []gomidi.Message
	var sysexCount int
	for _, p := range out.packets() {
		m, err := packet.Decode(p)
		require.NoError(t, err)
		if m.IsSysex() {
			if m.Terminal() {
				sysexCount++
			}
			continue
		}
		notes = append(notes, m.MIDI())
	}
	assert.Equal(t, 2, sysexCount)
	assert.Equal(t, []gomidi.Message{
		gomidi.NoteOn(1, 36, 0x7F), gomidi.NoteOn(1, 38, 0x7F),
		gomidi.NoteOff(1, 36), gomidi.NoteOff(1, 38),
	}, notes)
}

func TestServicesRejectZeroInterval(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, (&InquiryService{Endpoint: USB(0)}).Start(ctx, New()))
	assert.Error(t, (&PulseService{Endpoint: USB(0)}).Start(ctx, New()))
}
