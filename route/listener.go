package route

import (
	"sync"

	"go-midirouter/packet"
	"go-midirouter/sysex"
)

// Handler receives the captures of a matched SysEx message
type Handler func(from Endpoint, captures sysex.CaptureBuffer)

// Listener owns one Matcher. Packets from different goroutines are fed
// one at a time, each Match call under the listener's lock.
type Listener struct {
	name    string
	from    []Endpoint
	handler Handler

	mu      sync.Mutex
	matcher *sysex.Matcher
}

func newListener(name string, pattern []sysex.Token, h Handler, from []Endpoint) *Listener {
	return &Listener{
		name:    name,
		from:    from,
		handler: h,
		matcher: sysex.NewMatcher(pattern...),
	}
}

func (l *Listener) Name() string {
	return l.name
}

// Pattern returns the pattern in text form
func (l *Listener) Pattern() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sysex.FormatPattern(l.matcher.Pattern())
}

// accepts reports whether packets from ep reach this listener; no
// endpoints means every endpoint
func (l *Listener) accepts(ep Endpoint) bool {
	if len(l.from) == 0 {
		return true
	}
	for _, f := range l.from {
		if f == ep || (f.Wildcard() && f.Kind == ep.Kind) {
			return true
		}
	}
	return false
}

// Feed runs one packet through the matcher
func (l *Listener) Feed(p packet.Packet) (sysex.CaptureBuffer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.matcher.Match(p)
}

// Reset abandons a message in progress
func (l *Listener) Reset() {
	l.mu.Lock()
	l.matcher.Reset()
	l.mu.Unlock()
}
