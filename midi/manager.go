package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-midirouter/debug"
	"go-midirouter/packet"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// DeviceEvent is emitted when controllers connect/disconnect
type DeviceEvent struct {
	Type       DeviceEventType
	Controller Controller
	ID         string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// ManagerOptions selects which ports the manager connects to
type ManagerOptions struct {
	// Include lists case-insensitive name fragments; empty means every port
	Include []string
	// Exclude lists name fragments that are never connected
	Exclude  []string
	PollRate time.Duration
}

// DeviceManager handles hot-plug detection of MIDI controllers
type DeviceManager struct {
	controllers map[string]Controller
	cables      [packet.CableMax + 1]string
	mu          sync.RWMutex
	events      chan DeviceEvent
	opts        ManagerOptions

	// ports is swapped in tests
	ports func() ([]drivers.In, []drivers.Out)
	open  func(id string, cable packet.CableNumber, in drivers.In, out drivers.Out) (Controller, error)
}

// NewDeviceManager creates a new device manager
func NewDeviceManager(opts ManagerOptions) *DeviceManager {
	if opts.PollRate <= 0 {
		opts.PollRate = time.Second
	}
	return &DeviceManager{
		controllers: make(map[string]Controller),
		events:      make(chan DeviceEvent, 16),
		opts:        opts,
		ports:       listPorts,
		open:        openController,
	}
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Controllers returns a snapshot of connected controllers
func (dm *DeviceManager) Controllers() map[string]Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	copy := make(map[string]Controller, len(dm.controllers))
	for k, v := range dm.controllers {
		copy[k] = v
	}
	return copy
}

// ByCable returns the controller bound to a cable (or nil)
func (dm *DeviceManager) ByCable(cable packet.CableNumber) Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if cable > packet.CableMax {
		return nil
	}
	return dm.controllers[dm.cables[cable]]
}

// GetLaunchpad returns the first connected Launchpad (or nil)
func (dm *DeviceManager) GetLaunchpad() Controller {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, c := range dm.controllers {
		if c.Type() == ControllerLaunchpad {
			return c
		}
	}
	return nil
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.opts.PollRate)
	defer ticker.Stop()

	// Initial scan
	dm.scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan()
		}
	}
}

func listPorts() ([]drivers.In, []drivers.Out) {
	return gomidi.GetInPorts(), gomidi.GetOutPorts()
}

func openController(id string, cable packet.CableNumber, in drivers.In, out drivers.Out) (Controller, error) {
	if isLaunchpad(id) {
		return NewLaunchpadController(id, cable, in, out)
	}
	return NewPortController(id, cable, in, out)
}

func (dm *DeviceManager) scan() {
	// Get current MIDI ports with timeout (CoreMIDI can hang)
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		inPorts, outPorts := dm.ports()
		ch <- portsResult{inPorts: inPorts, outPorts: outPorts}
	}()

	var inPorts []drivers.In
	var outPorts []drivers.Out

	select {
	case result := <-ch:
		inPorts = result.inPorts
		outPorts = result.outPorts
	case <-time.After(3 * time.Second):
		debug.Log("devices", "port scan timed out")
		return
	}

	// Build map of what we see now
	seenIDs := make(map[string]bool)
	for _, inPort := range inPorts {
		if id := inPort.String(); dm.wanted(id) {
			seenIDs[id] = true
		}
	}

	// Disconnects first so their cables can be reused
	dm.mu.Lock()
	var toRemove []string
	for id := range dm.controllers {
		if !seenIDs[id] {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		c := dm.controllers[id]
		c.Close()
		delete(dm.controllers, id)
		dm.cables[c.Cable()] = ""
		debug.Log("devices", "disconnected %s", id)
		dm.events <- DeviceEvent{
			Type: DeviceDisconnected,
			ID:   id,
		}
	}
	dm.mu.Unlock()

	for i, inPort := range inPorts {
		id := inPort.String()
		if !seenIDs[id] {
			continue
		}

		dm.mu.RLock()
		_, exists := dm.controllers[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		// Find matching output port
		var outPort drivers.Out
		for j, op := range outPorts {
			if strings.EqualFold(op.String(), id) {
				outPort = outPorts[j]
				break
			}
		}

		dm.mu.Lock()
		cable, ok := dm.freeCable()
		dm.mu.Unlock()
		if !ok {
			debug.Log("devices", "no free cable for %s", id)
			continue
		}

		c, err := dm.open(id, cable, inPorts[i], outPort)
		if err != nil {
			debug.Log("devices", "open %s: %v", id, err)
			continue
		}

		dm.mu.Lock()
		dm.controllers[id] = c
		dm.cables[cable] = id
		dm.mu.Unlock()

		debug.Log("devices", "connected %s (%s) on cable %d", id, c.Type(), cable)
		dm.events <- DeviceEvent{
			Type:       DeviceConnected,
			Controller: c,
			ID:         id,
		}
	}
}

// freeCable must be called with dm.mu held
func (dm *DeviceManager) freeCable() (packet.CableNumber, bool) {
	for i, id := range dm.cables {
		if id == "" {
			return packet.CableNumber(i), true
		}
	}
	return 0, false
}

func (dm *DeviceManager) wanted(name string) bool {
	for _, pat := range dm.opts.Exclude {
		if containsCI(name, pat) {
			return false
		}
	}
	if len(dm.opts.Include) == 0 {
		return true
	}
	for _, pat := range dm.opts.Include {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, c := range dm.controllers {
		c.Close()
	}
	dm.controllers = make(map[string]Controller)
	dm.cables = [packet.CableMax + 1]string{}
}

func isLaunchpad(name string) bool {
	return containsCI(name, "launchpad") && containsCI(name, "midi")
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
