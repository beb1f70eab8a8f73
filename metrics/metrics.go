// Package metrics exposes router counters to Prometheus.
package metrics

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the router collectors on a private registry. A nil
// *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	packetsTotal      *prometheus.CounterVec // Packets routed (by direction and endpoint)
	sysexMessages     *prometheus.CounterVec // Complete SysEx messages seen (by endpoint)
	matchesTotal      *prometheus.CounterVec // Listener matches (by listener)
	decodeErrorsTotal *prometheus.CounterVec // Undecodable packets (by endpoint)
	sendErrorsTotal   *prometheus.CounterVec // Failed deliveries (by endpoint)
	devicesConnected  prometheus.Gauge       // Host MIDI ports currently open
	identities        *prometheus.GaugeVec   // Last identity reply per device
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		packetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midirouter_packets_total",
				Help: "USB-MIDI packets routed",
			},
			[]string{"dir", "endpoint"},
		),
		sysexMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midirouter_sysex_messages_total",
				Help: "Complete SysEx messages received",
			},
			[]string{"endpoint"},
		),
		matchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midirouter_sysex_matches_total",
				Help: "SysEx messages accepted by a listener",
			},
			[]string{"listener"},
		),
		decodeErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midirouter_decode_errors_total",
				Help: "Packets that are not a valid USB-MIDI event",
			},
			[]string{"endpoint"},
		),
		sendErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "midirouter_send_errors_total",
				Help: "Packets that could not be delivered",
			},
			[]string{"endpoint"},
		),
		devicesConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "midirouter_devices_connected",
				Help: "Host MIDI ports currently open",
			},
		),
		identities: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "midirouter_device_identity_info",
				Help: "Identity reported by a device (value is always 1)",
			},
			[]string{"device", "manufacturer", "family", "member"},
		),
	}
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordPacket(dir, endpoint string) {
	if m == nil {
		return
	}
	m.packetsTotal.WithLabelValues(dir, endpoint).Inc()
}

func (m *Metrics) RecordSysex(endpoint string) {
	if m == nil {
		return
	}
	m.sysexMessages.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) RecordMatch(listener string) {
	if m == nil {
		return
	}
	m.matchesTotal.WithLabelValues(listener).Inc()
}

func (m *Metrics) RecordDecodeError(endpoint string) {
	if m == nil {
		return
	}
	m.decodeErrorsTotal.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) RecordSendError(endpoint string) {
	if m == nil {
		return
	}
	m.sendErrorsTotal.WithLabelValues(endpoint).Inc()
}

// SetDevices records how many host ports are open
func (m *Metrics) SetDevices(n int) {
	if m == nil {
		return
	}
	m.devicesConnected.Set(float64(n))
}

// RecordIdentity publishes an identity reply as an info metric
func (m *Metrics) RecordIdentity(device byte, manufacturer []byte, family, member uint16) {
	if m == nil {
		return
	}
	m.identities.WithLabelValues(
		strconv.Itoa(int(device)),
		hex.EncodeToString(manufacturer),
		strconv.FormatUint(uint64(family), 16),
		strconv.FormatUint(uint64(member), 16),
	).Set(1)
}
