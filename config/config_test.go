package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
ports:
  include: [keystep]
  pollMillis: 250
serial:
  - device: /dev/ttyUSB0
defaultRoutes: false
routes:
  - from: serial:0
    to: [usb:0, usb:1]
listeners:
  - name: layout
    pattern: 00.20.29.02.0C 00 cap:value
    from: [usb:*]
inquiry:
  - endpoint: usb:0
    intervalSeconds: 5
pulse:
  - endpoint: serial:0
    notes: [36, 38]
metricsAddr: ":9100"
`

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := LoadFile(write(t, "config.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"keystep"}, cfg.Ports.Include)
	assert.Equal(t, 250*time.Millisecond, cfg.PollRate())
	require.Len(t, cfg.Serial, 1)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial[0].Device)
	assert.False(t, cfg.DefaultRoutes)
	assert.Equal(t, []string{"usb:0", "usb:1"}, cfg.Routes[0].To)
	// a listeners list in the file replaces the default one
	require.Len(t, cfg.Listeners, 1)
	assert.Equal(t, "layout", cfg.Listeners[0].Name)
	assert.Equal(t, 5, cfg.Inquiry[0].IntervalSeconds)
	assert.Equal(t, []int{36, 38}, cfg.Pulse[0].Notes)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	// unset sections keep their defaults
	assert.Equal(t, 200, cfg.UI.MaxEvents)
}

func TestLoadJSON(t *testing.T) {
	cfg, err := LoadFile(write(t, "config.json", `{"routes":[{"from":"usb:*","to":["serial:0"]}],"debug":true}`))
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.DefaultRoutes)
	assert.Equal(t, "usb:*", cfg.Routes[0].From)
	assert.Equal(t, time.Second, cfg.PollRate())
}

func TestLoadMissingGivesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := LoadFile(write(t, "bad.yaml", `
routes:
  - from: midi:0
    to: [usb:0]
listeners:
  - name: broken
    pattern: "zz"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routes[0].from")
	assert.Contains(t, err.Error(), "listener broken")

	_, err = LoadFile(write(t, "bad.json", `{"routes": 3}`))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Serial = []SerialConfig{{Device: "COM3", Baud: 31250}}
	cfg.AddController(ControllerConfig{PortName: "KeyStep", Type: ControllerGeneric})
	cfg.AddController(ControllerConfig{PortName: "KeyStep", Type: ControllerGeneric, AutoConnect: true})

	for _, name := range []string{"out.json", "out.yml"} {
		path := filepath.Join(dir, "sub", name)
		require.NoError(t, cfg.SaveFile(path))
		back, err := LoadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, cfg, back, name)
	}
}

func TestControllers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AddController(ControllerConfig{PortName: "Synth", Type: ControllerGeneric})
	require.NotNil(t, cfg.FindController("Synth"))
	assert.Nil(t, cfg.FindController("Nope"))
	assert.Len(t, cfg.AutoConnectControllers(), 1)

	assert.Nil(t, cfg.IncludePorts())
	cfg.Ports.Include = []string{"keystep"}
	assert.Equal(t, []string{"keystep", "Launchpad X LPX MIDI"}, cfg.IncludePorts())
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
