package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-midirouter/route"
	"go-midirouter/sysex"

	"gopkg.in/yaml.v3"
)

// ControllerType identifies the kind of controller
type ControllerType string

const (
	ControllerLaunchpadX ControllerType = "launchpad-x"
	ControllerGeneric    ControllerType = "port"
)

// ControllerConfig defines a saved controller configuration
type ControllerConfig struct {
	PortName    string         `json:"portName" yaml:"portName"`
	Type        ControllerType `json:"type" yaml:"type"`
	AutoConnect bool           `json:"autoConnect" yaml:"autoConnect"`
}

// PortsConfig selects host MIDI ports by name fragment
type PortsConfig struct {
	Include    []string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude    []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
	PollMillis int      `json:"pollMillis,omitempty" yaml:"pollMillis,omitempty"`
}

// SerialConfig defines a DIN MIDI port
type SerialConfig struct {
	Device string `json:"device" yaml:"device"`
	Baud   int    `json:"baud,omitempty" yaml:"baud,omitempty"`
}

// RouteConfig forwards incoming packets from one endpoint to others
type RouteConfig struct {
	From string   `json:"from" yaml:"from"`
	To   []string `json:"to" yaml:"to"`
}

// ListenerConfig logs every SysEx matching a pattern
type ListenerConfig struct {
	Name     string   `json:"name" yaml:"name"`
	Pattern  string   `json:"pattern" yaml:"pattern"`
	From     []string `json:"from,omitempty" yaml:"from,omitempty"`
	Response string   `json:"response,omitempty" yaml:"response,omitempty"`
}

// InquiryConfig periodically asks devices for their identity
type InquiryConfig struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	Device          int    `json:"device,omitempty" yaml:"device,omitempty"` // 0 asks every device
	IntervalSeconds int    `json:"intervalSeconds,omitempty" yaml:"intervalSeconds,omitempty"`
}

// PulseConfig blinks notes on an endpoint
type PulseConfig struct {
	Endpoint       string `json:"endpoint" yaml:"endpoint"`
	Setup          string `json:"setup,omitempty" yaml:"setup,omitempty"`
	Channel        int    `json:"channel,omitempty" yaml:"channel,omitempty"`
	Notes          []int  `json:"notes" yaml:"notes"`
	IntervalMillis int    `json:"intervalMillis,omitempty" yaml:"intervalMillis,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	MaxEvents int    `json:"maxEvents,omitempty" yaml:"maxEvents,omitempty"`
	Disabled  bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Palette   string `json:"palette,omitempty" yaml:"palette,omitempty"` // GIMP .gpl file
}

// Config is the main configuration structure
type Config struct {
	Controllers   []ControllerConfig `json:"controllers,omitempty" yaml:"controllers,omitempty"`
	Ports         PortsConfig        `json:"ports,omitempty" yaml:"ports,omitempty"`
	Serial        []SerialConfig     `json:"serial,omitempty" yaml:"serial,omitempty"`
	DefaultRoutes bool               `json:"defaultRoutes" yaml:"defaultRoutes"`
	Routes        []RouteConfig      `json:"routes,omitempty" yaml:"routes,omitempty"`
	Listeners     []ListenerConfig   `json:"listeners,omitempty" yaml:"listeners,omitempty"`
	Inquiry       []InquiryConfig    `json:"inquiry,omitempty" yaml:"inquiry,omitempty"`
	Pulse         []PulseConfig      `json:"pulse,omitempty" yaml:"pulse,omitempty"`
	MetricsAddr   string             `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`
	Debug         bool               `json:"debug,omitempty" yaml:"debug,omitempty"`
	UI            UIConfig           `json:"ui,omitempty" yaml:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Controllers: []ControllerConfig{
			{
				PortName:    "Launchpad X LPX MIDI",
				Type:        ControllerLaunchpadX,
				AutoConnect: true,
			},
		},
		DefaultRoutes: true,
		Listeners: []ListenerConfig{
			{Name: "identity", Pattern: "7E cap:device 06.02 dump:3 dump:8"},
		},
		UI: UIConfig{
			MaxEvents: 200,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-midirouter"), nil
}

// ConfigPath returns the config file to use: config.yaml when present,
// config.json otherwise
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	for _, name := range []string{"config.yaml", "config.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return filepath.Join(dir, "config.json"), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a JSON or YAML config (by extension). A missing file
// gives the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config as JSON or YAML (by extension)
func (c *Config) SaveFile(path string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks every endpoint and pattern in the config
func (c *Config) Validate() error {
	var errs []error
	endpoint := func(what, s string) {
		if _, err := route.ParseEndpoint(s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}
	pattern := func(what, s string) {
		if _, err := sysex.ParsePattern(s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	for i, r := range c.Routes {
		endpoint(fmt.Sprintf("routes[%d].from", i), r.From)
		for _, to := range r.To {
			endpoint(fmt.Sprintf("routes[%d].to", i), to)
		}
	}
	for _, l := range c.Listeners {
		if l.Name == "" {
			errs = append(errs, errors.New("listener without a name"))
		}
		pattern("listener "+l.Name, l.Pattern)
		if l.Response != "" {
			pattern("listener "+l.Name+" response", l.Response)
		}
		for _, f := range l.From {
			endpoint("listener "+l.Name, f)
		}
	}
	for i, q := range c.Inquiry {
		endpoint(fmt.Sprintf("inquiry[%d]", i), q.Endpoint)
		if q.Device < 0 || q.Device > 0x7F {
			errs = append(errs, fmt.Errorf("inquiry[%d]: device %d out of range", i, q.Device))
		}
	}
	for i, p := range c.Pulse {
		endpoint(fmt.Sprintf("pulse[%d]", i), p.Endpoint)
		if p.Setup != "" {
			pattern(fmt.Sprintf("pulse[%d].setup", i), p.Setup)
		}
		if p.Channel < 0 || p.Channel > 15 {
			errs = append(errs, fmt.Errorf("pulse[%d]: channel %d out of range", i, p.Channel))
		}
		for _, n := range p.Notes {
			if n < 0 || n > 0x7F {
				errs = append(errs, fmt.Errorf("pulse[%d]: note %d out of range", i, n))
			}
		}
	}
	return errors.Join(errs...)
}

// PollRate is the host port scan interval
func (c *Config) PollRate() time.Duration {
	if c.Ports.PollMillis <= 0 {
		return time.Second
	}
	return time.Duration(c.Ports.PollMillis) * time.Millisecond
}

// FindController finds a controller config by port name
func (c *Config) FindController(portName string) *ControllerConfig {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == portName {
			return &c.Controllers[i]
		}
	}
	return nil
}

// AddController adds or updates a controller config
func (c *Config) AddController(ctrl ControllerConfig) {
	for i := range c.Controllers {
		if c.Controllers[i].PortName == ctrl.PortName {
			c.Controllers[i] = ctrl
			return
		}
	}
	c.Controllers = append(c.Controllers, ctrl)
}

// AutoConnectControllers returns controllers with autoConnect enabled
func (c *Config) AutoConnectControllers() []ControllerConfig {
	var result []ControllerConfig
	for _, ctrl := range c.Controllers {
		if ctrl.AutoConnect {
			result = append(result, ctrl)
		}
	}
	return result
}

// IncludePorts is the port name filter: the configured fragments plus
// every auto-connect controller. Empty means every port.
func (c *Config) IncludePorts() []string {
	if len(c.Ports.Include) == 0 {
		return nil
	}
	out := append([]string(nil), c.Ports.Include...)
	for _, ctrl := range c.AutoConnectControllers() {
		out = append(out, ctrl.PortName)
	}
	return out
}
