package config

import (
	"time"

	"github.com/muurk/dosctl/internal/discovery"
	"github.com/muurk/dosctl/internal/dos"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Config represents the entire user configuration file.
// It holds preferences only; discovered devices are never persisted.
type Config struct {
	Version   int               `yaml:"version"`
	LogLevel  string            `yaml:"log_level,omitempty"` // debug, info, warn, error
	Discovery *DiscoveryPrefs   `yaml:"discovery,omitempty"`
	Server    *ServerPrefs      `yaml:"server,omitempty"`
	Aliases   map[string]string `yaml:"aliases,omitempty"` // Friendly name -> device address
}

// DiscoveryPrefs tunes mDNS discovery and group queries.
type DiscoveryPrefs struct {
	Service      string        `yaml:"service"`       // mDNS service type
	Domain       string        `yaml:"domain"`        // mDNS domain
	Port         int           `yaml:"port"`          // Device HTTP port; other announcements are ignored
	Families     []string      `yaml:"families"`      // Host name prefixes of supported products
	SettleWindow time.Duration `yaml:"settle_window"` // Quiet period before a scan counts as settled
	Refresh      time.Duration `yaml:"refresh"`       // mDNS browse round; silent speakers drop out after two
	ProbeTimeout time.Duration `yaml:"probe_timeout"` // Timeout of each device information request
	Retry        *RetryPrefs   `yaml:"retry,omitempty"`
}

// RetryPrefs bounds how long group queries wait for discovery.
type RetryPrefs struct {
	Attempts        int           `yaml:"attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// ServerPrefs configures "dosctl serve".
type ServerPrefs struct {
	Listen string `yaml:"listen"` // host:port of the HTTP API
}

// DefaultDiscoveryPrefs returns the built-in discovery settings.
func DefaultDiscoveryPrefs() *DiscoveryPrefs {
	policy := discovery.DefaultRetryPolicy()
	return &DiscoveryPrefs{
		Service:      discovery.ServiceType,
		Domain:       discovery.ServiceDomain,
		Port:         dos.DefaultPort,
		Families:     append([]string(nil), discovery.DefaultFamilies...),
		SettleWindow: discovery.DefaultSettleWindow,
		Refresh:      discovery.DefaultRefreshInterval,
		ProbeTimeout: dos.DefaultTimeout,
		Retry: &RetryPrefs{
			Attempts:        policy.Attempts,
			InitialInterval: policy.InitialInterval,
			MaxInterval:     policy.MaxInterval,
		},
	}
}

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Version:   CurrentVersion,
		Discovery: DefaultDiscoveryPrefs(),
		Server:    &ServerPrefs{Listen: "127.0.0.1:8780"},
		Aliases:   make(map[string]string),
	}
}

// fillDefaults completes a partially written file with defaults.
func (c *Config) fillDefaults() {
	defaults := New()
	if c.Discovery == nil {
		c.Discovery = defaults.Discovery
	} else {
		d := c.Discovery
		def := defaults.Discovery
		if d.Service == "" {
			d.Service = def.Service
		}
		if d.Domain == "" {
			d.Domain = def.Domain
		}
		if d.Port == 0 {
			d.Port = def.Port
		}
		if len(d.Families) == 0 {
			d.Families = def.Families
		}
		if d.SettleWindow == 0 {
			d.SettleWindow = def.SettleWindow
		}
		if d.Refresh == 0 {
			d.Refresh = def.Refresh
		}
		if d.ProbeTimeout == 0 {
			d.ProbeTimeout = def.ProbeTimeout
		}
		if d.Retry == nil {
			d.Retry = def.Retry
		}
	}
	if c.Server == nil {
		c.Server = defaults.Server
	}
	if c.Aliases == nil {
		c.Aliases = make(map[string]string)
	}
}

// ResolveAddress maps an alias to its address; anything else is returned as is.
func (c *Config) ResolveAddress(nameOrAddress string) string {
	if addr, ok := c.Aliases[nameOrAddress]; ok {
		return addr
	}
	return nameOrAddress
}

// SessionOptions builds discovery options from the preferences.
func (d *DiscoveryPrefs) SessionOptions() discovery.Options {
	source := discovery.NewZeroconfSource(d.Service, d.Domain)
	if d.Refresh > 0 {
		source.Refresh = d.Refresh
	}

	opts := discovery.Options{
		Source:       source,
		Filters:      []discovery.Filter{discovery.PortFilter(d.Port), discovery.FamilyFilter(d.Families)},
		Prober:       discovery.NewHTTPProber(d.Port, d.ProbeTimeout),
		SettleWindow: d.SettleWindow,
	}
	if d.Retry != nil {
		opts.Retry = discovery.RetryPolicy{
			Attempts:        d.Retry.Attempts,
			InitialInterval: d.Retry.InitialInterval,
			MaxInterval:     d.Retry.MaxInterval,
		}
	}
	return opts
}
