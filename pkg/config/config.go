package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/peripheral-bridge/bridge-go/pkg/bulk"
	"github.com/peripheral-bridge/bridge-go/pkg/connection"
	"github.com/peripheral-bridge/bridge-go/pkg/discovery"
	"github.com/peripheral-bridge/bridge-go/pkg/notify"
	"github.com/peripheral-bridge/bridge-go/pkg/transport"
	"github.com/peripheral-bridge/bridge-go/pkg/wire"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Bus driver names.
const (
	DriverSim      = "sim"
	DriverExternal = "external"
)

// Sample source names.
const (
	SourceSynthetic = "synthetic"
	SourceBus       = "bus"
)

// Config is the bridge configuration.
type Config struct {
	Bridge     BridgeConfig     `yaml:"bridge"`
	Controller ControllerConfig `yaml:"controller"`
	Notify     NotifyConfig     `yaml:"notify"`
	Bus        BusConfig        `yaml:"bus"`
	Bulk       BulkConfig       `yaml:"bulk"`
	Sample     SampleConfig     `yaml:"sample"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Log        LogConfig        `yaml:"log"`
}

// BridgeConfig holds identity and session policy.
type BridgeConfig struct {
	// Name identifies the bridge in logs and discovery.
	Name string `yaml:"name"`

	// ResponseTransport and ResponseBus tag every response envelope.
	ResponseTransport string `yaml:"response_transport"`
	ResponseBus       string `yaml:"response_bus"`

	// CloseOnProtocolError closes the controller link when a batch holds
	// an unknown operation.
	CloseOnProtocolError bool `yaml:"close_on_protocol_error"`
}

// TLSConfig names PEM files. All empty means plain TCP.
type TLSConfig struct {
	Cert       string `yaml:"cert"`
	Key        string `yaml:"key"`
	CA         string `yaml:"ca"`
	ServerName string `yaml:"server_name"`
	Insecure   bool   `yaml:"insecure"`
}

// Enabled reports whether any TLS setting is present.
func (c TLSConfig) Enabled() bool {
	return c.Cert != "" || c.Key != "" || c.CA != "" || c.Insecure
}

// Load reads the certificates and returns the transport TLS settings, or
// nil when TLS is disabled.
func (c TLSConfig) Load() (*transport.TLSConfig, error) {
	if !c.Enabled() {
		return nil, nil
	}
	tc, err := transport.LoadTLSConfig(c.Cert, c.Key, c.CA)
	if err != nil {
		return nil, err
	}
	tc.ServerName = c.ServerName
	tc.InsecureSkipVerify = c.Insecure
	return tc, nil
}

// ControllerConfig describes the dial-out link to the controller.
type ControllerConfig struct {
	Address        string                    `yaml:"address"`
	TLS            TLSConfig                 `yaml:"tls"`
	MaxMessageSize uint32                    `yaml:"max_message_size"`
	DialTimeout    time.Duration             `yaml:"dial_timeout"`
	KeepAlive      transport.KeepAliveConfig `yaml:"keepalive"`
	Backoff        connection.BackoffConfig  `yaml:"backoff"`
}

// NotifyConfig describes the notification endpoint.
type NotifyConfig struct {
	Listen string    `yaml:"listen"`
	MTU    int       `yaml:"mtu"`
	TLS    TLSConfig `yaml:"tls"`
}

// BusConfig selects the bus driver.
type BusConfig struct {
	// Driver is "sim" for the simulated register file or "external" when
	// the embedding program supplies the driver.
	Driver string `yaml:"driver"`
}

// BulkConfig describes the payload streamed on the bulk channel.
type BulkConfig struct {
	Name string `yaml:"name"`

	// Path is the payload file. Empty serves the built-in payload.
	Path string `yaml:"path"`

	ChunkSize   int           `yaml:"chunk_size"`
	HeaderDelay time.Duration `yaml:"header_delay"`
	ChunkDelay  time.Duration `yaml:"chunk_delay"`
}

// SampleConfig describes the sample channel.
type SampleConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Source   string        `yaml:"source"`
	Register uint8         `yaml:"register"`
	Interval time.Duration `yaml:"interval"`
}

// DiscoveryConfig controls mDNS advertising.
type DiscoveryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interface string        `yaml:"interface"`
	TTL       time.Duration `yaml:"ttl"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is the slog level: debug, info, warn or error.
	Level string `yaml:"level"`

	// ProtocolLog is the path of the CBOR protocol log. Empty disables it.
	ProtocolLog string `yaml:"protocol_log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Name:                 "pbridge",
			ResponseTransport:    wire.TransportWebSocket.String(),
			ResponseBus:          wire.BusSPI.String(),
			CloseOnProtocolError: true,
		},
		Controller: ControllerConfig{
			Address:        fmt.Sprintf("localhost:%d", transport.DefaultPort),
			MaxMessageSize: transport.DefaultMaxMessageSize,
			DialTimeout:    10 * time.Second,
			KeepAlive:      transport.DefaultKeepAliveConfig(),
			Backoff:        connection.DefaultBackoffConfig(),
		},
		Notify: NotifyConfig{
			Listen: fmt.Sprintf(":%d", discovery.DefaultPort),
			MTU:    notify.DefaultMTU,
		},
		Bus: BusConfig{
			Driver: DriverSim,
		},
		Bulk: BulkConfig{
			Name:        "default",
			ChunkSize:   bulk.DefaultChunkSize,
			HeaderDelay: bulk.DefaultHeaderDelay,
			ChunkDelay:  bulk.DefaultChunkDelay,
		},
		Sample: SampleConfig{
			Enabled:  true,
			Source:   SourceSynthetic,
			Interval: 10 * time.Millisecond,
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
			TTL:     discovery.DefaultAdvertiserConfig().TTL,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Parse overlays YAML data onto the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field constraints. All problems
// are reported together.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Bridge.Name == "" {
		fail("bridge.name is required")
	}
	if _, ok := wire.ParseTransportType(c.Bridge.ResponseTransport); !ok {
		fail("bridge.response_transport %q is unknown", c.Bridge.ResponseTransport)
	}
	if _, ok := wire.ParseBusType(c.Bridge.ResponseBus); !ok {
		fail("bridge.response_bus %q is unknown", c.Bridge.ResponseBus)
	}

	if c.Controller.Address == "" {
		fail("controller.address is required")
	}
	if c.Controller.MaxMessageSize == 0 {
		fail("controller.max_message_size must be positive")
	}
	ka := c.Controller.KeepAlive
	if ka.Enabled() && ka.PingInterval > 0 && ka.PongTimeout >= ka.PingInterval {
		fail("controller.keepalive.pong_timeout (%s) must be shorter than ping_interval (%s)", ka.PongTimeout, ka.PingInterval)
	}
	if b := c.Controller.Backoff; b.Multiplier != 0 && b.Multiplier < 1 {
		fail("controller.backoff.multiplier must be at least 1")
	}
	if b := c.Controller.Backoff; b.Jitter < 0 || b.Jitter > 1 {
		fail("controller.backoff.jitter must be within [0, 1]")
	}

	if c.Notify.MTU < bulk.HeaderSize {
		fail("notify.mtu %d is below the %d byte bulk header", c.Notify.MTU, bulk.HeaderSize)
	}

	switch c.Bus.Driver {
	case DriverSim, DriverExternal:
	default:
		fail("bus.driver %q is unknown", c.Bus.Driver)
	}

	if err := bulk.ValidateName(c.Bulk.Name); err != nil {
		fail("bulk.name: %v", err)
	}
	if c.Bulk.ChunkSize <= 0 || c.Bulk.ChunkSize > c.Notify.MTU {
		fail("bulk.chunk_size %d must be within [1, notify.mtu]", c.Bulk.ChunkSize)
	}
	if c.Bulk.HeaderDelay < 0 || c.Bulk.ChunkDelay < 0 {
		fail("bulk delays must not be negative")
	}

	if c.Sample.Enabled {
		switch c.Sample.Source {
		case SourceSynthetic, SourceBus:
		default:
			fail("sample.source %q is unknown", c.Sample.Source)
		}
		if c.Sample.Interval <= 0 {
			fail("sample.interval must be positive")
		}
		if c.Sample.Register&0x80 != 0 {
			fail("sample.register 0x%02x overlaps the read flag", c.Sample.Register)
		}
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		fail("log.%v", err)
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("level %q is unknown", name)
	}
}

// ResponseTags returns the parsed response envelope tags.
func (c *Config) ResponseTags() (wire.TransportType, wire.BusType) {
	t, _ := wire.ParseTransportType(c.Bridge.ResponseTransport)
	b, _ := wire.ParseBusType(c.Bridge.ResponseBus)
	return t, b
}
