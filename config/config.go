// Package config loads the TOML file shared by the portald processes and the client CLI.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"portal-rpc/loadbalance"
	"portal-rpc/message"
	"portal-rpc/registry"
)

const (
	DefaultHost            = "127.0.0.1"
	DefaultBasePort        = 8002
	DefaultMaxConns        = 64
	DefaultIOTimeout       = 10 * time.Second
	DefaultBackendTimeout  = 5 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultDataDir         = "data"
	DefaultSecret          = "portal"

	RegistryStatic = "static"
	RegistryEtcd   = "etcd"
)

var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration written as a string such as "5s" in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type RateLimit struct {
	// RPS is the sustained request rate. Zero disables rate limiting.
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

type Registry struct {
	Kind      string   `toml:"kind"`
	Endpoints []string `toml:"endpoints"`
	// TTL is the lease of a registration in seconds.
	TTL    int64  `toml:"ttl"`
	Prefix string `toml:"prefix"`
}

type Config struct {
	Host            string    `toml:"host"`
	BasePort        int       `toml:"base_port"`
	MaxConns        int       `toml:"max_conns"`
	IOTimeout       Duration  `toml:"io_timeout"`
	BackendTimeout  Duration  `toml:"backend_timeout"`
	ShutdownTimeout Duration  `toml:"shutdown_timeout"`
	DataDir         string    `toml:"data_dir"`
	Secret          string    `toml:"secret"`
	Balancer        string    `toml:"balancer"`
	RateLimit       RateLimit `toml:"rate_limit"`
	Registry        Registry  `toml:"registry"`
}

func Default() Config {
	return Config{
		Host:            DefaultHost,
		BasePort:        DefaultBasePort,
		MaxConns:        DefaultMaxConns,
		IOTimeout:       Duration(DefaultIOTimeout),
		BackendTimeout:  Duration(DefaultBackendTimeout),
		ShutdownTimeout: Duration(DefaultShutdownTimeout),
		DataDir:         DefaultDataDir,
		Secret:          DefaultSecret,
		Balancer:        "round_robin",
		Registry: Registry{
			Kind:   RegistryStatic,
			TTL:    10,
			Prefix: registry.DefaultPrefix,
		},
	}
}

// Load reads path over the defaults and validates the result. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: load %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Wrapf(ErrInvalid, "%s: unknown key %s", path, undecoded[0])
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Host = strings.TrimSpace(c.Host)
	c.Balancer = strings.TrimSpace(c.Balancer)
	c.Registry.Kind = strings.ToLower(strings.TrimSpace(c.Registry.Kind))
	if c.Registry.Kind == "" {
		c.Registry.Kind = RegistryStatic
	}
}

func (c Config) Validate() error {
	if c.Host == "" {
		return errors.Wrap(ErrInvalid, "host is required")
	}
	last := c.BasePort + len(message.Domains())
	if c.BasePort <= 0 || last > 65535 {
		return errors.Wrapf(ErrInvalid, "base_port %d leaves no room for %d services", c.BasePort, len(message.Domains()))
	}
	if c.MaxConns < 0 {
		return errors.Wrapf(ErrInvalid, "max_conns %d", c.MaxConns)
	}
	if c.IOTimeout < 0 || c.BackendTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.Wrap(ErrInvalid, "timeouts must not be negative")
	}
	if _, err := loadbalance.New(c.Balancer); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.Wrap(ErrInvalid, "rate_limit must not be negative")
	}
	switch c.Registry.Kind {
	case RegistryStatic:
	case RegistryEtcd:
		if len(c.Registry.Endpoints) == 0 {
			return errors.Wrap(ErrInvalid, "registry.endpoints is required for etcd")
		}
		if c.Registry.TTL <= 0 {
			return errors.Wrapf(ErrInvalid, "registry.ttl %d", c.Registry.TTL)
		}
	default:
		return errors.Wrapf(ErrInvalid, "registry.kind %q", c.Registry.Kind)
	}
	return nil
}

// GatewayAddr is the listening address of the gateway.
func (c Config) GatewayAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.BasePort))
}

// ServiceAddr is the listening address of the microservice of domain d.
func (c Config) ServiceAddr(d message.Domain) string {
	return net.JoinHostPort(c.Host, strconv.Itoa(registry.Port(c.BasePort, d)))
}

// OpenRegistry returns the resolver selected by the registry section, and a function that
// releases it.
func (c Config) OpenRegistry() (registry.Registry, func() error, error) {
	if c.Registry.Kind != RegistryEtcd {
		return registry.NewStatic(c.Host, c.BasePort), func() error { return nil }, nil
	}
	reg, err := registry.NewEtcdRegistry(c.Registry.Endpoints, c.Registry.Prefix, c.IOTimeout.Std())
	if err != nil {
		return nil, nil, err
	}
	return reg, reg.Close, nil
}
