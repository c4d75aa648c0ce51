package config

import (
	"bytes"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"get.pme.sh/wsjrpc/rate"
	"get.pme.sh/wsjrpc/util"

	"github.com/joho/godotenv"
	atomicfile "github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen           string        `yaml:"listen"`            // HTTP listen address for websocket clients
	Path             string        `yaml:"path"`              // Path of the websocket endpoint
	TCP              string        `yaml:"tcp"`               // Optional raw TCP listen address, yamux multiplexed
	QueueSize        int           `yaml:"queue_size"`        // Capacity of each connection's outbound queue
	ReadLimit        util.Size     `yaml:"read_limit"`        // Largest accepted message
	HandshakeTimeout util.Duration `yaml:"handshake_timeout"` // Websocket upgrade timeout
	WriteTimeout     util.Duration `yaml:"write_timeout"`     // Per message write deadline
	ShutdownTimeout  util.Duration `yaml:"shutdown_timeout"`  // Grace period for open connections on exit
	ConnectRate      rate.Rate     `yaml:"connect_rate"`      // Accepted connections per period, 0 for unlimited
	MaxConnections   int           `yaml:"max_connections"`   // Open sockets per listener, 0 for unlimited
}

const (
	DefaultListen    = "127.0.0.1:8080"
	DefaultPath      = "/"
	DefaultQueueSize = 64
	DefaultReadLimit = util.Size(16 << 20)
)

func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.ReadLimit.IsZero() {
		c.ReadLimit = DefaultReadLimit
	}
	if c.HandshakeTimeout.IsZero() {
		c.HandshakeTimeout = util.Duration(10 * time.Second)
	}
	if c.WriteTimeout.IsZero() {
		c.WriteTimeout = util.Duration(10 * time.Second)
	}
	if c.ShutdownTimeout.IsZero() {
		c.ShutdownTimeout = util.Duration(30 * time.Second)
	}
}

// applyEnv overrides fields from WSJRPC_* variables, which may come from the dotenv file.
func (c *Config) applyEnv() error {
	if v, ok := getenv("listen"); ok {
		c.Listen = v
	}
	if v, ok := getenv("path"); ok {
		c.Path = v
	}
	if v, ok := getenv("tcp"); ok {
		c.TCP = v
	}
	if v, ok := getenv("queue-size"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sQUEUE_SIZE", EnvPrefix)
		}
		c.QueueSize = n
	}
	if v, ok := getenv("read-limit"); ok {
		if err := c.ReadLimit.UnmarshalText([]byte(v)); err != nil {
			return errors.Wrapf(err, "invalid %sREAD_LIMIT", EnvPrefix)
		}
	}
	if v, ok := getenv("max-connections"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sMAX_CONNECTIONS", EnvPrefix)
		}
		c.MaxConnections = n
	}
	if v, ok := getenv("connect-rate"); ok {
		if err := c.ConnectRate.UnmarshalText([]byte(v)); err != nil {
			return errors.Wrapf(err, "invalid %sCONNECT_RATE", EnvPrefix)
		}
	}
	return nil
}

// Parse decodes a YAML document, unknown keys are rejected.
func Parse(data []byte) (c Config, err error) {
	if len(bytes.TrimSpace(data)) != 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&c); err != nil {
			return c, errors.Wrap(err, "config: invalid yaml")
		}
	}
	return c, nil
}

// Load reads the dotenv file if it exists, then the YAML file at path if any, then applies
// environment overrides and defaults.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "config: cannot load %s", envFile)
		}
	}

	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if c, err = Parse(data); err != nil {
			return nil, errors.Wrap(err, path)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.SetDefaults()
	settings.Store(&c)
	return &c, nil
}

var settings atomic.Pointer[Config]

// Get returns the last loaded configuration, or the defaults.
func Get() *Config {
	if res := settings.Load(); res != nil {
		return res
	}
	c := &Config{}
	c.SetDefaults()
	settings.CompareAndSwap(nil, c)
	return settings.Load()
}

// WriteDefault atomically writes a configuration file holding the defaults.
func WriteDefault(path string) error {
	c := &Config{}
	c.SetDefaults()
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.WithStack(err)
	}
	return atomicfile.WriteFile(path, bytes.NewReader(data))
}
