// Package config loads qnet configuration from files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"
	"github.com/progrium/qnet-go/transport"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Network NetworkConfig `mapstructure:"network"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// NetworkConfig tunes channels and the addresses a node binds or dials.
type NetworkConfig struct {
	// Listen addresses such as tcp://0.0.0.0:14004 or mpsc://local
	Listen []string `mapstructure:"listen"`
	// Connect addresses dialed at startup
	Connect []string `mapstructure:"connect"`

	// Bandwidth is the per channel budget in bytes per second
	Bandwidth ByteSize `mapstructure:"bandwidth"`
	// Tick is the scheduling interval of a channel
	Tick time.Duration `mapstructure:"tick"`
	// AllocBlock bounds bytes allocated ahead of received message data
	AllocBlock ByteSize `mapstructure:"alloc_block"`
	// MaxMessageSize rejects larger incoming messages; 0 disables the check
	MaxMessageSize ByteSize `mapstructure:"max_message_size"`
	// WriteTimeout is how long a single transport write may block
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// HandshakeTimeout bounds accepted channels that never handshake
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	// Codec is the stream payload codec: cbor or json
	Codec string `mapstructure:"codec"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			Listen:           []string{fmt.Sprintf("tcp://0.0.0.0:%d", transport.DefaultPort)},
			Bandwidth:        25 * humanize.MByte,
			Tick:             10 * time.Millisecond,
			AllocBlock:       16 * humanize.MiByte,
			WriteTimeout:     time.Millisecond,
			HandshakeTimeout: 10 * time.Second,
			Codec:            "cbor",
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Metrics: MetricsConfig{
			Addr:      "127.0.0.1:9104",
			Namespace: "qnet",
		},
	}
}

// Load reads configuration from path (if non-empty), or from qnet.yaml in
// the usual places, and applies environment overrides with the QNET prefix.
// Example: QNET_NETWORK_BANDWIDTH=10MB
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("QNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("network.listen", cfg.Network.Listen)
	v.SetDefault("network.connect", cfg.Network.Connect)
	v.SetDefault("network.bandwidth", uint64(cfg.Network.Bandwidth))
	v.SetDefault("network.tick", cfg.Network.Tick)
	v.SetDefault("network.alloc_block", uint64(cfg.Network.AllocBlock))
	v.SetDefault("network.max_message_size", uint64(cfg.Network.MaxMessageSize))
	v.SetDefault("network.write_timeout", cfg.Network.WriteTimeout)
	v.SetDefault("network.handshake_timeout", cfg.Network.HandshakeTimeout)
	v.SetDefault("network.codec", cfg.Network.Codec)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("metrics.enable", cfg.Metrics.Enable)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)

	if path == "" {
		path = os.Getenv("QNET_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("qnet")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".qnet"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		StringToByteSizeHookFunc(),
	))
	if err := v.Unmarshal(cfg, hooks); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}

	n := &c.Network
	if n.Bandwidth == 0 {
		return errors.New("network.bandwidth must be positive")
	}
	if n.Tick <= 0 {
		return fmt.Errorf("invalid network.tick: %s", n.Tick)
	}
	if n.AllocBlock == 0 {
		return errors.New("network.alloc_block must be positive")
	}
	if n.WriteTimeout <= 0 {
		n.WriteTimeout = time.Millisecond
	}
	for _, addrs := range [][]string{n.Listen, n.Connect} {
		for _, a := range addrs {
			if _, err := transport.ParseAddress(a); err != nil {
				return err
			}
		}
	}
	n.Codec = strings.ToLower(strings.TrimSpace(n.Codec))
	switch n.Codec {
	case "":
		n.Codec = "cbor"
	case "cbor", "json":
	default:
		return fmt.Errorf("invalid network.codec: %q", n.Codec)
	}
	return nil
}
