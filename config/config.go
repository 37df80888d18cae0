package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nixxel-company-limited/escpos-print-agent/logging"
)

// EnvPrefix prefixes every environment override, e.g. ESCPOS_SERVER_ADDRESS
const EnvPrefix = "ESCPOS"

// Printer backends
const (
	BackendCUPS = "cups"
	BackendUSB  = "usb"
	BackendTCP  = "tcp"
)

// Config holds all agent configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Raw     RawConfig     `yaml:"raw"`
	Printer PrinterConfig `yaml:"printer"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RawConfig configures the raw TCP passthrough listener. An empty address
// disables it.
type RawConfig struct {
	Address string `yaml:"address"`
}

// PrinterConfig selects the print backend and device
type PrinterConfig struct {
	Backend      string        `yaml:"backend"`
	Name         string        `yaml:"name"`
	DocumentName string        `yaml:"document_name"`
	LazyOpen     bool          `yaml:"lazy_open"`
	TCPDevices   []string      `yaml:"tcp_devices"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Logging converts the log section into a logging.Config
func (l LogConfig) Logging() logging.Config {
	return logging.Config{Level: l.Level, Format: l.Format, Output: l.Output}
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0:9999")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("raw.address", "")
	v.SetDefault("printer.backend", BackendCUPS)
	v.SetDefault("printer.name", "")
	v.SetDefault("printer.document_name", "Print Job")
	v.SetDefault("printer.lazy_open", true)
	v.SetDefault("printer.tcp_devices", []string{})
	v.SetDefault("printer.dial_timeout", 3*time.Second)

	logDefaults := logging.DefaultConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.format", logDefaults.Format)
	v.SetDefault("log.output", logDefaults.Output)
}

// New returns a viper instance with defaults and environment overrides
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from configFile, or from agent.yaml in the
// usual locations when configFile is empty. A missing default file is not
// an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.escpos-agent")
		v.AddConfigPath("/etc/escpos-agent")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper builds a Config from the current viper state
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Address:      v.GetString("server.address"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Raw: RawConfig{
			Address: v.GetString("raw.address"),
		},
		Printer: PrinterConfig{
			Backend:      strings.ToLower(v.GetString("printer.backend")),
			Name:         v.GetString("printer.name"),
			DocumentName: v.GetString("printer.document_name"),
			LazyOpen:     v.GetBool("printer.lazy_open"),
			TCPDevices:   v.GetStringSlice("printer.tcp_devices"),
			DialTimeout:  v.GetDuration("printer.dial_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}
}

// Validate checks the configuration for values the agent cannot run with
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Address); err != nil {
		return fmt.Errorf("invalid server address %q: %w", c.Server.Address, err)
	}

	if c.Raw.Address != "" {
		if _, _, err := net.SplitHostPort(c.Raw.Address); err != nil {
			return fmt.Errorf("invalid raw address %q: %w", c.Raw.Address, err)
		}
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	switch c.Printer.Backend {
	case BackendCUPS, BackendUSB:
	case BackendTCP:
		if len(c.Printer.TCPDevices) == 0 {
			return fmt.Errorf("tcp backend requires at least one entry in printer.tcp_devices")
		}
	default:
		return fmt.Errorf("invalid printer backend: %s (valid: cups, usb, tcp)", c.Printer.Backend)
	}

	if c.Printer.DialTimeout < 0 {
		return fmt.Errorf("dial timeout must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Log.Level)
	}

	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Log.Format)
	}

	return nil
}
