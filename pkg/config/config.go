package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/thermo/internal/ncp"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// SimConfig holds settings of the NCP simulator.
type SimConfig struct {
	Interval          time.Duration `yaml:"interval" default:"1s"`
	StartMilliCelsius uint32        `yaml:"start_milli_celsius" default:"36550"`
	StepMilliCelsius  int32         `yaml:"step_milli_celsius" default:"10"`
	RSSI              int8          `yaml:"rssi" default:"-55"`
}

// Config holds application configuration
type Config struct {
	LogLevel logrus.Level `yaml:"log_level"`

	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate" default:"115200"`

	ScanPhy       ncp.Phy          `yaml:"scan_phy" default:"1"`
	DiscoverMode  ncp.DiscoverMode `yaml:"discover_mode" default:"2"`
	ConnectionPhy ncp.Phy          `yaml:"connection_phy" default:"1"`

	EventBuffer int    `yaml:"event_buffer" default:"64"`
	ResetOnExit bool   `yaml:"reset_on_exit" default:"true"`
	APIFile     string `yaml:"api_file"`
	Color       string `yaml:"color" default:"auto"`

	Sim SimConfig `yaml:"sim"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{LogLevel: logrus.WarnLevel}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns DefaultConfig overlaid with the YAML file at path. An empty
// path returns the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges. The port is not checked here since it may
// come from a flag.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel:
	default:
		return fmt.Errorf("%w: log_level %s (must be debug, info, warn, or error)", ErrInvalidConfig, c.LogLevel)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud_rate %d", ErrInvalidConfig, c.BaudRate)
	}
	for name, phy := range map[string]ncp.Phy{"scan_phy": c.ScanPhy, "connection_phy": c.ConnectionPhy} {
		switch phy {
		case ncp.Phy1M, ncp.Phy2M, ncp.PhyCoded:
		default:
			return fmt.Errorf("%w: %s %d (must be 1, 2 or 4)", ErrInvalidConfig, name, phy)
		}
	}
	if c.DiscoverMode > ncp.DiscoverObservation {
		return fmt.Errorf("%w: discover_mode %d (must be 0, 1 or 2)", ErrInvalidConfig, c.DiscoverMode)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("%w: event_buffer %d", ErrInvalidConfig, c.EventBuffer)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("%w: color %q (must be auto, always, or never)", ErrInvalidConfig, c.Color)
	}
	if c.Sim.Interval <= 0 {
		return fmt.Errorf("%w: sim.interval %s", ErrInvalidConfig, c.Sim.Interval)
	}
	return nil
}

// ScanParams returns the scanner settings.
func (c *Config) ScanParams() ncp.ScanParams {
	return ncp.ScanParams{Phy: c.ScanPhy, Mode: c.DiscoverMode}
}

// ColorEnabled reports whether output written to w should be coloured.
// In auto mode that means w is a terminal and NO_COLOR is unset.
func (c *Config) ColorEnabled(w io.Writer) bool {
	switch c.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
