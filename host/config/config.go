// Package config loads the host tools' JSON configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"ada/host/serial"
	"ada/sensors/color"
	"ada/sensors/ultrasound"
)

// Config describes how to reach the robot and the defaults for queries
type Config struct {
	Device           string `json:"device"`
	Baud             int    `json:"baud"`
	ReadTimeoutMS    int    `json:"read_timeout_ms"`
	CommandTimeoutMS int    `json:"command_timeout_ms"`

	// Unit is the default distance unit: cm, inches or microseconds
	Unit string `json:"unit"`

	// Tolerance is the default color match tolerance
	Tolerance int `json:"tolerance"`
}

// LoadConfig parses a JSON configuration and fills in defaults
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config

	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFile reads and parses the configuration at path
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := LoadConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *Config) {
	if config.Device == "" {
		config.Device = "/dev/ttyACM0"
	}
	if config.Baud == 0 {
		config.Baud = serial.DefaultBaud
	}
	if config.ReadTimeoutMS == 0 {
		config.ReadTimeoutMS = 100
	}
	if config.CommandTimeoutMS == 0 {
		config.CommandTimeoutMS = 1000
	}
	if config.Unit == "" {
		config.Unit = ultrasound.Centimeters.String()
	}
	if config.Tolerance == 0 {
		config.Tolerance = color.DefaultTolerance
	}
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

// Validate checks the fields that have no sensible fallback
func (c *Config) Validate() error {
	if c.Baud < 0 || c.ReadTimeoutMS < 0 || c.CommandTimeoutMS < 0 {
		return fmt.Errorf("baud and timeouts must not be negative")
	}
	if _, err := ultrasound.ParseUnit(c.Unit); err != nil {
		return fmt.Errorf("unit %q: %w", c.Unit, err)
	}
	if c.Tolerance < color.MinTolerance || c.Tolerance > color.MaxTolerance {
		return fmt.Errorf("tolerance %d outside [%d, %d]", c.Tolerance, color.MinTolerance, color.MaxTolerance)
	}
	return nil
}

// DistanceUnit returns the configured default unit
func (c *Config) DistanceUnit() ultrasound.Unit {
	unit, err := ultrasound.ParseUnit(c.Unit)
	if err != nil {
		return ultrasound.Centimeters
	}
	return unit
}

// CommandTimeout bounds one command/response exchange
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}

// Serial returns the port settings
func (c *Config) Serial() *serial.Config {
	return &serial.Config{
		Device:      c.Device,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeoutMS,
	}
}
