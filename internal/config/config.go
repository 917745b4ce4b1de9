// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads spectrostat's YAML configuration
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"gopkg.in/yaml.v3"
)

// Config is the complete tool configuration
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Log     LogConfig     `yaml:"log"`
	Forward ForwardConfig `yaml:"forward"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// DeviceConfig describes how the module is wired to the host.
// Pin numbers are BCM GPIO numbers, not header positions.
type DeviceConfig struct {
	Channel       string        `yaml:"channel"` // "spi" or "uart"
	ResetPin      int           `yaml:"reset_pin"`
	ReadyPin      int           `yaml:"ready_pin"`
	SPISpeed      int           `yaml:"spi_speed"`
	SPIChipSelect uint8         `yaml:"spi_chip_select"`
	Port          string        `yaml:"port"`
	Baud          int           `yaml:"baud"`
	EdgeInterval  time.Duration `yaml:"edge_interval"`
	Simulate      bool          `yaml:"simulate"`
}

// LogConfig selects log level, format and destination
type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // "text" or "json"
	Output   string `yaml:"output"` // "stderr", "stdout" or "file"
	FilePath string `yaml:"file_path"`
}

// ForwardConfig configures the pass-through bridge
type ForwardConfig struct {
	UpstreamPort string        `yaml:"upstream_port"`
	UpstreamBaud int           `yaml:"upstream_baud"`
	UpstreamURL  string        `yaml:"upstream_url"`
	Username     string        `yaml:"username"`
	NoSSLVerify  bool          `yaml:"no_ssl_verify"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// MonitorConfig configures repeated acquisitions
type MonitorConfig struct {
	Mode            string        `yaml:"mode"` // "spectrum" or "xyz"
	IntegrationTime uint16        `yaml:"integration_time"`
	FrameAvg        uint8         `yaml:"frame_avg"`
	AutoExposure    bool          `yaml:"auto_exposure"`
	Interval        time.Duration `yaml:"interval"`
	History         int           `yaml:"history"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Channel:      "spi",
			ResetPin:     27,
			ReadyPin:     22,
			SPISpeed:     2000000,
			Baud:         115200,
			EdgeInterval: 100 * time.Microsecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Forward: ForwardConfig{
			UpstreamBaud: 115200,
			PollInterval: time.Millisecond,
		},
		Monitor: MonitorConfig{
			Mode:            "spectrum",
			IntegrationTime: 32,
			FrameAvg:        3,
			Interval:        time.Second,
			History:         20,
		},
	}
}

// Load reads path on top of the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the tool cannot use
func (c *Config) Validate() error {
	channel, err := c.Device.DataChannel()
	if err != nil {
		return err
	}
	if channel == nsp32.ChannelUART && c.Device.Port == "" && !c.Device.Simulate {
		return fmt.Errorf("device: uart channel requires port")
	}
	if c.Device.ResetPin == c.Device.ReadyPin {
		return fmt.Errorf("device: reset_pin and ready_pin must differ")
	}
	if c.Device.ResetPin < 0 || c.Device.ReadyPin < 0 {
		return fmt.Errorf("device: pin numbers must not be negative")
	}
	if c.Device.Baud < nsp32.UARTLowestBaudRate {
		return fmt.Errorf("device: baud %d below %d", c.Device.Baud, nsp32.UARTLowestBaudRate)
	}
	if c.Device.SPISpeed <= 0 {
		return fmt.Errorf("device: spi_speed must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Output) {
	case "", "stderr", "stdout":
	case "file":
		if c.Log.FilePath == "" {
			return fmt.Errorf("log: output file requires file_path")
		}
	default:
		return fmt.Errorf("log: unknown output %q", c.Log.Output)
	}

	if c.Forward.UpstreamPort != "" && c.Forward.UpstreamURL != "" {
		return fmt.Errorf("forward: upstream_port and upstream_url are mutually exclusive")
	}

	switch strings.ToLower(c.Monitor.Mode) {
	case "spectrum", "xyz":
	default:
		return fmt.Errorf("monitor: unknown mode %q", c.Monitor.Mode)
	}
	if c.Monitor.History <= 0 {
		return fmt.Errorf("monitor: history must be positive")
	}
	return nil
}

// DataChannel parses the channel name
func (d DeviceConfig) DataChannel() (nsp32.DataChannel, error) {
	switch strings.ToLower(d.Channel) {
	case "spi":
		return nsp32.ChannelSPI, nil
	case "uart":
		return nsp32.ChannelUART, nil
	default:
		return 0, fmt.Errorf("device: unknown channel %q (use spi or uart)", d.Channel)
	}
}
