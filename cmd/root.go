// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/spectrostat/internal/config"
	"github.com/Thermoquad/spectrostat/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string

	// Device flags, applied over the config file when set
	channelName string
	portName    string
	baudRate    int
	spiSpeed    int
	resetPin    int
	readyPin    int
	simulate    bool

	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "spectrostat",
	Short: "NSP32 spectrometer tool",
	Long: `Spectrostat - A CLI tool for driving NSP32 spectrometer modules.

Talks to the module over SPI or UART, with GPIO for the reset and ready lines.
Provides commands for reading sensor information, running spectrum and XYZ
acquisitions, live monitoring, and bridging an upstream host to the module.

Device selection:
  SPI:       --channel spi [--spi-speed 2000000]
  UART:      --channel uart --port /dev/ttyAMA0 [--baud 115200]
  Simulated: --simulate

Settings may also be given in a YAML file with --config. Flags override the
file.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	pf.StringVar(&channelName, "channel", "spi", "Data channel (spi or uart)")
	pf.StringVarP(&portName, "port", "p", "", "Serial port device (uart only)")
	pf.IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (uart only)")
	pf.IntVar(&spiSpeed, "spi-speed", 2000000, "SPI clock in Hz (spi only)")
	pf.IntVar(&resetPin, "reset-pin", 27, "BCM GPIO number of the reset line")
	pf.IntVar(&readyPin, "ready-pin", 22, "BCM GPIO number of the ready line")
	pf.BoolVar(&simulate, "simulate", false, "Use the built-in simulated module")

	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
}

// loadConfig reads the config file, if any, and applies flags the user set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("channel") {
		cfg.Device.Channel = channelName
	}
	if flags.Changed("port") {
		cfg.Device.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Device.Baud = baudRate
	}
	if flags.Changed("spi-speed") {
		cfg.Device.SPISpeed = spiSpeed
	}
	if flags.Changed("reset-pin") {
		cfg.Device.ResetPin = resetPin
	}
	if flags.Changed("ready-pin") {
		cfg.Device.ReadyPin = readyPin
	}
	if flags.Changed("simulate") {
		cfg.Device.Simulate = simulate
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads configuration and builds the logger. The closer releases the
// log file.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, io.Closer, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	log, closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, closer, nil
}

// Execute runs the root command until it returns or the process is
// interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("spectrostat: %w", err)
	}
	return nil
}
