// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/spectrostat/internal/config"
	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/Thermoquad/spectrostat/pkg/rpiadaptor"
	"github.com/Thermoquad/spectrostat/pkg/simulator"
	"github.com/sirupsen/logrus"
)

// pollInterval is the gap between UpdateStatus calls while waiting for an
// acquisition
const pollInterval = time.Millisecond

// deviceAdaptor is an nsp32.Adaptor that owns host resources
type deviceAdaptor interface {
	nsp32.Adaptor
	Close() error
}

// openDevice builds the adaptor described by cfg, creates the driver and
// wakes the module. The returned description names the connection for
// status output.
func openDevice(cfg config.DeviceConfig, log logrus.FieldLogger) (*nsp32.NSP32, deviceAdaptor, string, error) {
	channel, err := cfg.DataChannel()
	if err != nil {
		return nil, nil, "", err
	}

	var (
		adaptor deviceAdaptor
		info    string
	)
	if cfg.Simulate {
		adaptor = simulator.New(simulator.WithLogger(log))
		info = fmt.Sprintf("Simulated NSP32 (%s)", channel)
	} else {
		a, err := rpiadaptor.Open(rpiadaptor.Config{
			Channel:       channel,
			ResetPin:      cfg.ResetPin,
			ReadyPin:      cfg.ReadyPin,
			SPISpeed:      cfg.SPISpeed,
			SPIChipSelect: cfg.SPIChipSelect,
			UARTPort:      cfg.Port,
			UARTBaud:      cfg.Baud,
			EdgeInterval:  cfg.EdgeInterval,
		}, rpiadaptor.WithLogger(log))
		if err != nil {
			return nil, nil, "", err
		}
		adaptor = a
		if channel == nsp32.ChannelUART {
			info = fmt.Sprintf("UART: %s @ %d baud", cfg.Port, cfg.Baud)
		} else {
			info = fmt.Sprintf("SPI: %d Hz, reset GPIO%d, ready GPIO%d", cfg.SPISpeed, cfg.ResetPin, cfg.ReadyPin)
		}
	}

	d := nsp32.New(adaptor, channel, nsp32.WithLogger(log))
	if err := d.Init(); err != nil {
		adaptor.Close()
		return nil, nil, "", fmt.Errorf("failed to initialize device: %w", err)
	}
	return d, adaptor, info, nil
}

// acquisition holds the parameters of one acquisition
type acquisition struct {
	mode            string // "spectrum" or "xyz"
	integrationTime uint16
	frameAvgNum     uint8
	enableAE        bool
}

func acquisitionFromConfig(cfg config.MonitorConfig) acquisition {
	return acquisition{
		mode:            strings.ToLower(cfg.Mode),
		integrationTime: cfg.IntegrationTime,
		frameAvgNum:     cfg.FrameAvg,
		enableAE:        cfg.AutoExposure,
	}
}

func (a acquisition) String() string {
	return fmt.Sprintf("%s it=%d avg=%d ae=%t", a.mode, a.integrationTime, a.frameAvgNum, a.enableAE)
}

// acquire starts an acquisition and polls the driver until its result has
// been retrieved. The driver stays pending if ctx ends first.
func acquire(ctx context.Context, d *nsp32.NSP32, acq acquisition) (*nsp32.ReturnPacket, error) {
	userCode := uint8(time.Now().UnixNano())

	var err error
	switch acq.mode {
	case "spectrum":
		err = d.AcqSpectrum(userCode, acq.integrationTime, acq.frameAvgNum, acq.enableAE)
	case "xyz":
		err = d.AcqXYZ(userCode, acq.integrationTime, acq.frameAvgNum, acq.enableAE)
	default:
		return nil, fmt.Errorf("unknown acquisition mode %q", acq.mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start acquisition: %w", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for d.AsyncPending() != nsp32.CmdUnknown {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquisition aborted: %w", ctx.Err())
		case <-ticker.C:
			d.UpdateStatus()
		}
	}

	p, ok := d.GetReturnPacket()
	if !ok {
		return nil, fmt.Errorf("acquisition finished without a result")
	}
	return p, nil
}
