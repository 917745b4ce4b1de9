// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rpiadaptor implements nsp32.Adaptor for Raspberry Pi class hosts.
//
// GPIO and SPI go through go-rpio (/dev/gpiomem, BCM pin numbers). UART goes
// through go.bug.st/serial, with a reader goroutine filling a byte queue the
// driver polls.
package rpiadaptor

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"
	"go.bug.st/serial"
)

// Defaults
const (
	DefaultSPISpeed     = 2000000 // 2 MHz
	DefaultBaudRate     = 115200
	DefaultEdgeInterval = 100 * time.Microsecond
)

// Config describes the wiring between host and module
type Config struct {
	Channel nsp32.DataChannel

	ResetPin int // BCM number
	ReadyPin int // BCM number

	SPISpeed      int
	SPIChipSelect uint8

	UARTPort string
	UARTBaud int

	// EdgeInterval is how often the ready pin's edge latch is polled
	EdgeInterval time.Duration
}

// Adaptor drives an NSP32 from the host's GPIO, SPI and UART peripherals
type Adaptor struct {
	cfg Config
	log logrus.FieldLogger

	reset rpio.Pin
	ready rpio.Pin

	watcher *edgeWatcher
	uart    *byteQueue

	timerMu   sync.Mutex
	timerFrom time.Time

	closeOnce sync.Once
}

// Option configures an Adaptor
type Option func(*Adaptor)

// WithLogger sets the logger for peripheral errors
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Adaptor) {
		a.log = log
	}
}

// Open validates cfg and prepares an adaptor. Peripherals are claimed by
// Init, which the driver calls.
func Open(cfg Config, opts ...Option) (*Adaptor, error) {
	if cfg.SPISpeed == 0 {
		cfg.SPISpeed = DefaultSPISpeed
	}
	if cfg.UARTBaud == 0 {
		cfg.UARTBaud = DefaultBaudRate
	}
	if cfg.EdgeInterval == 0 {
		cfg.EdgeInterval = DefaultEdgeInterval
	}
	if cfg.ResetPin == cfg.ReadyPin {
		return nil, fmt.Errorf("reset and ready pin must differ (both %d)", cfg.ResetPin)
	}
	if cfg.Channel == nsp32.ChannelUART && cfg.UARTPort == "" {
		return nil, fmt.Errorf("uart channel requires a port")
	}

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	a := &Adaptor{
		cfg:   cfg,
		log:   quiet,
		reset: rpio.Pin(cfg.ResetPin),
		ready: rpio.Pin(cfg.ReadyPin),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init claims GPIO and the data channel and starts watching the ready pin
func (a *Adaptor) Init(onReady func()) error {
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open rpio: %w", err)
	}

	a.reset.Input()
	a.ready.Input()
	a.ready.PullUp()
	a.ready.Detect(rpio.FallEdge)

	switch a.cfg.Channel {
	case nsp32.ChannelSPI:
		if err := rpio.SpiBegin(rpio.Spi0); err != nil {
			rpio.Close()
			return fmt.Errorf("failed to begin spi: %w", err)
		}
		rpio.SpiSpeed(a.cfg.SPISpeed)
		rpio.SpiChipSelect(a.cfg.SPIChipSelect)
		rpio.SpiMode(0, 0)

	case nsp32.ChannelUART:
		port, err := serial.Open(a.cfg.UARTPort, &serial.Mode{
			BaudRate: a.cfg.UARTBaud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			rpio.Close()
			return fmt.Errorf("failed to open serial port %s: %w", a.cfg.UARTPort, err)
		}
		a.uart = newByteQueue(port, 4*nsp32.RetBufSize, a.log)
	}

	a.watcher = newEdgeWatcher(a.ready, a.cfg.EdgeInterval, onReady)
	a.watcher.Start()

	a.log.WithFields(logrus.Fields{
		"channel":   a.cfg.Channel,
		"reset_pin": a.cfg.ResetPin,
		"ready_pin": a.cfg.ReadyPin,
	}).Debug("rpiadaptor: initialized")
	return nil
}

// Close stops the ready watcher and releases the peripherals
func (a *Adaptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
			a.ready.Detect(rpio.NoEdge)
		}
		if a.uart != nil {
			err = a.uart.Close()
		}
		if a.cfg.Channel == nsp32.ChannelSPI {
			rpio.SpiEnd(rpio.Spi0)
		}
		if cerr := rpio.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close rpio: %w", cerr)
		}
	})
	return err
}

// ResetAssert drives the reset pin low. Ready edges are ignored until
// ResetRelease.
func (a *Adaptor) ResetAssert() error {
	if a.watcher != nil {
		a.watcher.Pause()
	}
	a.reset.Output()
	a.reset.Low()
	return nil
}

// ResetRelease drops any ready edge latched during reset, then drives the
// reset pin high and returns it to input
func (a *Adaptor) ResetRelease() error {
	if a.watcher != nil {
		a.watcher.Resume()
	}
	a.reset.High()
	a.reset.Input()
	return nil
}

// SPISend clocks p out on SPI
func (a *Adaptor) SPISend(p []byte) error {
	rpio.SpiTransmit(p...)
	return nil
}

// SPIReceive clocks len(p) bytes in from SPI
func (a *Adaptor) SPIReceive(p []byte) error {
	copy(p, rpio.SpiReceive(len(p)))
	return nil
}

// UARTSend writes p to the serial port
func (a *Adaptor) UARTSend(p []byte) error {
	if a.uart == nil {
		return fmt.Errorf("uart not open")
	}
	_, err := a.uart.Write(p)
	return err
}

// UARTBytesAvailable reports whether a received byte is waiting
func (a *Adaptor) UARTBytesAvailable() bool {
	return a.uart != nil && a.uart.Available()
}

// UARTReadByte pops one received byte
func (a *Adaptor) UARTReadByte() (byte, error) {
	if a.uart == nil {
		return 0, fmt.Errorf("uart not open")
	}
	return a.uart.ReadByte()
}

// Delay blocks for d
func (a *Adaptor) Delay(d time.Duration) {
	time.Sleep(d)
}

// StartTimer starts the response timer
func (a *Adaptor) StartTimer() {
	a.timerMu.Lock()
	defer a.timerMu.Unlock()
	a.timerFrom = time.Now()
}

// Elapsed returns the monotonic time since StartTimer
func (a *Adaptor) Elapsed() time.Duration {
	a.timerMu.Lock()
	defer a.timerMu.Unlock()
	return time.Since(a.timerFrom)
}

var _ nsp32.Adaptor = (*Adaptor)(nil)
