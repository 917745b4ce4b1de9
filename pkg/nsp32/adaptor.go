// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import "time"

// Adaptor is the host side of the driver: reset and ready pins, the data
// bus, and timing. Only the methods matching the driver's DataChannel are
// used for data transfer.
type Adaptor interface {
	// Init prepares pins and bus, and registers onReady to be called on every
	// falling edge of the ready pin. onReady may be called from any goroutine.
	Init(onReady func()) error

	// ResetAssert switches the reset pin to output and drives it low
	ResetAssert() error
	// ResetRelease drives the reset pin high and switches it back to input
	ResetRelease() error

	// SPISend transmits p over SPI
	SPISend(p []byte) error
	// SPIReceive fills p with bytes clocked in over SPI
	SPIReceive(p []byte) error

	// UARTSend transmits p over UART
	UARTSend(p []byte) error
	// UARTBytesAvailable reports whether a received byte is waiting
	UARTBytesAvailable() bool
	// UARTReadByte returns the next received byte
	UARTReadByte() (byte, error)

	// Delay blocks for d
	Delay(d time.Duration)
	// StartTimer starts the elapsed-time counter used for UART timeouts
	StartTimer()
	// Elapsed returns the time passed since the last StartTimer call
	Elapsed() time.Duration
}
