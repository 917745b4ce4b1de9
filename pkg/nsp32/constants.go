// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package nsp32 provides a Go driver for the nanoLambda NSP32 spectrometer
// module.
//
// The NSP32 speaks a fixed-length command/response protocol over SPI or UART,
// with a low-active reset line and a "ready" line that pulses low when an
// asynchronous acquisition completes. This package provides packet framing,
// checksum validation, the wakeup/standby state machine, asynchronous
// acquisition tracking, pass-through command forwarding and typed views over
// the returned data. Pin and bus access is delegated to an Adaptor supplied by
// the host.
package nsp32

import "time"

// CmdCode is a command function code
type CmdCode uint8

// Command codes
const (
	CmdUnknown       CmdCode = 0x00
	CmdHello         CmdCode = 0x01
	CmdStandby       CmdCode = 0x04
	CmdGetSensorId   CmdCode = 0x06
	CmdGetWavelength CmdCode = 0x24
	CmdAcqSpectrum   CmdCode = 0x26
	CmdGetSpectrum   CmdCode = 0x28
	CmdAcqXYZ        CmdCode = 0x2A
	CmdGetXYZ        CmdCode = 0x2C
)

// Packet framing prefix bytes
const (
	Prefix0 = 0x03
	Prefix1 = 0xBB
)

// Packet header layout
const (
	offsetPrefix0  = 0
	offsetPrefix1  = 1
	offsetCmdCode  = 2
	offsetUserCode = 3
	HeaderSize     = 4
)

// DataChannel selects the bus used to talk to the module
type DataChannel int

// Data channel values
const (
	ChannelSPI DataChannel = iota
	ChannelUART
)

// String returns the lowercase channel name
func (c DataChannel) String() string {
	switch c {
	case ChannelSPI:
		return "spi"
	case ChannelUART:
		return "uart"
	default:
		return "unknown"
	}
}

// CmdLength holds the fixed frame lengths for a command code, checksum
// included.
type CmdLength struct {
	Command int
	Return  int
}

// cmdTable maps every supported command code to its frame lengths.
// Codes not present have length 0 and are rejected.
var cmdTable = map[CmdCode]CmdLength{
	CmdHello:         {Command: 5, Return: 5},
	CmdStandby:       {Command: 5, Return: 5},
	CmdGetSensorId:   {Command: 5, Return: 10},
	CmdGetWavelength: {Command: 5, Return: 279},
	CmdAcqSpectrum:   {Command: 10, Return: 5},
	CmdGetSpectrum:   {Command: 5, Return: 565},
	CmdAcqXYZ:        {Command: 10, Return: 5},
	CmdGetXYZ:        {Command: 5, Return: 21},
}

// LookupLength returns the frame lengths for a raw command code.
// The boolean is false for codes the module does not understand.
func LookupLength(code uint8) (CmdLength, bool) {
	l, ok := cmdTable[CmdCode(code)]
	return l, ok
}

// CommandLength returns the command frame length for code, or 0 if unknown
func CommandLength(code CmdCode) int {
	return cmdTable[code].Command
}

// ReturnLength returns the response frame length for code, or 0 if unknown
func ReturnLength(code CmdCode) int {
	return cmdTable[code].Return
}

// Buffer capacities, sized to the largest command and response frames
var (
	CmdBufSize, RetBufSize = maxLengths()
)

func maxLengths() (cmd, ret int) {
	for _, l := range cmdTable {
		if l.Command > cmd {
			cmd = l.Command
		}
		if l.Return > ret {
			ret = l.Return
		}
	}
	return cmd, ret
}

// Timing constants
const (
	WakeupPulseHold  = 50 * time.Microsecond  // reset low pulse width
	CmdProcessTime   = 1 * time.Millisecond   // SPI gap between command and response
	CmdRetryInterval = 150 * time.Millisecond // delay before resending after a packet error

	UARTLowestBaudRate = 9600
)

// UARTTimeout is twice the transmission time of the largest response frame at
// the lowest supported baud rate. It does not depend on the configured baud.
var UARTTimeout = 2 * time.Duration(RetBufSize) * 8 * time.Second / UARTLowestBaudRate

// Acquisition payload layout
const (
	acqOffsetIntegration = 4
	acqOffsetFrameAvg    = 6
	acqOffsetEnableAE    = 7
	acqOffsetActiveRet   = 8
)

// Return payload layout
const (
	SensorIdSize = 5

	wavelengthOffsetCount  = 4
	wavelengthOffsetPoints = 8

	spectrumOffsetIntegration = 4
	spectrumOffsetSaturation  = 6
	spectrumOffsetCount       = 8
	spectrumOffsetPoints      = 12

	// SpectrumPoints is the fixed hardware point count; X/Y/Z follow it
	SpectrumPoints = 135

	xyzOffsetIntegration = 4
	xyzOffsetSaturation  = 6
	xyzOffsetX           = 8
	xyzOffsetY           = 12
	xyzOffsetZ           = 16
)
