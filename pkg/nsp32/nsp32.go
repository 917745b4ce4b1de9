// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import (
	"encoding/binary"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// NSP32 drives one spectrometer module. It is not safe for concurrent use:
// a single goroutine must issue all commands. OnReadyTriggered is the only
// method that may be called from elsewhere.
type NSP32 struct {
	adaptor Adaptor
	channel DataChannel
	log     logrus.FieldLogger

	isActive       bool
	userCode       uint8
	asyncCmdCode   CmdCode
	readyTriggered atomic.Bool
	cmdBuf         []byte

	retPacketSize int
	retBuf        []byte

	fwd forwardBuffer

	stats counters
}

// Option configures an NSP32
type Option func(*NSP32)

// WithLogger sets the logger used for wakeups, retries and discarded
// forward bytes. The default discards all output.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *NSP32) {
		d.log = log
	}
}

// New creates a driver bound to adaptor, using channel for data transfer.
// Call Init before issuing commands.
func New(adaptor Adaptor, channel DataChannel, opts ...Option) *NSP32 {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	d := &NSP32{
		adaptor:      adaptor,
		channel:      channel,
		log:          quiet,
		asyncCmdCode: CmdUnknown,
		cmdBuf:       make([]byte, CmdBufSize),
		retBuf:       make([]byte, RetBufSize),
		fwd:          newForwardBuffer(),
	}
	d.stats.startTime = time.Now()
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init initializes the adaptor, then resets the module and waits until it
// answers
func (d *NSP32) Init() error {
	if err := d.adaptor.Init(d.OnReadyTriggered); err != nil {
		return fmt.Errorf("adaptor init: %w", err)
	}
	d.Wakeup()
	return nil
}

// Channel returns the data channel selected at construction
func (d *NSP32) Channel() DataChannel {
	return d.channel
}

// IsActive reports whether the module is in active mode
func (d *NSP32) IsActive() bool {
	return d.isActive
}

// AsyncPending returns the command waiting for a ready trigger, or
// CmdUnknown if none
func (d *NSP32) AsyncPending() CmdCode {
	return d.asyncCmdCode
}

// Statistics returns a snapshot of the driver counters. It may be called
// from any goroutine.
func (d *NSP32) Statistics() Statistics {
	return d.stats.snapshot()
}

// OnReadyTriggered records a falling edge on the ready pin. It is meant to
// be registered as the pin's interrupt handler and may run on any goroutine.
func (d *NSP32) OnReadyTriggered() {
	d.readyTriggered.Store(true)
}

// Wakeup resets the module and repeats the reset until it answers Hello.
// It blocks without timeout: a module that never signals ready after reset
// has a hardware fault.
func (d *NSP32) Wakeup() {
	for attempt := 1; ; attempt++ {
		d.stats.wakeups.Add(1)

		if err := d.adaptor.ResetAssert(); err != nil {
			d.log.WithError(err).Warn("nsp32: reset assert failed")
		}
		d.adaptor.Delay(WakeupPulseHold)

		// clear before release so the boot trigger cannot be missed
		d.readyTriggered.Store(false)

		if err := d.adaptor.ResetRelease(); err != nil {
			d.log.WithError(err).Warn("nsp32: reset release failed")
		}

		for !d.readyTriggered.Load() {
			runtime.Gosched()
		}

		err := d.SendCmd(CmdHello, 0, true, false, false)
		if err == nil {
			break
		}
		d.log.WithFields(logrus.Fields{"attempt": attempt, "error": err}).Warn("nsp32: no hello after reset, resetting again")
	}

	d.isActive = true
	d.log.Debug("nsp32: active")
}

// Hello sends a hello command. Wakes the module first if in standby.
func (d *NSP32) Hello(userCode uint8) error {
	d.ensureActive()
	return d.SendCmd(CmdHello, userCode, false, false, false)
}

// Standby puts the module into standby mode. If it already is, the response
// packet is generated locally without touching the bus. Otherwise the
// command is repeated, with a reset in between, until the module confirms.
func (d *NSP32) Standby(userCode uint8) {
	if !d.isActive {
		d.retBuf[offsetPrefix0] = Prefix0
		d.retBuf[offsetPrefix1] = Prefix1
		d.retBuf[offsetCmdCode] = byte(CmdStandby)
		d.retBuf[offsetUserCode] = userCode
		PlaceChecksum(d.retBuf, ReturnLength(CmdStandby)-1)

		d.retPacketSize = ReturnLength(CmdStandby)
		return
	}

	for {
		if err := d.SendCmd(CmdStandby, userCode, false, false, false); err == nil {
			d.isActive = false
			d.log.Debug("nsp32: standby")
			return
		}
		d.log.Warn("nsp32: standby not confirmed, resetting")
		d.Wakeup()
	}
}

// GetSensorId requests the sensor id. Wakes the module first if in standby.
func (d *NSP32) GetSensorId(userCode uint8) error {
	d.ensureActive()
	return d.SendCmd(CmdGetSensorId, userCode, false, false, false)
}

// GetWavelength requests the wavelength table. Wakes the module first if in
// standby.
func (d *NSP32) GetWavelength(userCode uint8) error {
	d.ensureActive()
	return d.SendCmd(CmdGetWavelength, userCode, false, false, false)
}

// AcqSpectrum starts a spectrum acquisition. The data is retrieved by
// UpdateStatus once the module signals ready.
func (d *NSP32) AcqSpectrum(userCode uint8, integrationTime uint16, frameAvgNum uint8, enableAE bool) error {
	return d.startAcquisition(CmdAcqSpectrum, userCode, integrationTime, frameAvgNum, enableAE)
}

// AcqXYZ starts an XYZ acquisition. The data is retrieved by UpdateStatus
// once the module signals ready.
func (d *NSP32) AcqXYZ(userCode uint8, integrationTime uint16, frameAvgNum uint8, enableAE bool) error {
	return d.startAcquisition(CmdAcqXYZ, userCode, integrationTime, frameAvgNum, enableAE)
}

func (d *NSP32) startAcquisition(code CmdCode, userCode uint8, integrationTime uint16, frameAvgNum uint8, enableAE bool) error {
	d.ensureActive()

	binary.LittleEndian.PutUint16(d.cmdBuf[acqOffsetIntegration:], integrationTime)
	d.cmdBuf[acqOffsetFrameAvg] = frameAvgNum
	d.cmdBuf[acqOffsetEnableAE] = 0
	if enableAE {
		d.cmdBuf[acqOffsetEnableAE] = 1
	}
	d.cmdBuf[acqOffsetActiveRet] = 0 // no active return

	// The acknowledgement carries no data and stays hidden
	return d.SendCmd(code, userCode, true, true, true)
}

func (d *NSP32) ensureActive() {
	if !d.isActive {
		d.Wakeup()
	}
}

// UpdateStatus retrieves the result of a finished asynchronous acquisition
// and executes one pending forwarded command. Call it repeatedly from the
// goroutine that owns the driver.
func (d *NSP32) UpdateStatus() {
	if d.readyTriggered.Load() {
		var retrieve CmdCode
		switch d.asyncCmdCode {
		case CmdAcqSpectrum:
			retrieve = CmdGetSpectrum
		case CmdAcqXYZ:
			retrieve = CmdGetXYZ
		}
		if retrieve != CmdUnknown {
			d.stats.asyncCompleted.Add(1)
			// retrieval is synchronous, so it also clears the pending marker
			if err := d.SendCmd(retrieve, d.userCode, false, false, true); err != nil {
				d.asyncCmdCode = CmdUnknown
				d.log.WithFields(logrus.Fields{"cmd": FormatCmdCode(retrieve), "error": err}).Warn("nsp32: acquisition retrieval failed")
			}
		}
	}

	if !d.fwd.filled {
		return
	}

	n := d.fwd.take(d.cmdBuf)
	d.stats.forwardedCommands.Add(1)

	code := CmdCode(d.cmdBuf[offsetCmdCode])
	userCode := d.cmdBuf[offsetUserCode]
	d.log.WithFields(logrus.Fields{"cmd": FormatCmdCode(code), "user_code": userCode, "len": n}).Debug("nsp32: forwarded command")

	var err error
	switch code {
	case CmdHello:
		err = d.Hello(userCode)
	case CmdStandby:
		d.Standby(userCode)
	case CmdGetSensorId:
		err = d.GetSensorId(userCode)
	case CmdGetWavelength:
		err = d.GetWavelength(userCode)
	case CmdAcqSpectrum, CmdAcqXYZ:
		integrationTime := binary.LittleEndian.Uint16(d.cmdBuf[acqOffsetIntegration:])
		frameAvgNum := d.cmdBuf[acqOffsetFrameAvg]
		enableAE := d.cmdBuf[acqOffsetEnableAE] != 0
		if code == CmdAcqSpectrum {
			err = d.AcqSpectrum(userCode, integrationTime, frameAvgNum, enableAE)
		} else {
			err = d.AcqXYZ(userCode, integrationTime, frameAvgNum, enableAE)
		}
	}
	if err != nil {
		d.log.WithError(err).Debug("nsp32: forwarded command failed")
	}
}

// FwdCmdByte feeds one byte received from an upstream host into the
// forwarding buffer. Once a complete command with a valid checksum has been
// collected it is executed by the next UpdateStatus call; until then further
// bytes are ignored. Malformed sequences are dropped silently.
func (d *NSP32) FwdCmdByte(b byte) {
	if d.fwd.push(b) {
		d.stats.forwardDiscards.Add(1)
		d.log.WithField("byte", fmt.Sprintf("0x%02X", b)).Debug("nsp32: forward bytes discarded")
	}
}

// IsFwdCmdFilled reports whether a forwarded command is waiting for
// UpdateStatus
func (d *NSP32) IsFwdCmdFilled() bool {
	return d.fwd.filled
}

// SendCmd frames and transmits a command and validates the response.
//
// keepSilent hides a valid response from GetReturnPacket. waitAsyncTrigger
// marks the command as pending a ready trigger. retryOnError resends after
// CmdRetryInterval until a valid response arrives; otherwise the first
// failure is returned as ErrResponseInvalid.
func (d *NSP32) SendCmd(code CmdCode, userCode uint8, keepSilent, waitAsyncTrigger, retryOnError bool) error {
	l, ok := cmdTable[code]
	if !ok {
		return fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(code))
	}
	if d.channel != ChannelSPI && d.channel != ChannelUART {
		return fmt.Errorf("nsp32: unsupported data channel %d", d.channel)
	}

	d.cmdBuf[offsetPrefix0] = Prefix0
	d.cmdBuf[offsetPrefix1] = Prefix1
	d.cmdBuf[offsetCmdCode] = byte(code)
	d.cmdBuf[offsetUserCode] = userCode
	PlaceChecksum(d.cmdBuf, l.Command-1)

	d.retPacketSize = 0
	d.userCode = userCode
	if waitAsyncTrigger {
		d.asyncCmdCode = code
		d.readyTriggered.Store(false)
	} else {
		d.asyncCmdCode = CmdUnknown
	}

	for {
		err := d.transfer(l)
		if err == nil {
			err = d.validate(code, userCode, l.Return)
		}
		if err == nil {
			d.stats.responsesValid.Add(1)
			if !keepSilent {
				d.retPacketSize = l.Return
			}
			return nil
		}

		d.stats.responsesInvalid.Add(1)
		if !retryOnError {
			return err
		}

		d.stats.retries.Add(1)
		d.log.WithFields(logrus.Fields{"cmd": FormatCmdCode(code), "error": err}).Debug("nsp32: retrying command")
		d.adaptor.Delay(CmdRetryInterval)
	}
}

// transfer sends the framed command and reads exactly n.Return bytes
func (d *NSP32) transfer(l CmdLength) error {
	d.stats.commandsSent.Add(1)

	switch d.channel {
	case ChannelSPI:
		if err := d.adaptor.SPISend(d.cmdBuf[:l.Command]); err != nil {
			return fmt.Errorf("%w: spi send: %v", ErrResponseInvalid, err)
		}
		d.adaptor.Delay(CmdProcessTime)
		if err := d.adaptor.SPIReceive(d.retBuf[:l.Return]); err != nil {
			return fmt.Errorf("%w: spi receive: %v", ErrResponseInvalid, err)
		}
		return nil

	case ChannelUART:
		// drop anything left over from an earlier exchange
		for d.adaptor.UARTBytesAvailable() {
			if _, err := d.adaptor.UARTReadByte(); err != nil {
				break
			}
		}

		if err := d.adaptor.UARTSend(d.cmdBuf[:l.Command]); err != nil {
			return fmt.Errorf("%w: uart send: %v", ErrResponseInvalid, err)
		}
		d.adaptor.StartTimer()

		writeIdx := 0
		for writeIdx < l.Return {
			if elapsed := d.adaptor.Elapsed(); elapsed > UARTTimeout {
				d.stats.timeouts.Add(1)
				return fmt.Errorf("%w: uart timeout after %v (%d/%d bytes)", ErrResponseInvalid, elapsed, writeIdx, l.Return)
			}
			for writeIdx < l.Return && d.adaptor.UARTBytesAvailable() {
				b, err := d.adaptor.UARTReadByte()
				if err != nil {
					return fmt.Errorf("%w: uart read: %v", ErrResponseInvalid, err)
				}
				d.retBuf[writeIdx] = b
				writeIdx++
			}
		}
	}
	return nil
}

// validate checks the captured response against the command just sent
func (d *NSP32) validate(code CmdCode, userCode uint8, n int) error {
	r := d.retBuf
	switch {
	case r[offsetPrefix0] != Prefix0 || r[offsetPrefix1] != Prefix1:
		return fmt.Errorf("%w: prefix %02X %02X", ErrResponseInvalid, r[offsetPrefix0], r[offsetPrefix1])
	case r[offsetCmdCode] != byte(code):
		return fmt.Errorf("%w: cmd code 0x%02X, want 0x%02X", ErrResponseInvalid, r[offsetCmdCode], byte(code))
	case r[offsetUserCode] != userCode:
		return fmt.Errorf("%w: user code %d, want %d", ErrResponseInvalid, r[offsetUserCode], userCode)
	case !IsChecksumValid(r, n):
		return fmt.Errorf("%w: checksum", ErrResponseInvalid)
	}
	return nil
}

// ClearReturnPacket hides the current return packet
func (d *NSP32) ClearReturnPacket() {
	d.retPacketSize = 0
}

// GetReturnPacketSize returns the size of the current return packet, or 0
// if none is available
func (d *NSP32) GetReturnPacketSize() int {
	return d.retPacketSize
}

// GetReturnPacket returns a snapshot of the current return packet. The
// boolean is false if none is available.
func (d *NSP32) GetReturnPacket() (*ReturnPacket, bool) {
	if d.retPacketSize <= 0 {
		return nil, false
	}
	return NewReturnPacket(CmdCode(d.retBuf[offsetCmdCode]), d.retBuf[offsetUserCode], true, d.retBuf[:d.retPacketSize]), true
}
