// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator provides an in-memory NSP32 module. Device implements
// nsp32.Adaptor, so a driver bound to it runs the full protocol without
// hardware: frames are parsed and checksummed, acquisitions complete after a
// configurable delay and pulse the ready callback, and faults can be injected.
package simulator

import (
	"encoding/binary"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/sirupsen/logrus"
)

// Wavelength table of the simulated module, 5 nm steps
const (
	WavelengthStart = 340
	WavelengthStep  = 5
)

// Device is a simulated NSP32 module
type Device struct {
	mu sync.Mutex

	log       logrus.FieldLogger
	sensorID  [nsp32.SensorIdSize]byte
	acqDelay  time.Duration
	timeScale float64
	source    LightSource
	rng       *rand.Rand

	onReady   func()
	inReset   bool
	standby   bool
	corrupt   int
	silent    int
	received  []nsp32.CmdCode
	measured  *measurement
	spiOut    []byte
	uartRx    []byte
	timerFrom time.Time
	timers    []*time.Timer
}

// Option configures a Device
type Option func(*Device)

// WithSensorID sets the id returned by GET_SENSOR_ID
func WithSensorID(id [nsp32.SensorIdSize]byte) Option {
	return func(d *Device) {
		d.sensorID = id
	}
}

// WithAcquisitionDelay sets the time between an acquisition command and the
// ready pulse
func WithAcquisitionDelay(delay time.Duration) Option {
	return func(d *Device) {
		d.acqDelay = delay
	}
}

// WithTimeScale scales the duration of Delay calls. Zero makes delays
// return immediately.
func WithTimeScale(scale float64) Option {
	return func(d *Device) {
		d.timeScale = scale
	}
}

// WithLightSource sets the spectrum seen by the sensor
func WithLightSource(src LightSource) Option {
	return func(d *Device) {
		d.source = src
	}
}

// WithSeed seeds the measurement noise
func WithSeed(seed int64) Option {
	return func(d *Device) {
		d.rng = rand.New(rand.NewSource(seed))
	}
}

// WithLogger sets the logger for received commands and injected faults
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Device) {
		d.log = log
	}
}

// New creates a simulated module
func New(opts ...Option) *Device {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	d := &Device{
		log:       quiet,
		sensorID:  [nsp32.SensorIdSize]byte{0x4E, 0x53, 0x50, 0x33, 0x32},
		acqDelay:  20 * time.Millisecond,
		timeScale: 1,
		source:    WhiteLED(1),
		rng:       rand.New(rand.NewSource(1)),
		timerFrom: time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CorruptNext makes the next n responses fail their checksum
func (d *Device) CorruptNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.corrupt = n
}

// SilenceNext makes the module ignore the next n commands
func (d *Device) SilenceNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = n
}

// Received returns the command codes the module accepted, in order
func (d *Device) Received() []nsp32.CmdCode {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]nsp32.CmdCode, len(d.received))
	copy(out, d.received)
	return out
}

// IsStandby reports whether the module is in standby
func (d *Device) IsStandby() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.standby
}

// Close stops pending ready pulses
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.timers {
		t.Stop()
	}
	d.timers = nil
	return nil
}

// Init registers the ready callback
func (d *Device) Init(onReady func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onReady = onReady
	return nil
}

// ResetAssert holds the module in reset
func (d *Device) ResetAssert() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inReset = true
	d.measured = nil
	d.spiOut = nil
	d.uartRx = nil
	return nil
}

// ResetRelease boots the module, which signals ready once booted
func (d *Device) ResetRelease() error {
	d.mu.Lock()
	d.inReset = false
	d.standby = false
	onReady := d.onReady
	d.mu.Unlock()

	if onReady != nil {
		onReady()
	}
	return nil
}

// SPISend delivers a command frame over SPI
func (d *Device) SPISend(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spiOut = d.handle(p)
	return nil
}

// SPIReceive clocks out the response. Without a response the bus reads zero.
func (d *Device) SPIReceive(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range p {
		p[i] = 0
	}
	copy(p, d.spiOut)
	d.spiOut = nil
	return nil
}

// UARTSend delivers a command frame over UART
func (d *Device) UARTSend(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uartRx = append(d.uartRx, d.handle(p)...)
	return nil
}

// UARTBytesAvailable reports whether response bytes are waiting
func (d *Device) UARTBytesAvailable() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.uartRx) > 0
}

// UARTReadByte pops one response byte
func (d *Device) UARTReadByte() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.uartRx) == 0 {
		return 0, io.EOF
	}
	b := d.uartRx[0]
	d.uartRx = d.uartRx[1:]
	return b, nil
}

// Delay sleeps for the scaled duration
func (d *Device) Delay(delay time.Duration) {
	if d.timeScale <= 0 {
		return
	}
	time.Sleep(time.Duration(float64(delay) * d.timeScale))
}

// StartTimer starts the response timer
func (d *Device) StartTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timerFrom = time.Now()
}

// Elapsed returns the time since StartTimer
func (d *Device) Elapsed() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Since(d.timerFrom)
}

// handle processes one command frame and returns the response bytes, or nil
// when the module stays silent. d.mu must be held.
func (d *Device) handle(cmd []byte) []byte {
	if d.inReset || len(cmd) < nsp32.HeaderSize+1 || cmd[0] != nsp32.Prefix0 || cmd[1] != nsp32.Prefix1 {
		return nil
	}
	code := nsp32.CmdCode(cmd[2])
	userCode := cmd[3]
	l, ok := nsp32.LookupLength(uint8(code))
	if !ok || len(cmd) < l.Command || !nsp32.IsChecksumValid(cmd, l.Command) {
		d.log.WithField("frame", nsp32.FormatHex(cmd)).Debug("simulator: rejected command frame")
		return nil
	}

	// a module in standby only wakes through reset
	if d.standby {
		return nil
	}
	if d.silent > 0 {
		d.silent--
		d.log.WithField("cmd", code).Debug("simulator: staying silent")
		return nil
	}

	d.received = append(d.received, code)
	d.log.WithFields(logrus.Fields{"cmd": code, "user_code": userCode}).Debug("simulator: command")

	var payload []byte
	switch code {
	case nsp32.CmdStandby:
		d.standby = true
	case nsp32.CmdGetSensorId:
		payload = d.sensorID[:]
	case nsp32.CmdGetWavelength:
		payload = wavelengthPayload()
	case nsp32.CmdAcqSpectrum, nsp32.CmdAcqXYZ:
		d.startAcquisition(cmd)
	case nsp32.CmdGetSpectrum:
		payload = d.spectrumPayload()
	case nsp32.CmdGetXYZ:
		payload = d.xyzPayload()
	}

	resp, err := nsp32.EncodeReturnPacket(code, userCode, payload)
	if err != nil {
		d.log.WithError(err).Error("simulator: encode response")
		return nil
	}
	if d.corrupt > 0 {
		d.corrupt--
		resp[len(resp)-1]++
		d.log.WithField("cmd", code).Debug("simulator: corrupted response")
	}
	return resp
}

// startAcquisition measures immediately and pulses ready after the
// acquisition delay. d.mu must be held.
func (d *Device) startAcquisition(cmd []byte) {
	integrationTime := binary.LittleEndian.Uint16(cmd[4:])
	frameAvgNum := cmd[6]
	enableAE := cmd[7] != 0

	d.measured = d.measure(integrationTime, frameAvgNum, enableAE)

	onReady := d.onReady
	if onReady == nil {
		return
	}
	d.timers = append(d.timers, time.AfterFunc(d.acqDelay, onReady))
}

func wavelengthPayload() []byte {
	p := make([]byte, 4+2*nsp32.SpectrumPoints)
	binary.LittleEndian.PutUint32(p[0:], nsp32.SpectrumPoints)
	for i := 0; i < nsp32.SpectrumPoints; i++ {
		binary.LittleEndian.PutUint16(p[4+2*i:], uint16(WavelengthStart+WavelengthStep*i))
	}
	return p
}

// spectrumPayload lays out the last measurement. d.mu must be held.
func (d *Device) spectrumPayload() []byte {
	m := d.measured
	if m == nil {
		m = &measurement{}
	}
	p := make([]byte, 8+4*nsp32.SpectrumPoints+12)
	binary.LittleEndian.PutUint16(p[0:], m.integrationTime)
	if m.saturated {
		p[2] = 1
	}
	binary.LittleEndian.PutUint32(p[4:], nsp32.SpectrumPoints)
	for i := 0; i < nsp32.SpectrumPoints; i++ {
		binary.LittleEndian.PutUint32(p[8+4*i:], math.Float32bits(m.spectrum[i]))
	}
	putXYZ(p[8+4*nsp32.SpectrumPoints:], m)
	return p
}

// xyzPayload lays out the last measurement's tristimulus values. d.mu must
// be held.
func (d *Device) xyzPayload() []byte {
	m := d.measured
	if m == nil {
		m = &measurement{}
	}
	p := make([]byte, 16)
	binary.LittleEndian.PutUint16(p[0:], m.integrationTime)
	if m.saturated {
		p[2] = 1
	}
	putXYZ(p[4:], m)
	return p
}

func putXYZ(p []byte, m *measurement) {
	binary.LittleEndian.PutUint32(p[0:], math.Float32bits(m.x))
	binary.LittleEndian.PutUint32(p[4:], math.Float32bits(m.y))
	binary.LittleEndian.PutUint32(p[8:], math.Float32bits(m.z))
}
