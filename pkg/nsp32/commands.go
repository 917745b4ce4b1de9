// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import "encoding/binary"

// Command builders return wire-ready command frames, e.g. for an upstream
// host that talks to the module through a forwarder. Frames for the fixed
// table entries cannot fail to encode.

// NewHelloCommand creates a HELLO frame (0x01)
func NewHelloCommand(userCode uint8) []byte {
	return mustEncodeCommand(CmdHello, userCode, nil)
}

// NewStandbyCommand creates a STANDBY frame (0x04)
func NewStandbyCommand(userCode uint8) []byte {
	return mustEncodeCommand(CmdStandby, userCode, nil)
}

// NewGetSensorIdCommand creates a GET_SENSOR_ID frame (0x06)
func NewGetSensorIdCommand(userCode uint8) []byte {
	return mustEncodeCommand(CmdGetSensorId, userCode, nil)
}

// NewGetWavelengthCommand creates a GET_WAVELENGTH frame (0x24)
func NewGetWavelengthCommand(userCode uint8) []byte {
	return mustEncodeCommand(CmdGetWavelength, userCode, nil)
}

// NewAcqSpectrumCommand creates an ACQ_SPECTRUM frame (0x26).
// The module answers with an acknowledgement and pulses the ready pin when
// the spectrum can be fetched with GET_SPECTRUM.
func NewAcqSpectrumCommand(userCode uint8, integrationTime uint16, frameAvgNum uint8, enableAE bool) []byte {
	return mustEncodeCommand(CmdAcqSpectrum, userCode, acqPayload(integrationTime, frameAvgNum, enableAE))
}

// NewGetSpectrumCommand creates a GET_SPECTRUM frame (0x28)
func NewGetSpectrumCommand(userCode uint8) []byte {
	return mustEncodeCommand(CmdGetSpectrum, userCode, nil)
}

// NewAcqXYZCommand creates an ACQ_XYZ frame (0x2A)
func NewAcqXYZCommand(userCode uint8, integrationTime uint16, frameAvgNum uint8, enableAE bool) []byte {
	return mustEncodeCommand(CmdAcqXYZ, userCode, acqPayload(integrationTime, frameAvgNum, enableAE))
}

// NewGetXYZCommand creates a GET_XYZ frame (0x2C)
func NewGetXYZCommand(userCode uint8) []byte {
	return mustEncodeCommand(CmdGetXYZ, userCode, nil)
}

// acqPayload lays out integration time, frame average, AE flag and the
// "no active return" byte
func acqPayload(integrationTime uint16, frameAvgNum uint8, enableAE bool) []byte {
	p := make([]byte, 5)
	binary.LittleEndian.PutUint16(p[0:2], integrationTime)
	p[2] = frameAvgNum
	if enableAE {
		p[3] = 1
	}
	return p
}

func mustEncodeCommand(code CmdCode, userCode uint8, payload []byte) []byte {
	frame, err := EncodeCommand(code, userCode, payload)
	if err != nil {
		panic("nsp32: " + err.Error())
	}
	return frame
}
