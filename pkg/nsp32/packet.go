// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import (
	"fmt"
	"strings"
	"time"
)

// ReturnPacket is an immutable snapshot of a response frame
type ReturnPacket struct {
	cmdCode       CmdCode
	userCode      uint8
	isPacketValid bool
	packetBytes   []byte
	timestamp     time.Time
}

// NewReturnPacket creates a return packet holding a private copy of packetBytes
func NewReturnPacket(cmdCode CmdCode, userCode uint8, isPacketValid bool, packetBytes []byte) *ReturnPacket {
	b := make([]byte, len(packetBytes))
	copy(b, packetBytes)
	return &ReturnPacket{
		cmdCode:       cmdCode,
		userCode:      userCode,
		isPacketValid: isPacketValid,
		packetBytes:   b,
		timestamp:     time.Now(),
	}
}

// ParseReturnPacket validates a raw response frame and wraps it in a
// ReturnPacket. The frame must carry both prefixes, a known command code, at
// least the command's fixed return length and a valid checksum over exactly
// that length. Trailing bytes beyond the fixed length are ignored.
func ParseReturnPacket(raw []byte) (*ReturnPacket, error) {
	if len(raw) < HeaderSize+1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooShort, len(raw))
	}
	if raw[offsetPrefix0] != Prefix0 || raw[offsetPrefix1] != Prefix1 {
		return nil, fmt.Errorf("%w: %02X %02X", ErrBadPrefix, raw[offsetPrefix0], raw[offsetPrefix1])
	}

	l, ok := LookupLength(raw[offsetCmdCode])
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, raw[offsetCmdCode])
	}
	if len(raw) < l.Return {
		return nil, fmt.Errorf("%w: %d bytes (expected %d)", ErrPacketTooShort, len(raw), l.Return)
	}
	if !IsChecksumValid(raw, l.Return) {
		return nil, ErrChecksum
	}

	return NewReturnPacket(CmdCode(raw[offsetCmdCode]), raw[offsetUserCode], true, raw[:l.Return]), nil
}

// CmdCode returns the command function code
func (p *ReturnPacket) CmdCode() CmdCode {
	return p.cmdCode
}

// UserCode returns the command user code
func (p *ReturnPacket) UserCode() uint8 {
	return p.userCode
}

// IsPacketValid reports whether the packet passed validation
func (p *ReturnPacket) IsPacketValid() bool {
	return p.isPacketValid
}

// PacketBytes returns a copy of the packet bytes
func (p *ReturnPacket) PacketBytes() []byte {
	b := make([]byte, len(p.packetBytes))
	copy(b, p.packetBytes)
	return b
}

// Len returns the packet length in bytes, checksum included
func (p *ReturnPacket) Len() int {
	return len(p.packetBytes)
}

// Timestamp returns the time the packet was captured
func (p *ReturnPacket) Timestamp() time.Time {
	return p.timestamp
}

// ExtractSensorIdStr returns the sensor id as hyphen-joined uppercase hex,
// e.g. "AB-CD-12-34-56".
func (p *ReturnPacket) ExtractSensorIdStr() (string, error) {
	if p.cmdCode != CmdGetSensorId {
		return "", ErrPacketTypeMismatch
	}
	if len(p.packetBytes) < HeaderSize+SensorIdSize {
		return "", ErrPacketTooShort
	}

	parts := make([]string, SensorIdSize)
	for i, b := range p.packetBytes[HeaderSize : HeaderSize+SensorIdSize] {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, "-"), nil
}

// ExtractWavelengthInfo returns a wavelength view of a GetWavelength packet
func (p *ReturnPacket) ExtractWavelengthInfo() (*WavelengthInfo, error) {
	if p.cmdCode != CmdGetWavelength {
		return nil, ErrPacketTypeMismatch
	}
	return newWavelengthInfo(p.packetBytes)
}

// ExtractSpectrumInfo returns a spectrum view of a GetSpectrum packet
func (p *ReturnPacket) ExtractSpectrumInfo() (*SpectrumInfo, error) {
	if p.cmdCode != CmdGetSpectrum {
		return nil, ErrPacketTypeMismatch
	}
	return newSpectrumInfo(p.packetBytes)
}

// ExtractXYZInfo returns an XYZ view of a GetXYZ packet
func (p *ReturnPacket) ExtractXYZInfo() (*XYZInfo, error) {
	if p.cmdCode != CmdGetXYZ {
		return nil, ErrPacketTypeMismatch
	}
	return newXYZInfo(p.packetBytes)
}
