// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is a decoded measurement, ready for export. The CBOR form uses
// integer map keys.
type Record struct {
	Timestamp       time.Time `cbor:"1,keyasint" json:"timestamp"`
	Command         CmdCode   `cbor:"2,keyasint" json:"-"`
	CommandName     string    `cbor:"-" json:"command"`
	UserCode        uint8     `cbor:"3,keyasint" json:"user_code"`
	SensorID        string    `cbor:"4,keyasint,omitempty" json:"sensor_id,omitempty"`
	Wavelength      []uint16  `cbor:"5,keyasint,omitempty" json:"wavelength,omitempty"`
	Spectrum        []float32 `cbor:"6,keyasint,omitempty" json:"spectrum,omitempty"`
	IntegrationTime uint16    `cbor:"7,keyasint,omitempty" json:"integration_time,omitempty"`
	Saturated       bool      `cbor:"8,keyasint,omitempty" json:"saturated,omitempty"`
	X               float32   `cbor:"9,keyasint,omitempty" json:"x,omitempty"`
	Y               float32   `cbor:"10,keyasint,omitempty" json:"y,omitempty"`
	Z               float32   `cbor:"11,keyasint,omitempty" json:"z,omitempty"`
}

// NewRecord decodes a return packet into a record. Packets without
// measurement data produce a record carrying only the header fields.
func NewRecord(p *ReturnPacket) (*Record, error) {
	r := &Record{
		Timestamp:   p.timestamp,
		Command:     p.cmdCode,
		CommandName: FormatCmdCode(p.cmdCode),
		UserCode:    p.userCode,
	}

	switch p.cmdCode {
	case CmdGetSensorId:
		id, err := p.ExtractSensorIdStr()
		if err != nil {
			return nil, err
		}
		r.SensorID = id

	case CmdGetWavelength:
		info, err := p.ExtractWavelengthInfo()
		if err != nil {
			return nil, err
		}
		r.Wavelength = info.Wavelength()

	case CmdGetSpectrum:
		info, err := p.ExtractSpectrumInfo()
		if err != nil {
			return nil, err
		}
		r.Spectrum = info.Spectrum()
		r.IntegrationTime = info.IntegrationTime()
		r.Saturated = info.IsSaturated()
		r.X, r.Y, r.Z = info.X(), info.Y(), info.Z()

	case CmdGetXYZ:
		info, err := p.ExtractXYZInfo()
		if err != nil {
			return nil, err
		}
		r.IntegrationTime = info.IntegrationTime()
		r.Saturated = info.IsSaturated()
		r.X, r.Y, r.Z = info.X(), info.Y(), info.Z()
	}

	return r, nil
}

// recordEncMode writes timestamps as RFC 3339 strings
var recordEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeCBOR serializes the record as a CBOR map with integer keys
func (r *Record) EncodeCBOR() ([]byte, error) {
	data, err := recordEncMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR: %w", err)
	}
	return data, nil
}

// EncodeJSON serializes the record as a single-line JSON object
func (r *Record) EncodeJSON() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return data, nil
}

// DecodeRecordCBOR parses a record produced by EncodeCBOR
func DecodeRecordCBOR(data []byte) (*Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty CBOR payload")
	}
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	r.CommandName = FormatCmdCode(r.Command)
	return &r, nil
}
