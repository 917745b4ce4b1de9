// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"
)

func xyzPacket(t *testing.T, userCode uint8, x, y, z float32) *ReturnPacket {
	t.Helper()
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint16(payload[0:], 250)
	binary.LittleEndian.PutUint32(payload[4:], math.Float32bits(x))
	binary.LittleEndian.PutUint32(payload[8:], math.Float32bits(y))
	binary.LittleEndian.PutUint32(payload[12:], math.Float32bits(z))
	frame, err := EncodeReturnPacket(CmdGetXYZ, userCode, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	p, err := ParseReturnPacket(frame)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return p
}

func TestRecord_CBORRoundTrip(t *testing.T) {
	p := xyzPacket(t, 3, 0.125, 0.5, 42.25)

	r, err := NewRecord(p)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	data, err := r.EncodeCBOR()
	if err != nil {
		t.Fatalf("EncodeCBOR: %v", err)
	}

	got, err := DecodeRecordCBOR(data)
	if err != nil {
		t.Fatalf("DecodeRecordCBOR: %v", err)
	}
	if got.Command != CmdGetXYZ || got.CommandName != "GET_XYZ" || got.UserCode != 3 {
		t.Errorf("header = %s/%s user=%d", FormatCmdCode(got.Command), got.CommandName, got.UserCode)
	}
	if got.IntegrationTime != 250 {
		t.Errorf("integration = %d", got.IntegrationTime)
	}
	if got.X != 0.125 || got.Y != 0.5 || got.Z != 42.25 {
		t.Errorf("XYZ = %v %v %v", got.X, got.Y, got.Z)
	}
	if !got.Timestamp.Equal(r.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, r.Timestamp)
	}
}

func TestRecord_Wavelength(t *testing.T) {
	r, err := NewRecord(wavelengthPacket(t, SpectrumPoints))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if len(r.Wavelength) != SpectrumPoints {
		t.Fatalf("wavelength points = %d", len(r.Wavelength))
	}

	data, err := r.EncodeCBOR()
	if err != nil {
		t.Fatalf("EncodeCBOR: %v", err)
	}
	got, err := DecodeRecordCBOR(data)
	if err != nil {
		t.Fatalf("DecodeRecordCBOR: %v", err)
	}
	if len(got.Wavelength) != SpectrumPoints || got.Wavelength[134] != 1010 {
		t.Errorf("decoded wavelength table wrong: %d points", len(got.Wavelength))
	}
}

func TestRecord_JSON(t *testing.T) {
	r, err := NewRecord(xyzPacket(t, 0, 1, 2, 3))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	data, err := r.EncodeJSON()
	if err != nil {
		t.Fatalf("EncodeJSON: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if m["command"] != "GET_XYZ" {
		t.Errorf("command = %v", m["command"])
	}
	if m["y"] != 2.0 {
		t.Errorf("y = %v", m["y"])
	}
	if _, ok := m["spectrum"]; ok {
		t.Error("empty spectrum should be omitted")
	}
}

func TestDecodeRecordCBOR_Errors(t *testing.T) {
	if _, err := DecodeRecordCBOR(nil); err == nil {
		t.Error("expected error for empty payload")
	}
	if _, err := DecodeRecordCBOR([]byte{0xFF, 0x00}); err == nil {
		t.Error("expected error for malformed CBOR")
	}
}
