// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import (
	"encoding/binary"
	"fmt"
	"math"
)

// WavelengthInfo is a view over a GetWavelength return packet
type WavelengthInfo struct {
	packetBytes []byte
	numOfPoints uint32
}

func newWavelengthInfo(b []byte) (*WavelengthInfo, error) {
	if len(b) < wavelengthOffsetPoints {
		return nil, fmt.Errorf("%w: wavelength packet %d bytes", ErrPacketTooShort, len(b))
	}
	return &WavelengthInfo{
		packetBytes: b,
		numOfPoints: binary.LittleEndian.Uint32(b[wavelengthOffsetCount:]),
	}, nil
}

// NumOfPoints returns the point count reported by the module
func (w *WavelengthInfo) NumOfPoints() int {
	return int(w.numOfPoints)
}

// Wavelength returns the wavelength table in nm. Points that would run past
// the end of the packet are not returned.
func (w *WavelengthInfo) Wavelength() []uint16 {
	n := clampPoints(w.numOfPoints, len(w.packetBytes)-wavelengthOffsetPoints, 2)
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(w.packetBytes[wavelengthOffsetPoints+2*i:])
	}
	return out
}

// SpectrumInfo is a view over a GetSpectrum return packet
type SpectrumInfo struct {
	packetBytes []byte
	numOfPoints uint32
}

// spectrum packets carry X/Y/Z after the fixed-size point array
const spectrumOffsetXYZ = spectrumOffsetPoints + SpectrumPoints*4

func newSpectrumInfo(b []byte) (*SpectrumInfo, error) {
	if len(b) < spectrumOffsetXYZ+12 {
		return nil, fmt.Errorf("%w: spectrum packet %d bytes", ErrPacketTooShort, len(b))
	}
	return &SpectrumInfo{
		packetBytes: b,
		numOfPoints: binary.LittleEndian.Uint32(b[spectrumOffsetCount:]),
	}, nil
}

// NumOfPoints returns the point count reported by the module
func (s *SpectrumInfo) NumOfPoints() int {
	return int(s.numOfPoints)
}

// IntegrationTime returns the integration time used for the acquisition
func (s *SpectrumInfo) IntegrationTime() uint16 {
	return binary.LittleEndian.Uint16(s.packetBytes[spectrumOffsetIntegration:])
}

// IsSaturated reports whether the sensor saturated during acquisition
func (s *SpectrumInfo) IsSaturated() bool {
	return s.packetBytes[spectrumOffsetSaturation] == 1
}

// Spectrum returns the spectrum values
func (s *SpectrumInfo) Spectrum() []float32 {
	n := clampPoints(s.numOfPoints, spectrumOffsetXYZ-spectrumOffsetPoints, 4)
	out := make([]float32, n)
	for i := range out {
		out[i] = getFloat32(s.packetBytes, spectrumOffsetPoints+4*i)
	}
	return out
}

// X returns the CIE X tristimulus value
func (s *SpectrumInfo) X() float32 {
	return getFloat32(s.packetBytes, spectrumOffsetXYZ)
}

// Y returns the CIE Y tristimulus value
func (s *SpectrumInfo) Y() float32 {
	return getFloat32(s.packetBytes, spectrumOffsetXYZ+4)
}

// Z returns the CIE Z tristimulus value
func (s *SpectrumInfo) Z() float32 {
	return getFloat32(s.packetBytes, spectrumOffsetXYZ+8)
}

// XYZInfo is a view over a GetXYZ return packet
type XYZInfo struct {
	packetBytes []byte
}

func newXYZInfo(b []byte) (*XYZInfo, error) {
	if len(b) < xyzOffsetZ+4 {
		return nil, fmt.Errorf("%w: XYZ packet %d bytes", ErrPacketTooShort, len(b))
	}
	return &XYZInfo{packetBytes: b}, nil
}

// IntegrationTime returns the integration time used for the acquisition
func (x *XYZInfo) IntegrationTime() uint16 {
	return binary.LittleEndian.Uint16(x.packetBytes[xyzOffsetIntegration:])
}

// IsSaturated reports whether the sensor saturated during acquisition
func (x *XYZInfo) IsSaturated() bool {
	return x.packetBytes[xyzOffsetSaturation] == 1
}

// X returns the CIE X tristimulus value
func (x *XYZInfo) X() float32 {
	return getFloat32(x.packetBytes, xyzOffsetX)
}

// Y returns the CIE Y tristimulus value
func (x *XYZInfo) Y() float32 {
	return getFloat32(x.packetBytes, xyzOffsetY)
}

// Z returns the CIE Z tristimulus value
func (x *XYZInfo) Z() float32 {
	return getFloat32(x.packetBytes, xyzOffsetZ)
}

func getFloat32(b []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[offset:]))
}

// clampPoints limits a reported point count to what fits in avail bytes
func clampPoints(reported uint32, avail, width int) int {
	if avail < 0 {
		return 0
	}
	max := avail / width
	if uint64(reported) > uint64(max) {
		return max
	}
	return int(reported)
}
