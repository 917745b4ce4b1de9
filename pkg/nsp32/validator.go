// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import (
	"fmt"
	"math"
)

// AnomalyType represents different types of measurement anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidCount
	AnomalySaturated
	AnomalyInvalidValue
	AnomalyWavelengthOrder
)

// ValidationError represents a suspicious return packet. The packet itself
// passed framing checks; these are plausibility findings on its content.
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidatePacket inspects the measurement content of a return packet.
// Returns a slice of validation errors (empty if nothing looks wrong)
func ValidatePacket(p *ReturnPacket) []ValidationError {
	errors := []ValidationError{}

	if want := ReturnLength(p.cmdCode); want > 0 && len(p.packetBytes) != want {
		errors = append(errors, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s packet is %d bytes (expected %d)", FormatCmdCode(p.cmdCode), len(p.packetBytes), want),
			Details: map[string]interface{}{"length": len(p.packetBytes), "expected": want},
		})
	}

	switch p.cmdCode {
	case CmdGetWavelength:
		errors = append(errors, validateWavelength(p)...)
	case CmdGetSpectrum:
		errors = append(errors, validateSpectrum(p)...)
	case CmdGetXYZ:
		errors = append(errors, validateXYZ(p)...)
	}

	return errors
}

func validateWavelength(p *ReturnPacket) []ValidationError {
	info, err := p.ExtractWavelengthInfo()
	if err != nil {
		return []ValidationError{{Type: AnomalyLengthMismatch, Message: err.Error()}}
	}

	errors := []ValidationError{}
	if n := info.NumOfPoints(); n == 0 || n > SpectrumPoints {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidCount,
			Message: fmt.Sprintf("Invalid wavelength point count=%d (max %d)", n, SpectrumPoints),
			Details: map[string]interface{}{"count": n, "max": SpectrumPoints},
		})
	}

	wl := info.Wavelength()
	for i := 1; i < len(wl); i++ {
		if wl[i] <= wl[i-1] {
			errors = append(errors, ValidationError{
				Type:    AnomalyWavelengthOrder,
				Message: fmt.Sprintf("Wavelength not increasing at index %d (%d nm after %d nm)", i, wl[i], wl[i-1]),
				Details: map[string]interface{}{"index": i, "value": wl[i], "previous": wl[i-1]},
			})
			break
		}
	}

	return errors
}

func validateSpectrum(p *ReturnPacket) []ValidationError {
	info, err := p.ExtractSpectrumInfo()
	if err != nil {
		return []ValidationError{{Type: AnomalyLengthMismatch, Message: err.Error()}}
	}

	errors := []ValidationError{}
	if n := info.NumOfPoints(); n == 0 || n > SpectrumPoints {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidCount,
			Message: fmt.Sprintf("Invalid spectrum point count=%d (max %d)", n, SpectrumPoints),
			Details: map[string]interface{}{"count": n, "max": SpectrumPoints},
		})
	}
	if info.IsSaturated() {
		errors = append(errors, saturated(info.IntegrationTime()))
	}

	for i, v := range info.Spectrum() {
		if !isPlausible(v) {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Invalid spectrum value at index %d: %v", i, v),
				Details: map[string]interface{}{"index": i, "value": v},
			})
			break
		}
	}
	errors = append(errors, validateTristimulus(info.X(), info.Y(), info.Z())...)

	return errors
}

func validateXYZ(p *ReturnPacket) []ValidationError {
	info, err := p.ExtractXYZInfo()
	if err != nil {
		return []ValidationError{{Type: AnomalyLengthMismatch, Message: err.Error()}}
	}

	errors := []ValidationError{}
	if info.IsSaturated() {
		errors = append(errors, saturated(info.IntegrationTime()))
	}
	errors = append(errors, validateTristimulus(info.X(), info.Y(), info.Z())...)

	return errors
}

func validateTristimulus(x, y, z float32) []ValidationError {
	errors := []ValidationError{}
	for _, c := range []struct {
		name  string
		value float32
	}{{"X", x}, {"Y", y}, {"Z", z}} {
		if !isPlausible(c.value) {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Invalid %s value: %v", c.name, c.value),
				Details: map[string]interface{}{c.name: c.value},
			})
		}
	}
	return errors
}

func saturated(integrationTime uint16) ValidationError {
	return ValidationError{
		Type:    AnomalySaturated,
		Message: fmt.Sprintf("Sensor saturated (integration=%d)", integrationTime),
		Details: map[string]interface{}{"integration_time": integrationTime},
	}
}

// isPlausible rejects NaN, infinities and negative intensities
func isPlausible(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}
