// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator

import (
	"math"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
)

// LightSource returns the relative spectral power at a wavelength in nm
type LightSource func(nm float64) float64

// WhiteLED models a phosphor white LED: a narrow blue emitter peak and a
// broad yellow phosphor band. brightness scales the whole spectrum.
func WhiteLED(brightness float64) LightSource {
	return func(nm float64) float64 {
		blue := math.Exp(-0.5 * math.Pow((nm-450)/10, 2))
		phosphor := 0.6 * math.Exp(-0.5*math.Pow((nm-560)/50, 2))
		return brightness * (blue + phosphor)
	}
}

// Monochromatic models a narrow-band source such as a laser or filtered
// lamp
func Monochromatic(peakNm, widthNm, brightness float64) LightSource {
	return func(nm float64) float64 {
		return brightness * math.Exp(-0.5*math.Pow((nm-peakNm)/widthNm, 2))
	}
}

// Sensor response scaling
const (
	// countsPerUnit is the reading of a unit-power source per integration
	// time unit
	countsPerUnit = 0.001
	// fullScale is the largest reading before saturation
	fullScale = 1.0
	// aeTarget is the peak reading auto exposure aims for
	aeTarget = 0.8
	// noiseLevel is the standard deviation of the read noise
	noiseLevel = 0.0005
)

type measurement struct {
	integrationTime uint16
	saturated       bool
	spectrum        [nsp32.SpectrumPoints]float32
	x, y, z         float32
}

// measure exposes the sensor to the light source. d.mu must be held.
func (d *Device) measure(integrationTime uint16, frameAvgNum uint8, enableAE bool) *measurement {
	peak := 0.0
	for i := 0; i < nsp32.SpectrumPoints; i++ {
		peak = math.Max(peak, d.source(wavelengthAt(i)))
	}

	if enableAE && peak > 0 {
		it := aeTarget / (peak * countsPerUnit)
		integrationTime = uint16(math.Max(1, math.Min(it, math.MaxUint16)))
	}

	frames := int(frameAvgNum)
	if frames < 1 {
		frames = 1
	}

	m := &measurement{integrationTime: integrationTime}
	var x, y, z, norm float64
	for i := 0; i < nsp32.SpectrumPoints; i++ {
		nm := wavelengthAt(i)
		v := d.source(nm) * float64(integrationTime) * countsPerUnit

		// averaging reduces read noise by sqrt(frames)
		v += d.rng.NormFloat64() * noiseLevel / math.Sqrt(float64(frames))
		if v >= fullScale {
			v = fullScale
			m.saturated = true
		}
		v = math.Max(0, v)
		m.spectrum[i] = float32(v)

		xb, yb, zb := colorMatch(nm)
		x += v * xb
		y += v * yb
		z += v * zb
		norm += yb
	}

	if norm > 0 {
		m.x = float32(x / norm)
		m.y = float32(y / norm)
		m.z = float32(z / norm)
	}
	return m
}

func wavelengthAt(i int) float64 {
	return float64(WavelengthStart + WavelengthStep*i)
}

// colorMatch approximates the CIE 1931 2° color matching functions with the
// piecewise Gaussian fit of Wyman, Sloan and Shirley (2013)
func colorMatch(nm float64) (x, y, z float64) {
	x = 1.056*lobe(nm, 599.8, 37.9, 31.0) + 0.362*lobe(nm, 442.0, 16.0, 26.7) - 0.065*lobe(nm, 501.1, 20.4, 26.2)
	y = 0.821*lobe(nm, 568.8, 46.9, 40.5) + 0.286*lobe(nm, 530.9, 16.3, 31.1)
	z = 1.217*lobe(nm, 437.0, 11.8, 36.0) + 0.681*lobe(nm, 459.0, 26.0, 13.8)
	return x, y, z
}

func lobe(nm, mu, sigmaLow, sigmaHigh float64) float64 {
	sigma := sigmaHigh
	if nm < mu {
		sigma = sigmaLow
	}
	t := (nm - mu) / sigma
	return math.Exp(-0.5 * t * t)
}
