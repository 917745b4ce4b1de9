// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import (
	"fmt"
	"strings"
)

// FormatPacket formats a return packet into a human-readable string
func FormatPacket(p *ReturnPacket) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	name := FormatCmdCode(p.cmdCode)

	result := fmt.Sprintf("[%s] %s (0x%02X) user=%d len=%d\n", timestamp, name, uint8(p.cmdCode), p.userCode, len(p.packetBytes))
	result += FormatPayload(p)

	return result
}

// FormatCmdCode returns the human-readable name for a command code
func FormatCmdCode(code CmdCode) string {
	switch code {
	case CmdHello:
		return "HELLO"
	case CmdStandby:
		return "STANDBY"
	case CmdGetSensorId:
		return "GET_SENSOR_ID"
	case CmdGetWavelength:
		return "GET_WAVELENGTH"
	case CmdAcqSpectrum:
		return "ACQ_SPECTRUM"
	case CmdGetSpectrum:
		return "GET_SPECTRUM"
	case CmdAcqXYZ:
		return "ACQ_XYZ"
	case CmdGetXYZ:
		return "GET_XYZ"
	default:
		return "UNKNOWN"
	}
}

// String implements fmt.Stringer
func (c CmdCode) String() string {
	return FormatCmdCode(c)
}

// FormatPayload formats the decoded payload of a return packet. Packets
// without measurement data are shown as a hex dump.
func FormatPayload(p *ReturnPacket) string {
	switch p.cmdCode {
	case CmdGetSensorId:
		id, err := p.ExtractSensorIdStr()
		if err != nil {
			return fmt.Sprintf("  error: %v\n", err)
		}
		return fmt.Sprintf("  sensor_id=%s\n", id)

	case CmdGetWavelength:
		info, err := p.ExtractWavelengthInfo()
		if err != nil {
			return fmt.Sprintf("  error: %v\n", err)
		}
		wl := info.Wavelength()
		if len(wl) == 0 {
			return fmt.Sprintf("  points=%d\n", info.NumOfPoints())
		}
		return fmt.Sprintf("  points=%d range=%d..%d nm\n", info.NumOfPoints(), wl[0], wl[len(wl)-1])

	case CmdGetSpectrum:
		info, err := p.ExtractSpectrumInfo()
		if err != nil {
			return fmt.Sprintf("  error: %v\n", err)
		}
		spectrum := info.Spectrum()
		var peak float32
		peakIdx := 0
		for i, v := range spectrum {
			if v > peak {
				peak, peakIdx = v, i
			}
		}
		return fmt.Sprintf("  integration=%d saturated=%t points=%d peak=%.4f@%d X=%.4f Y=%.4f Z=%.4f\n",
			info.IntegrationTime(), info.IsSaturated(), info.NumOfPoints(), peak, peakIdx, info.X(), info.Y(), info.Z())

	case CmdGetXYZ:
		info, err := p.ExtractXYZInfo()
		if err != nil {
			return fmt.Sprintf("  error: %v\n", err)
		}
		return fmt.Sprintf("  integration=%d saturated=%t X=%.4f Y=%.4f Z=%.4f\n",
			info.IntegrationTime(), info.IsSaturated(), info.X(), info.Y(), info.Z())
	}
	return fmt.Sprintf("  raw=%s\n", FormatHex(p.packetBytes))
}

// FormatHex formats bytes as space-separated uppercase hex, 16 per line
func FormatHex(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			if i%16 == 0 {
				sb.WriteByte('\n')
			} else {
				sb.WriteByte(' ')
			}
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
