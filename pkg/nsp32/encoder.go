// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import "fmt"

// EncodeCommand builds a complete command frame for code: prefixes, code,
// user code, payload, zero padding up to the fixed command length and the
// checksum.
func EncodeCommand(code CmdCode, userCode uint8, payload []byte) ([]byte, error) {
	l, ok := cmdTable[code]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(code))
	}
	return encodeFrame(code, userCode, payload, l.Command)
}

// EncodeReturnPacket builds a complete response frame for code, the way the
// module would send it
func EncodeReturnPacket(code CmdCode, userCode uint8, payload []byte) ([]byte, error) {
	l, ok := cmdTable[code]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(code))
	}
	return encodeFrame(code, userCode, payload, l.Return)
}

func encodeFrame(code CmdCode, userCode uint8, payload []byte, n int) ([]byte, error) {
	if HeaderSize+len(payload)+1 > n {
		return nil, fmt.Errorf("%w: %d bytes for %s (max %d)", ErrPayloadTooLarge, len(payload), FormatCmdCode(code), n-HeaderSize-1)
	}

	frame := make([]byte, n)
	frame[offsetPrefix0] = Prefix0
	frame[offsetPrefix1] = Prefix1
	frame[offsetCmdCode] = byte(code)
	frame[offsetUserCode] = userCode
	copy(frame[HeaderSize:], payload)
	PlaceChecksum(frame, n-1)

	return frame, nil
}
