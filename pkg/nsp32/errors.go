// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import "errors"

var (
	// ErrResponseInvalid is returned when a response frame fails validation
	// or does not arrive in time. UART timeouts wrap this error.
	ErrResponseInvalid = errors.New("nsp32: response invalid")

	// ErrUnknownCommand is returned for command codes with no table entry
	ErrUnknownCommand = errors.New("nsp32: unknown command code")

	// ErrPacketTypeMismatch is returned when a typed view is requested from a
	// return packet of a different command
	ErrPacketTypeMismatch = errors.New("nsp32: packet type mismatch")

	// ErrPacketTooShort is returned when a raw frame is shorter than its
	// command's fixed return length
	ErrPacketTooShort = errors.New("nsp32: packet too short")

	// ErrBadPrefix is returned when a raw frame does not start with 0x03 0xBB
	ErrBadPrefix = errors.New("nsp32: bad packet prefix")

	// ErrChecksum is returned when a raw frame does not sum to zero
	ErrChecksum = errors.New("nsp32: checksum mismatch")

	// ErrPayloadTooLarge is returned when a payload does not fit its frame
	ErrPayloadTooLarge = errors.New("nsp32: payload too large")
)
