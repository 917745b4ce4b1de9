// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

// PlaceChecksum writes the modular-sum checksum of buf[0:n] to buf[n].
// The checksum is the two's complement of the byte sum, so the whole
// frame sums to zero.
func PlaceChecksum(buf []byte, n int) {
	var sum byte
	for _, b := range buf[:n] {
		sum += b
	}
	buf[n] = -sum
}

// IsChecksumValid reports whether buf[0:n], checksum included, sums to zero
// modulo 256.
func IsChecksumValid(buf []byte, n int) bool {
	if n <= 0 || n > len(buf) {
		return false
	}
	var sum byte
	for _, b := range buf[:n] {
		sum += b
	}
	return sum == 0
}
