// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

// forwardBuffer re-frames a raw byte stream from an upstream host into
// complete command frames. It holds at most one filled command at a time.
type forwardBuffer struct {
	buf      []byte
	writeIdx int
	cmdLen   int
	filled   bool
}

func newForwardBuffer() forwardBuffer {
	return forwardBuffer{buf: make([]byte, CmdBufSize)}
}

// push processes one byte. It returns discarded=true when the bytes
// accumulated so far were dropped because of a misaligned prefix, an unknown
// command code or a failed checksum.
func (f *forwardBuffer) push(b byte) (discarded bool) {
	// A filled command must be consumed before new bytes are accepted
	if f.filled {
		return false
	}

	// Align the frame so that prefix 0 lands at the start of the buffer
	if ((f.writeIdx == 0 && b == Prefix0) || f.writeIdx > 0) && f.writeIdx < len(f.buf) {
		f.buf[f.writeIdx] = b
		f.writeIdx++
	}

	if f.writeIdx > 1 && f.buf[offsetPrefix1] != Prefix1 {
		f.writeIdx = 0
		return true
	}
	if f.writeIdx <= offsetCmdCode {
		return false
	}

	f.cmdLen = CommandLength(CmdCode(f.buf[offsetCmdCode]))
	if f.cmdLen <= 0 {
		f.writeIdx = 0
		return true
	}
	if f.writeIdx < f.cmdLen {
		return false
	}

	f.writeIdx = 0
	if !IsChecksumValid(f.buf, f.cmdLen) {
		return true
	}
	f.filled = true
	return false
}

// take copies the filled command into dst and frees the buffer for new bytes
func (f *forwardBuffer) take(dst []byte) int {
	n := copy(dst, f.buf[:f.cmdLen])
	f.filled = false
	return n
}
