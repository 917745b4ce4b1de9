// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexFrame(t *testing.T) {
	want := []byte{0x03, 0xBB, 0x01, 0x00, 0x41}

	tests := []struct {
		name  string
		input string
	}{
		{"compact", "03BB010041"},
		{"spaced", "03 BB 01 00 41"},
		{"lowercase", "03 bb 01 00 41"},
		{"prefixed", "0x03,0xBB,0x01,0x00,0x41"},
		{"colons", "03:BB:01:00:41"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHexFrame(tt.input)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := parseHexFrame("  ")
	assert.Error(t, err)
	_, err = parseHexFrame("03 BB 0")
	assert.Error(t, err)
	_, err = parseHexFrame("zz")
	assert.Error(t, err)
}

func TestReadLines(t *testing.T) {
	lines, err := readLines(strings.NewReader("03BB\n\n  \n0x01 0x02\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"03BB", "0x01 0x02"}, lines)
}

func TestDecodeFrame(t *testing.T) {
	var buf bytes.Buffer
	out, err := newPacketWriter(&buf, "text")
	require.NoError(t, err)

	frame, err := nsp32.EncodeReturnPacket(nsp32.CmdGetSensorId, 1, []byte{0x4E, 0x53, 0x50, 0x33, 0x32})
	require.NoError(t, err)

	require.NoError(t, decodeFrame(nsp32.FormatHex(frame), out))
	assert.Contains(t, buf.String(), "sensor_id=4E-53-50-33-32")

	// checksum broken
	frame[len(frame)-1]++
	assert.ErrorIs(t, decodeFrame(nsp32.FormatHex(frame), out), nsp32.ErrChecksum)
}

func TestBuildCommand(t *testing.T) {
	frame, err := buildCommand("hello", 0, 0, 0, false)
	require.NoError(t, err)
	assert.Equal(t, nsp32.NewHelloCommand(0), frame)

	frame, err = buildCommand("ACQ-SPECTRUM", 5, 300, 2, true)
	require.NoError(t, err)
	assert.Equal(t, nsp32.NewAcqSpectrumCommand(5, 300, 2, true), frame)

	frame, err = buildCommand("xyz", 9, 0, 0, false)
	require.NoError(t, err)
	assert.Len(t, frame, nsp32.CommandLength(nsp32.CmdGetXYZ))
	assert.True(t, nsp32.IsChecksumValid(frame, len(frame)))

	_, err = buildCommand("reboot", 0, 0, 0, false)
	assert.ErrorContains(t, err, "unknown command")
}

func TestCommandNames_CoverTable(t *testing.T) {
	seen := make(map[nsp32.CmdCode]bool)
	for _, code := range commandNames {
		seen[code] = true
		assert.Positive(t, nsp32.CommandLength(code), "%s has no table entry", code)
	}
	assert.Len(t, seen, 8)
}

// runRoot executes the root command with args and captured output
func runRoot(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestEncodeCommand_Execute(t *testing.T) {
	stdout, _, err := runRoot(t, "", "encode", "standby", "--user-code", "0")
	require.NoError(t, err)
	assert.Equal(t, "03 BB 04 00 3E\n", stdout)
}

func TestDecodeCommand_Execute(t *testing.T) {
	good := nsp32.FormatHex(nsp32.NewHelloCommand(0))

	stdout, stderr, err := runRoot(t, good+"\n03 BB 01 00 00\n", "decode")
	assert.ErrorContains(t, err, "1 of 2 frames invalid")
	assert.Contains(t, stdout, "HELLO (0x01)")
	assert.Contains(t, stderr, "[ERROR] frame 2")
}
