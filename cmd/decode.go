// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/spf13/cobra"
)

var decodeFormat string

var decodeCmd = &cobra.Command{
	Use:   "decode [HEX_FRAME...]",
	Short: "Decode hex-encoded response frames",
	Long: `Parse NSP32 response frames given as hex and print their contents.

Frames are taken from the arguments, or one per line from stdin when no
arguments are given. Spaces, colons, commas and 0x prefixes are ignored.
Every frame is checked for prefix, length and checksum, then validated for
anomalous values.

Example:
  spectrostat decode "03 BB 06 01 4E 53 50 33 32 E5"`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "text", "Output format (text, json or cbor)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	out, err := newPacketWriter(cmd.OutOrStdout(), decodeFormat)
	if err != nil {
		return err
	}

	frames := args
	if len(frames) == 0 {
		frames, err = readLines(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	failed := 0
	for i, frame := range frames {
		if err := decodeFrame(frame, out); err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "[ERROR] frame %d: %v\n", i+1, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d frames invalid", failed, len(frames))
	}
	return nil
}

func decodeFrame(frame string, out *packetWriter) error {
	raw, err := parseHexFrame(frame)
	if err != nil {
		return err
	}
	p, err := nsp32.ParseReturnPacket(raw)
	if err != nil {
		return err
	}
	return out.Write(p)
}

// parseHexFrame accepts "03BB01..", "03 BB 01", "0x03,0xBB" and similar
func parseHexFrame(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "0x", "")
	s = strings.ReplaceAll(s, "0X", "")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', ':', ',', '-':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, fmt.Errorf("empty frame")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return raw, nil
}

// readLines returns the non-blank lines of r
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return lines, nil
}
