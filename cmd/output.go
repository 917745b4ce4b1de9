// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
)

// packetWriter prints return packets as text, JSON lines or a CBOR sequence
type packetWriter struct {
	w      io.Writer
	format string
}

func newPacketWriter(w io.Writer, format string) (*packetWriter, error) {
	format = strings.ToLower(format)
	switch format {
	case "text", "json", "cbor":
	default:
		return nil, fmt.Errorf("unknown output format %q (use text, json or cbor)", format)
	}
	return &packetWriter{w: w, format: format}, nil
}

// Write prints p. Text output also lists validation anomalies.
func (pw *packetWriter) Write(p *nsp32.ReturnPacket) error {
	if pw.format == "text" {
		var s strings.Builder
		s.WriteString(nsp32.FormatPacket(p))
		for _, v := range nsp32.ValidatePacket(p) {
			fmt.Fprintf(&s, "  [ANOMALY] %s\n", v.Message)
		}
		_, err := io.WriteString(pw.w, s.String())
		return err
	}

	record, err := nsp32.NewRecord(p)
	if err != nil {
		return err
	}

	var data []byte
	if pw.format == "json" {
		data, err = record.EncodeJSON()
		data = append(data, '\n')
	} else {
		data, err = record.EncodeCBOR()
	}
	if err != nil {
		return err
	}
	_, err = pw.w.Write(data)
	return err
}
