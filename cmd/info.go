// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/spf13/cobra"
)

var infoFormat string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print sensor id and wavelength table",
	Long: `Wake the module and read its sensor id and wavelength table.

The wavelength table lists the center wavelength in nm of every spectrum
point.`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringVarP(&infoFormat, "format", "f", "text", "Output format (text, json or cbor)")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, log, logCloser, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	out, err := newPacketWriter(cmd.OutOrStdout(), infoFormat)
	if err != nil {
		return err
	}

	d, adaptor, connInfo, err := openDevice(cfg.Device, log)
	if err != nil {
		return err
	}
	defer adaptor.Close()

	if out.format == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "Spectrostat - Sensor Info\nConnection: %s\n\n", connInfo)
	}
	return readInfo(d, out)
}

// readInfo requests the sensor id and wavelength table and writes both
func readInfo(d *nsp32.NSP32, out *packetWriter) error {
	requests := []struct {
		name string
		send func(uint8) error
	}{
		{"sensor id", d.GetSensorId},
		{"wavelength table", d.GetWavelength},
	}

	for i, req := range requests {
		if err := req.send(uint8(i + 1)); err != nil {
			return fmt.Errorf("failed to read %s: %w", req.name, err)
		}
		p, ok := d.GetReturnPacket()
		if !ok {
			return fmt.Errorf("failed to read %s: no response", req.name)
		}
		if err := out.Write(p); err != nil {
			return err
		}
	}
	return nil
}
