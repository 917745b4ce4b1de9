// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/spectrostat/internal/config"
	"github.com/spf13/cobra"
)

var (
	acqCount       int
	acqMode        string
	acqIntegration uint16
	acqFrameAvg    uint8
	acqAE          bool
	acqFormat      string
	acqTimeout     time.Duration
)

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Run spectrum or XYZ acquisitions",
	Long: `Run one or more acquisitions and print each result.

Spectrum mode returns 135 spectrum points plus X, Y and Z. XYZ mode returns
only the tristimulus values. Output is human-readable text, one JSON object
per line, or a CBOR sequence (one map per acquisition).

Examples:
  spectrostat acquire --mode spectrum --integration 32 --frame-avg 3
  spectrostat acquire --mode xyz --count 10 --format json
  spectrostat acquire --simulate --format cbor > run.cbor`,
	RunE: runAcquire,
}

func init() {
	rootCmd.AddCommand(acquireCmd)
	addAcquisitionFlags(acquireCmd)
	f := acquireCmd.Flags()
	f.IntVarP(&acqCount, "count", "n", 1, "Number of acquisitions")
	f.StringVarP(&acqFormat, "format", "f", "text", "Output format (text, json or cbor)")
}

// addAcquisitionFlags registers the flags shared by acquire and monitor
func addAcquisitionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&acqMode, "mode", "m", "spectrum", "Acquisition mode (spectrum or xyz)")
	f.Uint16VarP(&acqIntegration, "integration", "i", 32, "Integration time")
	f.Uint8Var(&acqFrameAvg, "frame-avg", 3, "Frames averaged per acquisition")
	f.BoolVar(&acqAE, "ae", false, "Enable auto exposure")
	f.DurationVar(&acqTimeout, "timeout", 10*time.Second, "Time to wait for each acquisition")
}

// applyAcquireFlags overrides monitor settings with the flags the user set
func applyAcquireFlags(cmd *cobra.Command, cfg *config.MonitorConfig) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Mode = acqMode
	}
	if flags.Changed("integration") {
		cfg.IntegrationTime = acqIntegration
	}
	if flags.Changed("frame-avg") {
		cfg.FrameAvg = acqFrameAvg
	}
	if flags.Changed("ae") {
		cfg.AutoExposure = acqAE
	}
}

func runAcquire(cmd *cobra.Command, args []string) error {
	cfg, log, logCloser, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	applyAcquireFlags(cmd, &cfg.Monitor)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if acqCount < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	out, err := newPacketWriter(cmd.OutOrStdout(), acqFormat)
	if err != nil {
		return err
	}

	d, adaptor, connInfo, err := openDevice(cfg.Device, log)
	if err != nil {
		return err
	}
	defer adaptor.Close()

	acq := acquisitionFromConfig(cfg.Monitor)
	if out.format == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "Spectrostat - Acquire\nConnection: %s\nSettings: %s\n\n", connInfo, acq)
	}

	ctx := cmd.Context()
	for i := 0; i < acqCount; i++ {
		acqCtx, cancel := context.WithTimeout(ctx, acqTimeout)
		p, err := acquire(acqCtx, d, acq)
		cancel()
		if err != nil {
			return fmt.Errorf("acquisition %d: %w", i+1, err)
		}
		if err := out.Write(p); err != nil {
			return err
		}
		log.WithField("stats", d.Statistics().String()).Debug("acquisition complete")
	}
	return nil
}
