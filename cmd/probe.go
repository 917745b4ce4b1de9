// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/spf13/cobra"
)

var probeTimeout time.Duration

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the connection by waiting for a valid Hello response",
	Long: `Reset the module and wait until it answers Hello, up to a timeout.

A module that never signals ready after reset is retried indefinitely by the
driver, so this command is the way to check wiring without hanging.

Exit codes:
  0 - Module answered before timeout
  1 - Timeout reached without a valid response
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 10*time.Second, "Time to wait for the module")
}

type probeResult struct {
	d        *nsp32.NSP32
	adaptor  deviceAdaptor
	connInfo string
	err      error
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, log, logCloser, err := setup(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	defer logCloser.Close()

	fmt.Printf("Spectrostat - Probe\n")
	fmt.Printf("Timeout: %s\n", probeTimeout)
	fmt.Printf("Waiting for module...\n\n")

	resultChan := make(chan probeResult, 1)
	start := time.Now()

	// openDevice blocks until the module answers
	go func() {
		d, adaptor, connInfo, err := openDevice(cfg.Device, log)
		resultChan <- probeResult{d: d, adaptor: adaptor, connInfo: connInfo, err: err}
	}()

	select {
	case r := <-resultChan:
		if r.err != nil {
			fmt.Fprintf(os.Stderr, "Connection error: %v\n", r.err)
			os.Exit(2)
		}
		defer r.adaptor.Close()

		stats := r.d.Statistics()
		fmt.Printf("SUCCESS: Module answered Hello\n")
		fmt.Printf("  Connection: %s\n", r.connInfo)
		fmt.Printf("  Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("  Wakeups: %d\n", stats.Wakeups)
		fmt.Printf("  Commands sent: %d\n", stats.CommandsSent)
		return nil

	case <-time.After(probeTimeout):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid response within %s\n", probeTimeout)
		os.Exit(1)
	}

	return nil
}
