// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var standbyCmd = &cobra.Command{
	Use:   "standby",
	Short: "Put the module into standby",
	Long: `Wake the module, then send it into low-power standby.

Any later command wakes the module again with a reset pulse.`,
	RunE: runStandby,
}

func init() {
	rootCmd.AddCommand(standbyCmd)
}

func runStandby(cmd *cobra.Command, args []string) error {
	cfg, log, logCloser, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	d, adaptor, connInfo, err := openDevice(cfg.Device, log)
	if err != nil {
		return err
	}
	defer adaptor.Close()

	d.Standby(0)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: standby (active=%t)\n", connInfo, d.IsActive())
	return nil
}
