// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Spectrostat - NSP32 Spectrometer Tool
//
// A CLI tool for driving NSP32 spectrometer modules over SPI or UART,
// monitoring acquisitions and bridging an upstream host to the module.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/spectrostat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
