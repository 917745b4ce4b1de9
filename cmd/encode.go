// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/spf13/cobra"
)

var (
	encUserCode    uint8
	encIntegration uint16
	encFrameAvg    uint8
	encAE          bool
	encRaw         bool
)

// commandNames maps CLI names to command codes
var commandNames = map[string]nsp32.CmdCode{
	"hello":        nsp32.CmdHello,
	"standby":      nsp32.CmdStandby,
	"sensor-id":    nsp32.CmdGetSensorId,
	"wavelength":   nsp32.CmdGetWavelength,
	"acq-spectrum": nsp32.CmdAcqSpectrum,
	"spectrum":     nsp32.CmdGetSpectrum,
	"acq-xyz":      nsp32.CmdAcqXYZ,
	"xyz":          nsp32.CmdGetXYZ,
}

var encodeCmd = &cobra.Command{
	Use:   "encode COMMAND",
	Short: "Print the frame for a command",
	Long: `Build an NSP32 command frame and print it as hex.

Commands: ` + strings.Join(sortedCommandNames(), ", ") + `

Acquisition commands take --integration, --frame-avg and --ae. Use --raw to
write the frame bytes unencoded, for piping into a serial port.

Example:
  spectrostat encode acq-xyz --integration 64 --frame-avg 1`,
	Args: cobra.ExactArgs(1),
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	f := encodeCmd.Flags()
	f.Uint8VarP(&encUserCode, "user-code", "u", 0, "User code echoed by the module")
	f.Uint16VarP(&encIntegration, "integration", "i", 32, "Integration time (acquisitions)")
	f.Uint8Var(&encFrameAvg, "frame-avg", 3, "Frames averaged (acquisitions)")
	f.BoolVar(&encAE, "ae", false, "Enable auto exposure (acquisitions)")
	f.BoolVar(&encRaw, "raw", false, "Write raw bytes instead of hex")
}

func sortedCommandNames() []string {
	names := make([]string, 0, len(commandNames))
	for name := range commandNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildCommand returns the frame for the named command
func buildCommand(name string, userCode uint8, integrationTime uint16, frameAvgNum uint8, enableAE bool) ([]byte, error) {
	code, ok := commandNames[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown command %q (use one of %s)", name, strings.Join(sortedCommandNames(), ", "))
	}

	switch code {
	case nsp32.CmdAcqSpectrum:
		return nsp32.NewAcqSpectrumCommand(userCode, integrationTime, frameAvgNum, enableAE), nil
	case nsp32.CmdAcqXYZ:
		return nsp32.NewAcqXYZCommand(userCode, integrationTime, frameAvgNum, enableAE), nil
	default:
		return nsp32.EncodeCommand(code, userCode, nil)
	}
}

func runEncode(cmd *cobra.Command, args []string) error {
	frame, err := buildCommand(args[0], encUserCode, encIntegration, encFrameAvg, encAE)
	if err != nil {
		return err
	}

	if encRaw {
		_, err = cmd.OutOrStdout().Write(frame)
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), nsp32.FormatHex(frame))
	return err
}
