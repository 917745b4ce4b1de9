// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/spectrostat/internal/config"
	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gammazero/deque"
	"github.com/spf13/cobra"
)

var (
	monInterval time.Duration
	monHistory  int
	monTUI      bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run repeated acquisitions with a live display",
	Long: `Run acquisitions continuously and display the results.

The terminal UI shows the current settings, driver statistics, the latest
reading, a history of recent X/Y/Z values and a log of anomalies. Keys:
  m  switch between spectrum and xyz mode
  a  toggle auto exposure
  i  edit integration time (enter applies, esc cancels)
  q  quit

Use --tui=false for plain line output, e.g. when logging to a file.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addAcquisitionFlags(monitorCmd)
	f := monitorCmd.Flags()
	f.DurationVar(&monInterval, "interval", time.Second, "Pause between acquisitions")
	f.IntVar(&monHistory, "history", 20, "Number of readings kept in the history")
	f.BoolVar(&monTUI, "tui", true, "Use the interactive terminal UI")
}

func applyMonitorFlags(cmd *cobra.Command, cfg *config.MonitorConfig) {
	applyAcquireFlags(cmd, cfg)
	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.Interval = monInterval
	}
	if flags.Changed("history") {
		cfg.History = monHistory
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, log, logCloser, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	applyMonitorFlags(cmd, &cfg.Monitor)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// the TUI owns the terminal
	if monTUI && cfg.Log.Output != "file" {
		log.SetOutput(io.Discard)
	}

	d, adaptor, connInfo, err := openDevice(cfg.Device, log)
	if err != nil {
		return err
	}
	defer adaptor.Close()

	var wavelengths []uint16
	if err := d.GetWavelength(0); err == nil {
		if p, ok := d.GetReturnPacket(); ok {
			if info, err := p.ExtractWavelengthInfo(); err == nil {
				wavelengths = info.Wavelength()
			}
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	acq := acquisitionFromConfig(cfg.Monitor)
	w := newMonitorWorker(d, cfg.Monitor.Interval, acqTimeout)

	if !monTUI {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Spectrostat - Monitor\nConnection: %s\nSettings: %s\n\n", connInfo, acq)
		history := newXYZHistory(cfg.Monitor.History)
		w.run(ctx, acq, func(r monitorResult) {
			fmt.Fprint(out, formatMonitorLine(r, history))
		})
		return nil
	}

	m := newMonitorModel(ctx, w, connInfo, acq, cfg.Monitor.History, wavelengths)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go w.run(ctx, acq, func(r monitorResult) {
		p.Send(monitorResultMsg(r))
	})

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// monitorResult is the outcome of one acquisition
type monitorResult struct {
	settings  acquisition
	packet    *nsp32.ReturnPacket
	anomalies []nsp32.ValidationError
	stats     nsp32.Statistics
	err       error
}

// monitorWorker owns the driver and runs acquisitions back to back
type monitorWorker struct {
	d        *nsp32.NSP32
	interval time.Duration
	timeout  time.Duration
	settings chan acquisition
}

func newMonitorWorker(d *nsp32.NSP32, interval, timeout time.Duration) *monitorWorker {
	return &monitorWorker{
		d:        d,
		interval: interval,
		timeout:  timeout,
		settings: make(chan acquisition),
	}
}

// Apply hands new settings to the worker. It returns false if ctx ends
// first.
func (w *monitorWorker) Apply(ctx context.Context, acq acquisition) bool {
	select {
	case w.settings <- acq:
		return true
	case <-ctx.Done():
		return false
	}
}

// run acquires with acq, reporting each result to emit, until ctx ends.
// New settings take effect with the next acquisition.
func (w *monitorWorker) run(ctx context.Context, acq acquisition, emit func(monitorResult)) {
	for {
		acqCtx, cancel := context.WithTimeout(ctx, w.timeout)
		p, err := acquire(acqCtx, w.d, acq)
		cancel()
		if ctx.Err() != nil {
			return
		}

		r := monitorResult{settings: acq, stats: w.d.Statistics(), err: err}
		if err == nil {
			r.packet = p
			r.anomalies = nsp32.ValidatePacket(p)
		}
		emit(r)

		pause := time.NewTimer(w.interval)
	wait:
		for {
			select {
			case <-ctx.Done():
				pause.Stop()
				return
			case acq = <-w.settings:
			case <-pause.C:
				break wait
			}
		}
	}
}

// xyzSample is one tristimulus reading
type xyzSample struct {
	timestamp       time.Time
	x, y, z         float32
	integrationTime uint16
	saturated       bool
}

// sampleFromPacket extracts X/Y/Z from a spectrum or XYZ packet
func sampleFromPacket(p *nsp32.ReturnPacket) (xyzSample, bool) {
	s := xyzSample{timestamp: p.Timestamp()}
	switch p.CmdCode() {
	case nsp32.CmdGetSpectrum:
		info, err := p.ExtractSpectrumInfo()
		if err != nil {
			return s, false
		}
		s.x, s.y, s.z = info.X(), info.Y(), info.Z()
		s.integrationTime, s.saturated = info.IntegrationTime(), info.IsSaturated()
	case nsp32.CmdGetXYZ:
		info, err := p.ExtractXYZInfo()
		if err != nil {
			return s, false
		}
		s.x, s.y, s.z = info.X(), info.Y(), info.Z()
		s.integrationTime, s.saturated = info.IntegrationTime(), info.IsSaturated()
	default:
		return s, false
	}
	return s, true
}

// xyzHistory keeps the most recent readings, oldest first
type xyzHistory struct {
	samples deque.Deque[xyzSample]
	size    int
}

func newXYZHistory(size int) *xyzHistory {
	return &xyzHistory{size: size}
}

func (h *xyzHistory) Add(s xyzSample) {
	h.samples.PushBack(s)
	for h.samples.Len() > h.size {
		h.samples.PopFront()
	}
}

func (h *xyzHistory) Len() int {
	return h.samples.Len()
}

// At returns the i-th reading, 0 being the oldest
func (h *xyzHistory) At(i int) xyzSample {
	return h.samples.At(i)
}

// Mean returns the average of the kept readings
func (h *xyzHistory) Mean() (x, y, z float64) {
	n := h.samples.Len()
	if n == 0 {
		return 0, 0, 0
	}
	for i := 0; i < n; i++ {
		s := h.samples.At(i)
		x += float64(s.x)
		y += float64(s.y)
		z += float64(s.z)
	}
	return x / float64(n), y / float64(n), z / float64(n)
}

// chromaticity returns the CIE x,y coordinates of a reading
func chromaticity(s xyzSample) (cx, cy float64, ok bool) {
	sum := float64(s.x) + float64(s.y) + float64(s.z)
	if sum <= 0 {
		return 0, 0, false
	}
	return float64(s.x) / sum, float64(s.y) / sum, true
}

// formatMonitorLine renders one result for plain output and records it in
// history
func formatMonitorLine(r monitorResult, history *xyzHistory) string {
	now := time.Now().Format("15:04:05.000")
	if r.err != nil {
		return fmt.Sprintf("[%s] ERROR %v\n", now, r.err)
	}

	s, ok := sampleFromPacket(r.packet)
	if !ok {
		return fmt.Sprintf("[%s] %s (no XYZ)\n", now, r.packet.CmdCode())
	}
	history.Add(s)
	mx, my, mz := history.Mean()

	line := fmt.Sprintf("[%s] %s X=%.4f Y=%.4f Z=%.4f it=%d", now, r.settings.mode, s.x, s.y, s.z, s.integrationTime)
	if cx, cy, ok := chromaticity(s); ok {
		line += fmt.Sprintf(" xy=(%.4f,%.4f)", cx, cy)
	}
	if s.saturated {
		line += " SATURATED"
	}
	line += fmt.Sprintf(" | mean(%d) X=%.4f Y=%.4f Z=%.4f\n", history.Len(), mx, my, mz)

	for _, a := range r.anomalies {
		line += fmt.Sprintf("  [ANOMALY] %s\n", a.Message)
	}
	return line
}
