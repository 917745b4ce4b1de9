// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// TUI model
type monitorModel struct {
	ctx    context.Context
	worker *monitorWorker

	connInfo    string
	settings    acquisition
	wavelengths []uint16

	stats       nsp32.Statistics
	acquired    int
	failed      int
	anomalies   int
	last        *xyzSample
	lastPeakNm  uint16
	history     *xyzHistory
	eventLog    []eventLogEntry
	maxLogLines int

	spinner  spinner.Model
	input    textinput.Model
	editing  bool
	width    int
	height   int
	quitting bool
}

// Messages
type monitorResultMsg monitorResult
type settingsAppliedMsg acquisition

// formatUptime formats a duration as "1h 2m 3s"
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func newMonitorModel(ctx context.Context, w *monitorWorker, connInfo string, settings acquisition, historySize int, wavelengths []uint16) monitorModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	ti := textinput.New()
	ti.Placeholder = "32"
	ti.CharLimit = 5
	ti.Width = 8

	return monitorModel{
		ctx:         ctx,
		worker:      w,
		connInfo:    connInfo,
		settings:    settings,
		wavelengths: wavelengths,
		history:     newXYZHistory(historySize),
		eventLog:    make([]eventLogEntry, 0),
		maxLogLines: 100,
		spinner:     sp,
		input:       ti,
		width:       80,
		height:      24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// applySettings sends new settings to the worker off the UI goroutine
func (m monitorModel) applySettings(acq acquisition) tea.Cmd {
	return func() tea.Msg {
		if !m.worker.Apply(m.ctx, acq) {
			return nil
		}
		return settingsAppliedMsg(acq)
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "m":
			next := m.settings
			if next.mode == "spectrum" {
				next.mode = "xyz"
			} else {
				next.mode = "spectrum"
			}
			return m, m.applySettings(next)
		case "a":
			next := m.settings
			next.enableAE = !next.enableAE
			return m, m.applySettings(next)
		case "i":
			m.editing = true
			m.input.SetValue(strconv.Itoa(int(m.settings.integrationTime)))
			return m, m.input.Focus()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case settingsAppliedMsg:
		m.settings = acquisition(msg)
		m.addLogEntry(fmt.Sprintf("Settings: %s", m.settings), false)

	case monitorResultMsg:
		m.processResult(monitorResult(msg))
	}

	return m, nil
}

func (m monitorModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editing = false
		m.input.Blur()
		return m, nil
	case "enter":
		m.editing = false
		m.input.Blur()
		v, err := strconv.ParseUint(strings.TrimSpace(m.input.Value()), 10, 16)
		if err != nil || v == 0 {
			m.addLogEntry(fmt.Sprintf("Invalid integration time %q", m.input.Value()), true)
			return m, nil
		}
		next := m.settings
		next.integrationTime = uint16(v)
		return m, m.applySettings(next)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) processResult(r monitorResult) {
	m.stats = r.stats
	if r.err != nil {
		m.failed++
		m.addLogEntry(fmt.Sprintf("ACQUISITION FAILED: %v", r.err), true)
		return
	}

	m.acquired++
	if s, ok := sampleFromPacket(r.packet); ok {
		m.last = &s
		m.history.Add(s)
	}
	m.lastPeakNm = m.peakWavelength(r.packet)

	name := r.packet.CmdCode().String()
	for _, a := range r.anomalies {
		m.anomalies++
		m.addLogEntry(fmt.Sprintf("%s: %s", name, a.Message), true)
	}
}

// peakWavelength returns the wavelength of the strongest spectrum point, or
// 0 for packets without a spectrum
func (m monitorModel) peakWavelength(p *nsp32.ReturnPacket) uint16 {
	info, err := p.ExtractSpectrumInfo()
	if err != nil {
		return 0
	}
	spectrum := info.Spectrum()
	peak := -1
	for i, v := range spectrum {
		if peak < 0 || v > spectrum[peak] {
			peak = i
		}
	}
	if peak < 0 || peak >= len(m.wavelengths) {
		return 0
	}
	return m.wavelengths[peak]
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogLines {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogLines:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("SPECTROSTAT - MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | m: mode  a: auto exposure  i: integration  q: quit", m.connInfo)))
	s.WriteString("\n\n")

	// Settings
	settings := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("Mode:"), valueStyle.Render(m.settings.mode),
		labelStyle.Render("Integration:"), m.integrationView(valueStyle),
		labelStyle.Render("Frame avg:"), valueStyle.Render(strconv.Itoa(int(m.settings.frameAvgNum))),
		labelStyle.Render("AE:"), valueStyle.Render(strconv.FormatBool(m.settings.enableAE)),
	)
	s.WriteString(m.spinner.View() + " " + settings)
	s.WriteString("\n\n")

	// Statistics
	stats := strings.Builder{}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Acquisitions:"), valueStyle.Render(strconv.Itoa(m.acquired)),
		labelStyle.Render("Failed:"), m.countView(m.failed, valueStyle, errorStyle),
		labelStyle.Render("Anomalies:"), m.countView(m.anomalies, valueStyle, warningStyle),
	))
	stats.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Commands:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.CommandsSent)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%.1f%%", m.stats.SuccessRate())),
		labelStyle.Render("Retries:"), m.countView(int(m.stats.Retries), valueStyle, warningStyle),
		labelStyle.Render("Timeouts:"), m.countView(int(m.stats.Timeouts), valueStyle, errorStyle),
	))
	uptime := "-"
	if !m.stats.StartTime.IsZero() {
		uptime = formatUptime(m.stats.Uptime())
	}
	stats.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Wakeups:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.Wakeups)),
		labelStyle.Render("Uptime:"), valueStyle.Render(uptime),
	))
	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	// Latest reading
	if m.last != nil {
		s.WriteString(labelStyle.Render("Latest Reading:"))
		s.WriteString("\n")

		reading := strings.Builder{}
		reading.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("X:"), valueStyle.Render(fmt.Sprintf("%.4f", m.last.x)),
			labelStyle.Render("Y:"), valueStyle.Render(fmt.Sprintf("%.4f", m.last.y)),
			labelStyle.Render("Z:"), valueStyle.Render(fmt.Sprintf("%.4f", m.last.z)),
		))
		if cx, cy, ok := chromaticity(*m.last); ok {
			reading.WriteString(fmt.Sprintf("%s %s\n",
				labelStyle.Render("Chromaticity:"), valueStyle.Render(fmt.Sprintf("x=%.4f y=%.4f", cx, cy))))
		}
		if m.lastPeakNm > 0 {
			reading.WriteString(fmt.Sprintf("%s %s\n",
				labelStyle.Render("Peak:"), valueStyle.Render(fmt.Sprintf("%d nm", m.lastPeakNm))))
		}
		mx, my, mz := m.history.Mean()
		reading.WriteString(fmt.Sprintf("%s %s",
			labelStyle.Render(fmt.Sprintf("Mean of %d:", m.history.Len())),
			valueStyle.Render(fmt.Sprintf("X=%.4f Y=%.4f Z=%.4f", mx, my, mz))))
		if m.last.saturated {
			reading.WriteString("\n" + errorStyle.Render("SATURATED - reduce integration time"))
		}
		s.WriteString(boxStyle.Render(reading.String()))
		s.WriteString("\n\n")

		// History
		s.WriteString(labelStyle.Render("History:"))
		s.WriteString("\n")
		history := strings.Builder{}
		rows := m.history.Len()
		if limit := 8; rows > limit {
			rows = limit
		}
		for i := m.history.Len() - rows; i < m.history.Len(); i++ {
			h := m.history.At(i)
			line := fmt.Sprintf("%s  X=%.4f Y=%.4f Z=%.4f",
				h.timestamp.Format("15:04:05.000"), h.x, h.y, h.z)
			if h.saturated {
				history.WriteString(warningStyle.Render(line + " (saturated)"))
			} else {
				history.WriteString(line)
			}
			if i < m.history.Len()-1 {
				history.WriteString("\n")
			}
		}
		s.WriteString(boxStyle.Render(history.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 30 // Reserve space for the panels above
	if logHeight < 3 {
		logHeight = 3
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

func (m monitorModel) integrationView(valueStyle lipgloss.Style) string {
	if m.editing {
		return m.input.View()
	}
	return valueStyle.Render(strconv.Itoa(int(m.settings.integrationTime)))
}

func (m monitorModel) countView(n int, okStyle, badStyle lipgloss.Style) string {
	if n > 0 {
		return badStyle.Render(strconv.Itoa(n))
	}
	return okStyle.Render(strconv.Itoa(n))
}
