// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXYZHistory_KeepsNewest(t *testing.T) {
	h := newXYZHistory(3)
	for i := 1; i <= 5; i++ {
		h.Add(xyzSample{x: float32(i), y: float32(2 * i), z: 1})
	}

	require.Equal(t, 3, h.Len())
	assert.Equal(t, float32(3), h.At(0).x)
	assert.Equal(t, float32(5), h.At(2).x)

	x, y, z := h.Mean()
	assert.InDelta(t, 4.0, x, 1e-9)
	assert.InDelta(t, 8.0, y, 1e-9)
	assert.InDelta(t, 1.0, z, 1e-9)
}

func TestXYZHistory_EmptyMean(t *testing.T) {
	x, y, z := newXYZHistory(4).Mean()
	assert.Zero(t, x)
	assert.Zero(t, y)
	assert.Zero(t, z)
}

func TestChromaticity(t *testing.T) {
	cx, cy, ok := chromaticity(xyzSample{x: 1, y: 1, z: 1})
	require.True(t, ok)
	assert.InDelta(t, 1.0/3, cx, 1e-6)
	assert.InDelta(t, 1.0/3, cy, 1e-6)

	_, _, ok = chromaticity(xyzSample{})
	assert.False(t, ok)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0s", formatUptime(0))
	assert.Equal(t, "42s", formatUptime(42*time.Second))
	assert.Equal(t, "2m 5s", formatUptime(125*time.Second))
	assert.Equal(t, "1h 0m 1s", formatUptime(time.Hour+time.Second))
}

// collectResults runs the worker until it has emitted n results
func collectResults(t *testing.T, w *monitorWorker, acq acquisition, n int, during func(i int)) []monitorResult {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu      sync.Mutex
		results []monitorResult
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run(ctx, acq, func(r monitorResult) {
			mu.Lock()
			results = append(results, r)
			count := len(results)
			mu.Unlock()
			if during != nil {
				during(count)
			}
			if count == n {
				cancel()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
	}
	mu.Lock()
	defer mu.Unlock()
	return results
}

func TestMonitorWorker_RunsAcquisitions(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	w := newMonitorWorker(d, time.Millisecond, time.Second)

	results := collectResults(t, w, acquisition{mode: "xyz", integrationTime: 10, frameAvgNum: 1}, 3, nil)
	require.Len(t, results, 3)
	for _, r := range results {
		require.NoError(t, r.err)
		assert.Equal(t, nsp32.CmdGetXYZ, r.packet.CmdCode())
		assert.Empty(t, r.anomalies)
	}
	assert.Equal(t, uint64(3), results[2].stats.AsyncCompleted)
}

func TestMonitorWorker_AppliesSettings(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelUART)
	w := newMonitorWorker(d, 200*time.Millisecond, time.Second)

	applyCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	applied := make(chan bool, 1)
	results := collectResults(t, w, acquisition{mode: "xyz", integrationTime: 10, frameAvgNum: 1}, 2, func(i int) {
		if i == 1 {
			go func() {
				applied <- w.Apply(applyCtx, acquisition{mode: "spectrum", integrationTime: 20, frameAvgNum: 1})
			}()
		}
	})
	require.True(t, <-applied)

	require.Len(t, results, 2)
	assert.Equal(t, nsp32.CmdGetXYZ, results[0].packet.CmdCode())
	assert.Equal(t, nsp32.CmdGetSpectrum, results[1].packet.CmdCode())
	assert.Equal(t, "spectrum", results[1].settings.mode)
}

func TestMonitorWorker_ApplyAfterCancel(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	w := newMonitorWorker(d, time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, w.Apply(ctx, acquisition{mode: "xyz"}))
}

func TestFormatMonitorLine(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	p, err := acquire(context.Background(), d, acquisition{mode: "xyz", integrationTime: 10, frameAvgNum: 1})
	require.NoError(t, err)

	h := newXYZHistory(5)
	line := formatMonitorLine(monitorResult{settings: acquisition{mode: "xyz"}, packet: p}, h)
	assert.Contains(t, line, "xyz X=")
	assert.Contains(t, line, "mean(1)")
	assert.Equal(t, 1, h.Len())

	line = formatMonitorLine(monitorResult{err: errors.New("no ready")}, h)
	assert.Contains(t, line, "ERROR no ready")
	assert.Equal(t, 1, h.Len())
}

func newTestModel(t *testing.T) monitorModel {
	t.Helper()
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	w := newMonitorWorker(d, time.Millisecond, time.Second)
	wavelengths := make([]uint16, nsp32.SpectrumPoints)
	for i := range wavelengths {
		wavelengths[i] = uint16(340 + 5*i)
	}
	return newMonitorModel(context.Background(), w, "test", acquisition{mode: "spectrum", integrationTime: 32, frameAvgNum: 3}, 4, wavelengths)
}

func TestMonitorModel_ProcessResult(t *testing.T) {
	m := newTestModel(t)
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	p, err := acquire(context.Background(), d, acquisition{mode: "spectrum", integrationTime: 32, frameAvgNum: 1})
	require.NoError(t, err)

	next, _ := m.Update(monitorResultMsg{settings: m.settings, packet: p, stats: d.Statistics()})
	m = next.(monitorModel)

	assert.Equal(t, 1, m.acquired)
	require.NotNil(t, m.last)
	assert.Equal(t, 1, m.history.Len())
	assert.NotZero(t, m.lastPeakNm)

	next, _ = m.Update(monitorResultMsg{err: errors.New("timeout")})
	m = next.(monitorModel)
	assert.Equal(t, 1, m.failed)
	require.NotEmpty(t, m.eventLog)
	assert.True(t, m.eventLog[len(m.eventLog)-1].isError)

	view := m.View()
	assert.Contains(t, view, "SPECTROSTAT - MONITOR")
	assert.Contains(t, view, "Latest Reading:")
	assert.Contains(t, view, "ACQUISITION FAILED")
}

func TestMonitorModel_EditIntegration(t *testing.T) {
	m := newTestModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("i")})
	m = next.(monitorModel)
	require.True(t, m.editing)
	assert.Equal(t, "32", m.input.Value())

	// invalid value is rejected
	m.input.SetValue("abc")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(monitorModel)
	assert.False(t, m.editing)
	assert.Nil(t, cmd)
	assert.Contains(t, m.eventLog[len(m.eventLog)-1].message, "Invalid integration time")

	// a settings change only lands once the worker has accepted it
	next, _ = m.Update(settingsAppliedMsg(acquisition{mode: "xyz", integrationTime: 64, frameAvgNum: 3}))
	m = next.(monitorModel)
	assert.Equal(t, uint16(64), m.settings.integrationTime)
	assert.True(t, strings.HasPrefix(m.eventLog[len(m.eventLog)-1].message, "Settings: xyz"))
}

func TestMonitorModel_Quit(t *testing.T) {
	m := newTestModel(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, next.(monitorModel).quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
