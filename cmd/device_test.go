// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/spectrostat/internal/config"
	"github.com/Thermoquad/spectrostat/internal/logging"
	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/Thermoquad/spectrostat/pkg/simulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var channels = []nsp32.DataChannel{nsp32.ChannelSPI, nsp32.ChannelUART}

// newSimDriver returns an initialized driver backed by a fast simulator
func newSimDriver(t *testing.T, channel nsp32.DataChannel) (*nsp32.NSP32, *simulator.Device) {
	t.Helper()
	sim := simulator.New(simulator.WithTimeScale(0), simulator.WithAcquisitionDelay(time.Millisecond))
	t.Cleanup(func() { sim.Close() })

	d := nsp32.New(sim, channel)
	require.NoError(t, d.Init())
	return d, sim
}

func TestOpenDevice_Simulated(t *testing.T) {
	for _, name := range []string{"spi", "uart"} {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default().Device
			cfg.Channel = name
			cfg.Simulate = true

			d, adaptor, info, err := openDevice(cfg, logging.Discard())
			require.NoError(t, err)
			defer adaptor.Close()

			assert.True(t, d.IsActive())
			assert.Contains(t, info, "Simulated")
			assert.Contains(t, info, name)
		})
	}
}

func TestOpenDevice_BadChannel(t *testing.T) {
	cfg := config.Default().Device
	cfg.Channel = "i2c"
	_, _, _, err := openDevice(cfg, logging.Discard())
	assert.Error(t, err)
}

func TestAcquire(t *testing.T) {
	for _, ch := range channels {
		t.Run(ch.String(), func(t *testing.T) {
			d, _ := newSimDriver(t, ch)

			p, err := acquire(context.Background(), d, acquisition{mode: "spectrum", integrationTime: 32, frameAvgNum: 1})
			require.NoError(t, err)
			assert.Equal(t, nsp32.CmdGetSpectrum, p.CmdCode())
			assert.Equal(t, nsp32.CmdUnknown, d.AsyncPending())

			p, err = acquire(context.Background(), d, acquisition{mode: "xyz", integrationTime: 32, frameAvgNum: 1})
			require.NoError(t, err)
			assert.Equal(t, nsp32.CmdGetXYZ, p.CmdCode())
		})
	}
}

func TestAcquire_UnknownMode(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	_, err := acquire(context.Background(), d, acquisition{mode: "rgb"})
	assert.ErrorContains(t, err, "unknown acquisition mode")
}

func TestAcquire_ContextEnds(t *testing.T) {
	sim := simulator.New(simulator.WithTimeScale(0), simulator.WithAcquisitionDelay(time.Hour))
	defer sim.Close()
	d := nsp32.New(sim, nsp32.ChannelSPI)
	require.NoError(t, d.Init())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := acquire(ctx, d, acquisition{mode: "xyz", integrationTime: 1, frameAvgNum: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, nsp32.CmdAcqXYZ, d.AsyncPending())
}

func TestReadInfo_Text(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelSPI)

	var buf bytes.Buffer
	out, err := newPacketWriter(&buf, "text")
	require.NoError(t, err)
	require.NoError(t, readInfo(d, out))

	text := buf.String()
	assert.Contains(t, text, "GET_SENSOR_ID")
	assert.Contains(t, text, "sensor_id=4E-53-50-33-32")
	assert.Contains(t, text, "GET_WAVELENGTH")
	assert.NotContains(t, text, "[ANOMALY]")
}

func TestReadInfo_JSON(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelUART)

	var buf bytes.Buffer
	out, err := newPacketWriter(&buf, "JSON")
	require.NoError(t, err)
	require.NoError(t, readInfo(d, out))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var id, wl map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &id))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &wl))
	assert.Equal(t, "4E-53-50-33-32", id["sensor_id"])
	assert.Equal(t, "GET_WAVELENGTH", wl["command"])
	assert.Len(t, wl["wavelength"], nsp32.SpectrumPoints)
}

func TestPacketWriter_CBOR(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	p, err := acquire(context.Background(), d, acquisition{mode: "xyz", integrationTime: 8, frameAvgNum: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	out, err := newPacketWriter(&buf, "cbor")
	require.NoError(t, err)
	require.NoError(t, out.Write(p))

	record, err := nsp32.DecodeRecordCBOR(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, nsp32.CmdGetXYZ, record.Command)
	assert.Equal(t, uint16(8), record.IntegrationTime)
	assert.Greater(t, record.Y, float32(0))
}

func TestPacketWriter_UnknownFormat(t *testing.T) {
	_, err := newPacketWriter(&bytes.Buffer{}, "xml")
	assert.Error(t, err)
}
