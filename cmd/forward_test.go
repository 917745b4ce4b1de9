// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/spectrostat/internal/logging"
	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer collects upstream writes from the bridge goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// splitFrames cuts a response stream into frames by return length
func splitFrames(t *testing.T, stream []byte) []*nsp32.ReturnPacket {
	t.Helper()
	var out []*nsp32.ReturnPacket
	for len(stream) > 0 {
		require.GreaterOrEqual(t, len(stream), nsp32.HeaderSize)
		n := nsp32.ReturnLength(nsp32.CmdCode(stream[2]))
		require.Positive(t, n)
		require.GreaterOrEqual(t, len(stream), n)

		p, err := nsp32.ParseReturnPacket(stream[:n])
		require.NoError(t, err)
		out = append(out, p)
		stream = stream[n:]
	}
	return out
}

func startBridge(t *testing.T, d *nsp32.NSP32) (*io.PipeWriter, *syncBuffer, func() error) {
	t.Helper()
	r, w := io.Pipe()
	up := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- newBridge(d, up, logging.Discard()).run(ctx, r, time.Millisecond)
	}()

	var (
		once    sync.Once
		stopErr error
	)
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case stopErr = <-done:
			case <-time.After(2 * time.Second):
				stopErr = errors.New("bridge did not stop")
			}
			r.Close()
		})
		return stopErr
	}
	t.Cleanup(func() { stop() })
	return w, up, stop
}

func TestBridge_ForwardsCommands(t *testing.T) {
	for _, ch := range channels {
		t.Run(ch.String(), func(t *testing.T) {
			d, _ := newSimDriver(t, ch)
			w, up, stop := startBridge(t, d)

			// two frames in one write, after a misaligned prefix
			input := []byte{nsp32.Prefix0, 0x00}
			input = append(input, nsp32.NewHelloCommand(0x11)...)
			input = append(input, nsp32.NewGetSensorIdCommand(0x12)...)
			_, err := w.Write(input)
			require.NoError(t, err)

			want := nsp32.ReturnLength(nsp32.CmdHello) + nsp32.ReturnLength(nsp32.CmdGetSensorId)
			require.Eventually(t, func() bool { return len(up.Bytes()) == want }, 2*time.Second, time.Millisecond)

			frames := splitFrames(t, up.Bytes())
			require.Len(t, frames, 2)
			assert.Equal(t, nsp32.CmdHello, frames[0].CmdCode())
			assert.Equal(t, uint8(0x11), frames[0].UserCode())
			assert.Equal(t, nsp32.CmdGetSensorId, frames[1].CmdCode())

			id, err := frames[1].ExtractSensorIdStr()
			require.NoError(t, err)
			assert.Equal(t, "4E-53-50-33-32", id)

			require.NoError(t, stop())
			stats := d.Statistics()
			assert.Equal(t, uint64(2), stats.ForwardedCommands)
			assert.Positive(t, stats.ForwardDiscards)
		})
	}
}

func TestBridge_ReturnsAcquisitionResult(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	w, up, _ := startBridge(t, d)

	_, err := w.Write(nsp32.NewAcqXYZCommand(0x21, 16, 1, false))
	require.NoError(t, err)

	// only the retrieved data goes upstream, not the acknowledgement
	want := nsp32.ReturnLength(nsp32.CmdGetXYZ)
	require.Eventually(t, func() bool { return len(up.Bytes()) == want }, 2*time.Second, time.Millisecond)

	frames := splitFrames(t, up.Bytes())
	require.Len(t, frames, 1)
	assert.Equal(t, nsp32.CmdGetXYZ, frames[0].CmdCode())
	assert.Equal(t, uint8(0x21), frames[0].UserCode())

	info, err := frames[0].ExtractXYZInfo()
	require.NoError(t, err)
	assert.Equal(t, uint16(16), info.IntegrationTime())
}

func TestBridge_UpstreamClosed(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	r, w := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- newBridge(d, io.Discard, logging.Discard()).run(context.Background(), r, time.Millisecond)
	}()

	require.NoError(t, w.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop on EOF")
	}
}

func TestBridge_UpstreamError(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	r, w := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- newBridge(d, io.Discard, logging.Discard()).run(context.Background(), r, time.Millisecond)
	}()

	w.CloseWithError(errors.New("line noise"))
	select {
	case err := <-done:
		assert.ErrorContains(t, err, "line noise")
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop on read error")
	}
}

// failingReader fails every read
type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestBridge_ReadErrorAfterCancelIsClean(t *testing.T) {
	d, _ := newSimDriver(t, nsp32.ChannelSPI)
	b := newBridge(d, io.Discard, logging.Discard())

	// shutdown and the failed read are both ready when run selects
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := b.run(ctx, failingReader{io.ErrClosedPipe}, time.Millisecond)
		require.NoError(t, err, "iteration %d", i)
	}
}
