// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/spectrostat/internal/config"
	"github.com/Thermoquad/spectrostat/internal/metrics"
	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	fwdUpstreamPort string
	fwdUpstreamBaud int
	fwdUpstreamURL  string
	fwdUsername     string
	fwdNoSSLVerify  bool
	fwdMetricsAddr  string
	fwdPollInterval time.Duration
)

var forwardCmd = &cobra.Command{
	Use:   "forward",
	Short: "Bridge an upstream host to the module",
	Long: `Pass NSP32 command frames from an upstream host to the module and send
the responses back.

The upstream is a serial port (--upstream-port) or a WebSocket carrying frames
as binary messages (--upstream-url). Acquisition results are sent once the
module signals ready; the acquisition acknowledgement itself is not returned.
Malformed upstream bytes are dropped until the next frame start.

For WebSocket authentication, the password is read from the SPECTROSTAT_PASSWORD
environment variable, or prompted interactively if not set.

With --metrics-addr, driver statistics are served for Prometheus at /metrics.`,
	RunE: runForward,
}

func init() {
	rootCmd.AddCommand(forwardCmd)
	f := forwardCmd.Flags()
	f.StringVar(&fwdUpstreamPort, "upstream-port", "", "Upstream serial port device")
	f.IntVar(&fwdUpstreamBaud, "upstream-baud", 115200, "Upstream baud rate")
	f.StringVar(&fwdUpstreamURL, "upstream-url", "", "Upstream WebSocket URL (ws:// or wss://)")
	f.StringVar(&fwdUsername, "username", "", "Username for HTTP Basic auth")
	f.BoolVar(&fwdNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	f.StringVar(&fwdMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9132)")
	f.DurationVar(&fwdPollInterval, "poll-interval", time.Millisecond, "Interval between driver status updates")
}

func applyForwardFlags(cmd *cobra.Command, cfg *config.ForwardConfig) {
	flags := cmd.Flags()
	if flags.Changed("upstream-port") {
		cfg.UpstreamPort = fwdUpstreamPort
	}
	if flags.Changed("upstream-baud") {
		cfg.UpstreamBaud = fwdUpstreamBaud
	}
	if flags.Changed("upstream-url") {
		cfg.UpstreamURL = fwdUpstreamURL
	}
	if flags.Changed("username") {
		cfg.Username = fwdUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.NoSSLVerify = fwdNoSSLVerify
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = fwdMetricsAddr
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval = fwdPollInterval
	}
}

func runForward(cmd *cobra.Command, args []string) error {
	cfg, log, logCloser, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	applyForwardFlags(cmd, &cfg.Forward)
	if err := cfg.Validate(); err != nil {
		return err
	}

	conn, connInfo, err := OpenUpstream(cfg.Forward)
	if err != nil {
		return err
	}
	defer conn.Close()

	d, adaptor, devInfo, err := openDevice(cfg.Device, log)
	if err != nil {
		return err
	}
	defer adaptor.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.Forward.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics.NewCollector(d.Statistics))
		go func() {
			if err := metrics.Serve(ctx, cfg.Forward.MetricsAddr, registry, log); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	log.WithFields(logrus.Fields{
		"upstream": connInfo,
		"device":   devInfo,
	}).Info("forwarding")

	b := newBridge(d, conn, log)
	err = b.run(ctx, conn, cfg.Forward.PollInterval)

	log.WithField("stats", d.Statistics().String()).Info("forwarding stopped")
	return err
}

// bridge moves frames between an upstream host and the driver. All driver
// calls happen on the goroutine running run.
type bridge struct {
	d   *nsp32.NSP32
	up  io.Writer
	log logrus.FieldLogger
}

func newBridge(d *nsp32.NSP32, up io.Writer, log logrus.FieldLogger) *bridge {
	return &bridge{d: d, up: up, log: log}
}

// run feeds bytes read from r to the driver until ctx ends or r fails.
// The caller closes r to release the reader goroutine.
func (b *bridge) run(ctx context.Context, r io.Reader, poll time.Duration) error {
	dataChan := make(chan []byte, 16)
	errChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, nsp32.CmdBufSize*4)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case dataChan <- data:
				case <-done:
					return
				}
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case data := <-dataChan:
			if err := b.feed(data); err != nil {
				return err
			}

		case err := <-errChan:
			// closing the upstream on shutdown fails the pending read
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
				b.log.Info("upstream closed")
				return nil
			}
			return fmt.Errorf("upstream read: %w", err)

		case <-ticker.C:
			if err := b.step(); err != nil {
				return err
			}
		}
	}
}

// feed hands upstream bytes to the driver. A complete command is executed
// before the next byte so no input is ignored while it waits.
func (b *bridge) feed(data []byte) error {
	for _, c := range data {
		if b.d.IsFwdCmdFilled() {
			if err := b.step(); err != nil {
				return err
			}
		}
		b.d.FwdCmdByte(c)
	}
	return b.step()
}

// step runs one driver status update and sends any response upstream
func (b *bridge) step() error {
	b.d.UpdateStatus()

	p, ok := b.d.GetReturnPacket()
	if !ok {
		return nil
	}
	b.d.ClearReturnPacket()

	b.log.WithFields(logrus.Fields{
		"cmd":       p.CmdCode().String(),
		"user_code": p.UserCode(),
		"len":       p.Len(),
	}).Debug("response to upstream")

	if _, err := b.up.Write(p.PacketBytes()); err != nil {
		return fmt.Errorf("upstream write: %w", err)
	}
	return nil
}
