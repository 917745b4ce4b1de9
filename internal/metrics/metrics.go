// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports driver statistics to Prometheus
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "spectrostat"

// StatsFunc returns the current driver statistics
type StatsFunc func() nsp32.Statistics

type counterDesc struct {
	desc  *prometheus.Desc
	value func(nsp32.Statistics) uint64
}

// Collector reads a statistics snapshot on every scrape
type Collector struct {
	stats    StatsFunc
	counters []counterDesc
	success  *prometheus.Desc
	uptime   *prometheus.Desc
}

func newCounter(name, help string, value func(nsp32.Statistics) uint64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		value: value,
	}
}

// NewCollector builds a collector over stats
func NewCollector(stats StatsFunc) *Collector {
	return &Collector{
		stats: stats,
		counters: []counterDesc{
			newCounter("commands_total", "Command frames transmitted, retries included",
				func(s nsp32.Statistics) uint64 { return s.CommandsSent }),
			newCounter("responses_valid_total", "Responses that passed validation",
				func(s nsp32.Statistics) uint64 { return s.ResponsesValid }),
			newCounter("responses_invalid_total", "Responses rejected or timed out",
				func(s nsp32.Statistics) uint64 { return s.ResponsesInvalid }),
			newCounter("timeouts_total", "UART responses that did not arrive in time",
				func(s nsp32.Statistics) uint64 { return s.Timeouts }),
			newCounter("retries_total", "Command retries",
				func(s nsp32.Statistics) uint64 { return s.Retries }),
			newCounter("wakeups_total", "Reset pulses issued",
				func(s nsp32.Statistics) uint64 { return s.Wakeups }),
			newCounter("async_completed_total", "Acquisitions completed by a ready trigger",
				func(s nsp32.Statistics) uint64 { return s.AsyncCompleted }),
			newCounter("forwarded_commands_total", "Commands received from upstream",
				func(s nsp32.Statistics) uint64 { return s.ForwardedCommands }),
			newCounter("forward_discards_total", "Malformed upstream byte sequences",
				func(s nsp32.Statistics) uint64 { return s.ForwardDiscards }),
		},
		success: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "success_rate_percent"),
			"Share of valid responses", nil, nil),
		uptime: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "uptime_seconds"),
			"Time since the driver was created", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.success
	ch <- c.uptime
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(s)))
	}
	ch <- prometheus.MustNewConstMetric(c.success, prometheus.GaugeValue, s.SuccessRate())
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.Uptime().Seconds())
}

// Handler returns the /metrics and /health routes for registry
func Handler(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Serve exposes registry on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, registry *prometheus.Registry, log logrus.FieldLogger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           Handler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", ln.Addr().String()).Info("metrics server listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
