// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nsp32

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Statistics is a point-in-time snapshot of driver counters
type Statistics struct {
	StartTime time.Time

	CommandsSent      uint64 // transmissions, retries included
	ResponsesValid    uint64
	ResponsesInvalid  uint64 // frame errors and timeouts
	Timeouts          uint64 // UART responses that did not arrive in time
	Retries           uint64
	Wakeups           uint64 // reset cycles
	AsyncCompleted    uint64 // ready triggers consumed by UpdateStatus
	ForwardedCommands uint64
	ForwardDiscards   uint64 // malformed forwarded byte sequences
}

// SuccessRate returns the share of valid responses in percent
func (s Statistics) SuccessRate() float64 {
	total := s.ResponsesValid + s.ResponsesInvalid
	if total == 0 {
		return 0
	}
	return float64(s.ResponsesValid) / float64(total) * 100
}

// Uptime returns the time since the driver was created
func (s Statistics) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// String returns a one-line summary
func (s Statistics) String() string {
	return fmt.Sprintf("sent=%d valid=%d invalid=%d timeouts=%d retries=%d wakeups=%d async=%d fwd=%d fwd_discards=%d success=%.1f%%",
		s.CommandsSent, s.ResponsesValid, s.ResponsesInvalid, s.Timeouts, s.Retries,
		s.Wakeups, s.AsyncCompleted, s.ForwardedCommands, s.ForwardDiscards, s.SuccessRate())
}

// counters are written by the caller goroutine and may be read concurrently
// by a metrics scrape.
type counters struct {
	startTime         time.Time
	commandsSent      atomic.Uint64
	responsesValid    atomic.Uint64
	responsesInvalid  atomic.Uint64
	timeouts          atomic.Uint64
	retries           atomic.Uint64
	wakeups           atomic.Uint64
	asyncCompleted    atomic.Uint64
	forwardedCommands atomic.Uint64
	forwardDiscards   atomic.Uint64
}

func (c *counters) snapshot() Statistics {
	return Statistics{
		StartTime:         c.startTime,
		CommandsSent:      c.commandsSent.Load(),
		ResponsesValid:    c.responsesValid.Load(),
		ResponsesInvalid:  c.responsesInvalid.Load(),
		Timeouts:          c.timeouts.Load(),
		Retries:           c.retries.Load(),
		Wakeups:           c.wakeups.Load(),
		AsyncCompleted:    c.asyncCompleted.Load(),
		ForwardedCommands: c.forwardedCommands.Load(),
		ForwardDiscards:   c.forwardDiscards.Load(),
	}
}
