// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rpiadaptor

import (
	"sync"
	"time"
)

// edgeDetector is the part of rpio.Pin the watcher needs
type edgeDetector interface {
	EdgeDetected() bool
}

// edgeWatcher polls a pin's edge-detect status and calls onEdge for every
// latched edge. rpio has no interrupt delivery, so polling stands in for the
// falling-edge handler.
type edgeWatcher struct {
	pin      edgeDetector
	interval time.Duration
	onEdge   func()

	mu     sync.Mutex
	paused bool

	stop chan struct{}
	wg   sync.WaitGroup
}

func newEdgeWatcher(pin edgeDetector, interval time.Duration, onEdge func()) *edgeWatcher {
	return &edgeWatcher{
		pin:      pin,
		interval: interval,
		onEdge:   onEdge,
		stop:     make(chan struct{}),
	}
}

func (w *edgeWatcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
}

func (w *edgeWatcher) poll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.paused {
		return
	}
	if w.pin.EdgeDetected() {
		w.onEdge()
	}
}

// Pause stops edge delivery. No handler call is in progress once it returns.
func (w *edgeWatcher) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

// Resume clears the edge latch and restarts delivery. Edges latched while
// paused are dropped.
func (w *edgeWatcher) Resume() {
	w.mu.Lock()
	w.pin.EdgeDetected()
	w.paused = false
	w.mu.Unlock()
}

// Stop ends polling and waits for the goroutine to exit
func (w *edgeWatcher) Stop() {
	close(w.stop)
	w.wg.Wait()
}
