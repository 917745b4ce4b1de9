// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rpiadaptor

import (
	"errors"
	"io"
	"sync"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"
)

// ErrQueueEmpty is returned by ReadByte when no byte is buffered
var ErrQueueEmpty = errors.New("rpiadaptor: uart queue empty")

// byteQueue buffers bytes read from a port by a background goroutine, so
// the driver can poll for availability without blocking on the port.
type byteQueue struct {
	port io.ReadWriteCloser
	log  logrus.FieldLogger

	mu      sync.Mutex
	buf     deque.Deque[byte]
	limit   int
	dropped uint64
	err     error

	done chan struct{}
}

// newByteQueue starts reading port. At most limit bytes are buffered; when
// full the oldest bytes are dropped.
func newByteQueue(port io.ReadWriteCloser, limit int, log logrus.FieldLogger) *byteQueue {
	q := &byteQueue{
		port:  port,
		log:   log,
		limit: limit,
		done:  make(chan struct{}),
	}
	go q.readLoop()
	return q
}

func (q *byteQueue) readLoop() {
	defer close(q.done)

	chunk := make([]byte, 256)
	for {
		n, err := q.port.Read(chunk)
		if n > 0 {
			q.push(chunk[:n])
		}
		if err != nil {
			q.mu.Lock()
			q.err = err
			q.mu.Unlock()
			if !errors.Is(err, io.EOF) {
				q.log.WithError(err).Debug("rpiadaptor: uart reader stopped")
			}
			return
		}
	}
}

func (q *byteQueue) push(p []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, b := range p {
		if q.buf.Len() >= q.limit {
			q.buf.PopFront()
			q.dropped++
		}
		q.buf.PushBack(b)
	}
}

// Available reports whether a byte is buffered
func (q *byteQueue) Available() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buf.Len() > 0
}

// ReadByte pops the oldest buffered byte. Once the queue is empty it
// returns the error that stopped the reader, or ErrQueueEmpty.
func (q *byteQueue) ReadByte() (byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.buf.Len() == 0 {
		if q.err != nil {
			return 0, q.err
		}
		return 0, ErrQueueEmpty
	}
	return q.buf.PopFront(), nil
}

// Write sends p to the port
func (q *byteQueue) Write(p []byte) (int, error) {
	return q.port.Write(p)
}

// Dropped returns the number of bytes discarded because the queue was full
func (q *byteQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close closes the port and waits for the reader to exit
func (q *byteQueue) Close() error {
	err := q.port.Close()
	<-q.done
	return err
}
