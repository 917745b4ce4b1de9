// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Thermoquad/spectrostat/internal/config"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// passwordEnv names the environment variable holding the WebSocket password
const passwordEnv = "SPECTROSTAT_PASSWORD"

// Connection is the upstream link of the forward bridge: a serial port or a
// WebSocket carrying NSP32 frames as binary messages
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection is an upstream on a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *SerialConnection) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *SerialConnection) Close() error                { return s.port.Close() }

// ErrConnectionClosed is returned by Read once the WebSocket has been closed
// by either side
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection presents the binary messages of a WebSocket as a byte
// stream. Message boundaries are not preserved.
type WebSocketConnection struct {
	conn    *websocket.Conn
	pending []byte
	failed  bool
	closing atomic.Bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.failed || w.closing.Load() {
		return 0, ErrConnectionClosed
	}

	for len(w.pending) == 0 {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			w.failed = true
			if w.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
			return 0, err
		}
		if mt == websocket.BinaryMessage {
			w.pending = data
		}
	}

	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close may be called while another goroutine is blocked in Read
func (w *WebSocketConnection) Close() error {
	w.closing.Store(true)
	return w.conn.Close()
}

// OpenSerialConnection opens portName at 8N1
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection dials a ws:// or wss:// upstream. Credentials are
// sent as HTTP Basic auth when both are set.
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+auth)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	switch {
	case err != nil && resp != nil:
		return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
	case err != nil:
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword returns $SPECTROSTAT_PASSWORD, or prompts on the terminal
func GetPassword() (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	pw, err := term.ReadPassword(int(syscall.Stdin))
	if err == nil {
		return string(pw), nil
	}

	// stdin is not a terminal
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// OpenUpstream opens the serial or WebSocket upstream named in cfg
func OpenUpstream(cfg config.ForwardConfig) (Connection, string, error) {
	if cfg.UpstreamURL != "" {
		password := ""
		if cfg.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(cfg.UpstreamURL, cfg.Username, password, cfg.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", cfg.UpstreamURL), nil
	}

	if cfg.UpstreamPort != "" {
		conn, err := OpenSerialConnection(cfg.UpstreamPort, cfg.UpstreamBaud)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.UpstreamPort, cfg.UpstreamBaud), nil
	}

	return nil, "", fmt.Errorf("either --upstream-port or --upstream-url must be specified")
}
