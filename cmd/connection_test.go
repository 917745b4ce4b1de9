// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/spectrostat/internal/config"
	"github.com/Thermoquad/spectrostat/pkg/nsp32"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newWSServer starts a server that checks credentials, sends a text message
// followed by a hello frame, then echoes what it receives
func newWSServer(t *testing.T, user, pass string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); user != "" && (!ok || u != user || p != pass) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("hi"))
		conn.WriteMessage(websocket.BinaryMessage, nsp32.NewHelloCommand(3))

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_ReadWrite(t *testing.T) {
	url := newWSServer(t, "admin", "secret")

	conn, err := OpenWebSocketConnection(url, "admin", "secret", false)
	require.NoError(t, err)
	defer conn.Close()

	// text messages are skipped
	buf := make([]byte, 3)
	n, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rest := make([]byte, 2)
	_, err = io.ReadFull(conn, rest)
	require.NoError(t, err)
	assert.Equal(t, nsp32.NewHelloCommand(3), append(buf, rest...))

	frame := nsp32.NewGetSensorIdCommand(4)
	n, err = conn.Write(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)

	echo := make([]byte, len(frame))
	_, err = io.ReadFull(conn, echo)
	require.NoError(t, err)
	assert.Equal(t, frame, echo)
}

func TestWebSocketConnection_Unauthorized(t *testing.T) {
	url := newWSServer(t, "admin", "secret")

	_, err := OpenWebSocketConnection(url, "admin", "wrong", false)
	assert.ErrorContains(t, err, "HTTP 401")
}

// newClosingWSServer sends a hello frame and then closes the connection
// normally
func newClosingWSServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.BinaryMessage, nsp32.NewHelloCommand(5))
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

		// wait for the client to go away
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_ReadAfterLocalClose(t *testing.T) {
	url := newWSServer(t, "", "")

	conn, err := OpenWebSocketConnection(url, "", "", false)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// frames already buffered by the websocket library are not returned
	for i := 0; i < 2; i++ {
		n, err := conn.Read(make([]byte, 8))
		assert.Zero(t, n)
		assert.ErrorIs(t, err, ErrConnectionClosed)
	}
}

func TestWebSocketConnection_PeerCloses(t *testing.T) {
	url := newClosingWSServer(t)

	conn, err := OpenWebSocketConnection(url, "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	frame := make([]byte, nsp32.CommandLength(nsp32.CmdHello))
	_, err = io.ReadFull(conn, frame)
	require.NoError(t, err)
	assert.Equal(t, nsp32.NewHelloCommand(5), frame)

	_, err = conn.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = conn.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestOpenWebSocketConnection_BadScheme(t *testing.T) {
	_, err := OpenWebSocketConnection("http://localhost/nsp32", "", "", false)
	assert.ErrorContains(t, err, "unsupported URL scheme")
}

func TestGetPassword_FromEnv(t *testing.T) {
	t.Setenv(passwordEnv, "hunter2")
	pw, err := GetPassword()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
}

func TestOpenUpstream(t *testing.T) {
	_, _, err := OpenUpstream(config.ForwardConfig{})
	assert.ErrorContains(t, err, "--upstream-port or --upstream-url")

	t.Setenv(passwordEnv, "secret")
	url := newWSServer(t, "admin", "secret")
	conn, info, err := OpenUpstream(config.ForwardConfig{UpstreamURL: url, Username: "admin"})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "WebSocket: "+url, info)
}
