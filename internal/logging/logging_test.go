// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Thermoquad/spectrostat/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_LevelAndFormat(t *testing.T) {
	log, closer, err := Setup(config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
	assert.Equal(t, os.Stderr, log.Out)

	log, closer, err = Setup(config.LogConfig{Level: "warn", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
	assert.Equal(t, os.Stdout, log.Out)
}

func TestSetup_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectrostat.log")

	log, closer, err := Setup(config.LogConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	})
	require.NoError(t, err)

	log.WithField("command", "HELLO").Info("response valid")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "response valid", entry["msg"])
	assert.Equal(t, "HELLO", entry["command"])
	assert.Equal(t, "info", entry["level"])
}

func TestSetup_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LogConfig
	}{
		{"bad level", config.LogConfig{Level: "loud"}},
		{"bad format", config.LogConfig{Level: "info", Format: "xml"}},
		{"bad output", config.LogConfig{Level: "info", Output: "syslog"}},
		{"unwritable file", config.LogConfig{Level: "info", Output: "file", FilePath: filepath.Join(t.TempDir(), "missing", "x.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Setup(tt.cfg)
			assert.Error(t, err)
		})
	}
}
