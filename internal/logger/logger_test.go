package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent_TagsEvents(t *testing.T) {
	var buf bytes.Buffer
	log := New(zerolog.New(&buf)).WithComponent("gateway")

	log.Info().Str("scope", "W1").Msg("connected")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "gateway", entry["component"])
	assert.Equal(t, "W1", entry["scope"])
	assert.Equal(t, "connected", entry["message"])
}

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lazywh.log")

	c, err := Init(Config{Level: "debug", Output: "file", File: path})
	require.NoError(t, err)

	WithComponent("test").Debug().Msg("hello")
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestInit_RejectsBadSettings(t *testing.T) {
	_, err := Init(Config{Level: "loud", Output: "stderr"})
	assert.Error(t, err)

	_, err = Init(Config{Level: "info", Output: "syslog"})
	assert.Error(t, err)
}

func TestDefaultPath_UsesXDGStateHome(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/state")

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/state", "lazywh", "lazywh.log"), path)
}

func TestNewTestLogger_Discards(t *testing.T) {
	log := NewTestLogger()
	assert.NotPanics(t, func() {
		log.WithComponent("x").Error().Msg("ignored")
	})
}
