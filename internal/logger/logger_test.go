package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, &Config{Level: "debug", Format: "json"})

	l.Info().Str("group", "g1").Msg("group created")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "registryd", entry["service"])
	assert.Equal(t, "g1", entry["group"])
	assert.Equal(t, "group created", entry["message"])
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	_ = New(&buf, &Config{Level: "loud", Format: "json"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, &Config{Level: "info", Format: "text"})

	l.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.log")
	err := Init(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l := WithComponent("test")
	l.Info().Msg("written to file")
	assert.FileExists(t, path)
}

func TestWithKind(t *testing.T) {
	var buf bytes.Buffer
	log.Logger = New(&buf, &Config{Level: "info"})

	l := WithKind("registry", "schemagroups")
	l.Info().Msg("x")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "schemagroups", entry["kind"])
}
