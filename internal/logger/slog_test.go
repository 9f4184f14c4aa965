package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info", "json")
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("shown", "function", "greet")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "greet", rec["function"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "debug", "")
	require.NoError(t, err)

	l.Debug("loading", "url", "https://example.test/")
	assert.Contains(t, buf.String(), "msg=loading")
	assert.Contains(t, buf.String(), "url=https://example.test/")
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
