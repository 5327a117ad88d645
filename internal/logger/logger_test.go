package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Info("scan", "hello")
	l.LogScan("abc", "Gate-A", "accepted", "first")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "SCAN", entry.Category)
	assert.Equal(t, "hello", entry.Message)
	assert.Equal(t, "logger_test.go", entry.File)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Contains(t, entry.Message, `abc by "Gate-A"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	l.minLevel = ParseLevel("warn")

	l.Debug("X", "dropped")
	l.Info("X", "dropped")
	l.Warn("X", "kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Info("X", "ignored") })
}
