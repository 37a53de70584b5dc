package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := NewDefaultLogger(LevelInfo, &buf)

	log.Debug("hidden %d", 1)
	log.Info("visible %d", 2)
	log.Warn("warned")
	log.Error("failed: %v", "boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "visible 2")
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, "failed: boom")
}

func TestDefaultLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewDefaultLogger(LevelError, &buf)

	log.Info("suppressed")
	assert.Empty(t, buf.String())

	log.SetLevel(LevelDebug)
	log.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestDefaultLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	log := NewDefaultLogger(LevelInfo, &buf)

	child := log.WithField("run", "run-1")
	child.Info("snapshot decoded")

	out := buf.String()
	assert.Contains(t, out, "run=run-1")
	assert.Contains(t, out, "snapshot decoded")

	// Parent remains field-free.
	buf.Reset()
	log.Info("plain")
	assert.NotContains(t, buf.String(), "run=run-1")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LevelInfo, ParseLogLevel("info"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelError, ParseLogLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLogLevel("bogus"))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}

func TestNullLogger(t *testing.T) {
	log := NewNullLogger()
	log.Debug("a")
	log.Info("b")
	log.Warn("c")
	log.Error("d")
	assert.Equal(t, log, log.WithField("k", "v"))
}

func TestGlobalLogger(t *testing.T) {
	orig := GetGlobalLogger()
	defer SetGlobalLogger(orig)

	null := NewNullLogger()
	SetGlobalLogger(null)
	assert.Equal(t, Logger(null), GetGlobalLogger())
}

func TestDefaultLogger_LineFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewDefaultLogger(LevelInfo, &buf)
	log.Info("message")

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.Contains(line, "] [INFO] message"), "unexpected line: %s", line)
}
