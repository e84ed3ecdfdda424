package log

import (
	"bytes"
	stdlog "log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newCaptureLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := NewLogger(level)
	l.logger = stdlog.New(buf, "", 0)
	return l, buf
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newCaptureLogger(LevelWarn)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
}

func TestLogger_SetLevel(t *testing.T) {
	l, buf := newCaptureLogger(LevelError)

	l.Info("before")
	l.SetLevel(LevelDebug)
	l.Info("after")

	out := buf.String()
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
}

func TestLogger_EntryFormat(t *testing.T) {
	l, buf := newCaptureLogger(LevelInfo)

	l.Info("formatted %d", 42)

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "[INFO]")
	assert.Contains(t, line, "formatted 42")
	// caller file:line tag
	assert.Contains(t, line, ".go:")
}
