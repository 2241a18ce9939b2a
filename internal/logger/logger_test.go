package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithQuiet(), WithLogFile(&buf))
	l.Info("hello", "task", "build")
	require.Contains(t, buf.String(), "hello")
	require.Contains(t, buf.String(), "build")
}

func TestWithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithQuiet(), WithLogFile(&buf)).With("run", "r1")
	l.Warn("retrying")
	require.Contains(t, buf.String(), "r1")
}

func TestNoop(t *testing.T) {
	l := Noop()
	require.NotPanics(t, func() {
		l.Debug("x")
		l.Error("y")
	})
}
