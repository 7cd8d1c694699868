package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"Warn":    WARN,
		"warning": WARN,
		"ERROR":   ERROR,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	level, err := ParseLogLevel("verbose")
	assert.Error(t, err)
	assert.Equal(t, INFO, level)
}

func TestLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := New(LoggerConfig{Level: INFO, FilePath: path, MaxSize: 10, MaxBackups: 2})
	require.NoError(t, err)

	l.Debug("hidden %d", 1)
	l.Info("stored %d records", 3)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "stored 3 records", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Contains(t, entry, "source")
}

func TestLoggerConsoleAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(LoggerConfig{Level: WARN, Console: true, ConsoleWriter: &buf})
	require.NoError(t, err)

	l.Info("quiet")
	assert.Empty(t, buf.String())

	l.Warn("loud %s", "warning")
	assert.Contains(t, buf.String(), "loud warning")

	buf.Reset()
	l.SetLevel(DEBUG)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	rf, err := newRotatingFile(path, 16, 2)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := rf.Write([]byte("0123456789abcdef\n"))
		require.NoError(t, err)
	}
	require.NoError(t, rf.Close())

	backups, err := filepath.Glob(filepath.Join(dir, "app.*.log"))
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	_, err = os.Stat(path)
	assert.NoError(t, err)

	_, err = rf.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
