package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		err  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestConsoleLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log, closer := New(slog.LevelInfo, WithConsole(&buf), WithNoColor(true))
	defer closer.Close()

	log.Debug("hidden")
	log.Info("simulated model", "model", "two_compartment")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "simulated model")
	assert.Contains(t, out, "model=two_compartment")
}

func TestLogToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "pkpd.log")
	log, closer := New(slog.LevelDebug,
		WithConsole(&buf),
		WithNoColor(true),
		WithLogToFile(true),
		WithLogFile(path),
	)

	log.With("run", 7).Debug("fit finished", "score", 0.5)
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "fit finished")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "fit finished", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])
	assert.EqualValues(t, 7, rec["run"])
	assert.EqualValues(t, 0.5, rec["score"])
}
