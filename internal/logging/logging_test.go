package logging

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

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", "json", &buf)
	log.Debug().Str("task_id", "abc123").Msg("job queued")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "abc123", line["task_id"])
	assert.Equal(t, "job queued", line["message"])
	assert.Contains(t, line, "time")
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := New(tt.level, "json", &bytes.Buffer{})
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestNew_ConsoleFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New("warn", "console", &buf)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapgen.log")
	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	log := New("info", "json", f)
	log.Info().Msg("hello")
	assert.FileExists(t, path)
}

func TestIsTerminal_NonTTY(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, isTerminal(&buf))

	f, err := OpenFile(filepath.Join(t.TempDir(), "mapgen.log"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, isTerminal(f))

	// Console output to a file carries no colour escapes.
	log := New("info", "console", f)
	log.Info().Msg("plain")
	require.NoError(t, f.Sync())
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "plain")
	assert.NotContains(t, string(data), "\x1b[")
}
