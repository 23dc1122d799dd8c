package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	for _, tc := range []struct {
		level string
		want  []string
	}{
		{"trace", []string{"trace", "debug", "info", "warn"}},
		{"debug", []string{"debug", "info", "warn"}},
		{"info", []string{"info", "warn"}},
		{"", []string{"info", "warn"}},
		{"WARN", []string{"warn"}},
		{"disabled", nil},
	} {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: tc.level, Output: &buf})
			log.Trace().Msg("trace")
			log.Debug().Msg("debug")
			log.Info().Msg("info")
			log.Warn().Msg("warn")

			var got []string
			dec := json.NewDecoder(&buf)
			for dec.More() {
				var line map[string]any
				require.NoError(t, dec.Decode(&line))
				got = append(got, line["message"].(string))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}

func TestNewWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithComponent(Config{Level: "info", Output: &buf}, "engine")
	log.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "engine", line["component"])
	assert.Contains(t, line, "time")
}

func TestPrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Pretty: true, Output: &buf})
	Component(log, "watch").Info().Msg("ready")
	assert.Contains(t, buf.String(), "ready")
	assert.Contains(t, buf.String(), "watch")
}
