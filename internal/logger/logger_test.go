package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_DefaultWriter(t *testing.T) {
	logger := New(Config{Level: slog.LevelInfo, Format: "json"})
	assert.NotNil(t, logger.Logger)
}

func TestNew_Format(t *testing.T) {
	tests := []struct {
		name        string
		format      string
		environment string
		want        string
	}{
		{"production defaults to json", "", "production", `"msg":"beacon created"`},
		{"development defaults to pretty", "", "development", "INF beacon created"},
		{"staging defaults to pretty", "", "staging", "INF beacon created"},
		{"explicit json wins", "json", "development", `"msg":"beacon created"`},
		{"explicit pretty wins", "pretty", "production", "INF beacon created"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{
				Level:       slog.LevelInfo,
				Format:      tt.format,
				Environment: tt.environment,
				Writer:      &buf,
				NoColor:     true,
			})
			logger.Info("beacon created")
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DeBuG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: "json", Writer: &buf})

	logger.Debug("next sweep scheduled")
	logger.Info("sweep complete")
	logger.Warn("repair failed")
	logger.Error("sweep abandoned")

	output := buf.String()
	assert.NotContains(t, output, "next sweep scheduled")
	assert.NotContains(t, output, "sweep complete")
	assert.Contains(t, output, "repair failed")
	assert.Contains(t, output, "sweep abandoned")
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Writer: &buf})

	logger.Component("sweeper").Info("sweep complete", "beacons_deleted", 2)

	output := buf.String()
	assert.Contains(t, output, `"component":"sweeper"`)
	assert.Contains(t, output, `"beacons_deleted":2`)
}

func TestPretty_AllLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: "pretty", Writer: &buf, NoColor: true})

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	output := buf.String()
	for _, lvl := range []string{"DBG d", "INF i", "WRN w", "ERR e"} {
		assert.Contains(t, output, lvl)
	}
}

func TestPretty_NoColor(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:   slog.LevelInfo,
		Format:  "pretty",
		Writer:  &buf,
		NoColor: true,
	})

	logger.Info("beacon created", "beacon_id", "beacon-1", "followers", 3)

	output := buf.String()
	assert.Contains(t, output, "INF beacon created")
	assert.Contains(t, output, "beacon_id=beacon-1")
	assert.Contains(t, output, "followers=3")
	assert.NotContains(t, output, "\033[")
}

func TestShortSource(t *testing.T) {
	for _, format := range []string{"pretty", "json"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{
				Level:     slog.LevelInfo,
				Format:    format,
				Writer:    &buf,
				NoColor:   true,
				AddSource: true,
			})

			logger.Info("with source")

			output := buf.String()
			assert.Contains(t, output, "logger_test.go")
			assert.NotContains(t, output, "/logger_test.go")
		})
	}
}
