package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"info", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"DEBUG", zapcore.DebugLevel},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		require.NoError(t, err, "level %q", tt.in)
		assert.Equal(t, tt.want, got, "level %q", tt.in)
	}

	_, err := parseLevel("loud")
	require.Error(t, err)
}

func TestInitLogging(t *testing.T) {
	logger, err := InitLogging("debug", "json")
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Same(t, logger, CLILogger)

	_, err = InitLogging("info", "xml")
	require.Error(t, err)
}
