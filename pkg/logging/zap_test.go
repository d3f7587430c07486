package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		expectErr bool
		enabled   zapcore.Level
		disabled  zapcore.Level
	}{
		{name: "info console", level: "info", format: "console", enabled: zapcore.InfoLevel, disabled: zapcore.DebugLevel},
		{name: "debug json", level: "debug", format: "json", enabled: zapcore.DebugLevel, disabled: zapcore.DebugLevel - 1},
		{name: "default format", level: "warn", format: "", enabled: zapcore.WarnLevel, disabled: zapcore.InfoLevel},
		{name: "invalid level", level: "loud", format: "console", expectErr: true},
		{name: "invalid format", level: "info", format: "xml", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.disabled))
		})
	}
}
