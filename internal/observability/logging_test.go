package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		profile string
		wantErr bool
	}{
		{name: "structured default", level: "info", profile: "STRUCTURED"},
		{name: "cli profile", level: "debug", profile: "CLI"},
		{name: "empty level defaults to info", level: "", profile: ""},
		{name: "unknown profile falls back", level: "warn", profile: "FANCY"},
		{name: "unknown level rejected", level: "loud", profile: "CLI", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.level, tt.profile)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, log)
			_ = log.Sync()
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := parseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	lvl, err = parseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	_, err = parseLevel("shout")
	assert.Error(t, err)
}
