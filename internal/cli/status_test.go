package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand_Stopped(t *testing.T) {
	configPath := writeTestConfig(t, "")

	out, err := runCLI(t, "status", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Platform: slack")
	assert.Contains(t, out, "Status: stopped")
	assert.Contains(t, out, "Sessions: 0")
	assert.NotContains(t, out, "PID:")
}

func TestStatusCommand_CountsSessions(t *testing.T) {
	configPath := writeTestConfig(t, `{"chat": {"platform": "discord"}}`)
	seedSessions(t, configPath)

	out, err := runCLI(t, "status", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Platform: discord")
	assert.Contains(t, out, "Sessions: 2")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0s"},
		{1500 * time.Millisecond, "2s"},
		{59 * time.Second, "59s"},
		{time.Minute, "1m0s"},
		{26*time.Hour + 4*time.Second, "26h0m4s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}
