package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidatePlatform(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidatePlatform("slack"))
	assert.NoError(t, v.ValidatePlatform("discord"))
	assert.Error(t, v.ValidatePlatform(""))
	assert.Error(t, v.ValidatePlatform("Slack"))
}

func TestValidateDiscordToken(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateDiscordToken(testDiscordToken))
	assert.Error(t, v.ValidateDiscordToken(""))
	assert.Error(t, v.ValidateDiscordToken("Bot "+testDiscordToken))
	assert.Error(t, v.ValidateDiscordToken("no-dots-here"))
}

func TestValidateSchedule(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		expr  string
		valid bool
	}{
		{"@every 10s", true},
		{"*/1 * * * *", true},
		{"@hourly", true},
		{"* * *", false},
		{"@every banana", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := v.ValidateSchedule(tt.expr)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateMaxRetries(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateMaxRetries(0))
	assert.NoError(t, v.ValidateMaxRetries(3))
	assert.Error(t, v.ValidateMaxRetries(-1))
	assert.Error(t, v.ValidateMaxRetries(11))
}

func TestValidatePositiveDuration(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidatePositiveDuration("x", time.Second))
	assert.Error(t, v.ValidatePositiveDuration("x", 0))
	assert.Error(t, v.ValidatePositiveDuration("x", -time.Second))
}

func TestValidateListenAddr(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateListenAddr("127.0.0.1:9464"))
	assert.NoError(t, v.ValidateListenAddr(":9464"))
	assert.Error(t, v.ValidateListenAddr(""))
	assert.Error(t, v.ValidateListenAddr("localhost"))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
}
