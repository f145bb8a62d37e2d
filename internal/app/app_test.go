package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	cfg := &AppConfig{
		ServerURL:   "ws://localhost:8000/ws",
		PollSeconds: 5,
	}
	assert.NoError(t, cfg.Validate())

	assert.Error(t, (&AppConfig{PollSeconds: 5}).Validate())
	assert.Error(t, (&AppConfig{ServerURL: "ws://x", PollSeconds: 0}).Validate())
}

func TestFormatMs(t *testing.T) {
	assert.Equal(t, "0:00", formatMs(0))
	assert.Equal(t, "0:59", formatMs(59999))
	assert.Equal(t, "3:05", formatMs(185000))
}
