package logging

import (
	"bytes"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/andrew/mentor-gateway/internal/config"
)

func TestNewWithOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.WithField("provider", "groq").Warn("kept")

	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"provider":"groq"`)
}

func TestNewWithOutputUnknownLevel(t *testing.T) {
	logger := NewWithOutput(config.LoggingConfig{Level: "chatty"}, &bytes.Buffer{})
	assert.Equal(t, log.InfoLevel, logger.GetLevel())
}
