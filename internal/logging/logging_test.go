package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/storyrank/internal/config"
	"github.com/knowledge-engine/storyrank/internal/logging"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	entry, err := logging.NewWithOutput(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	logging.Component(entry, "engine").WithField("stories", 3).Debug("ranked")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "storyrank", line["service"])
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "ranked", line["msg"])
	assert.Equal(t, float64(3), line["stories"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	entry, err := logging.NewWithOutput(config.LogConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)

	entry.Info("hidden")
	assert.Empty(t, buf.String())

	entry.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, logrus.WarnLevel, entry.Logger.GetLevel())
}

func TestNew_InvalidSettings(t *testing.T) {
	_, err := logging.New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = logging.New(config.LogConfig{Format: "xml"})
	assert.Error(t, err)
}

func TestComponent_NilEntry(t *testing.T) {
	entry := logging.Component(nil, "api")
	assert.Equal(t, "api", entry.Data["component"])
}
