package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLoggerWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", FormatJSON)
	require.NoError(t, err)

	l := Component(logger, "evolve")
	l.Debug().Int("step", 3).Msg("advanced")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "evolve", event["component"])
	assert.Equal(t, "debug", event["level"])
	assert.Equal(t, "advanced", event["message"])
	assert.EqualValues(t, 3, event["step"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", FormatJSON)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New(nil, "loud", FormatJSON)
	require.Error(t, err)

	_, err = New(nil, "info", "xml")
	require.Error(t, err)
}
