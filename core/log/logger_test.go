package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormatWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New("debug", FormatJSON, &buf), "engine")

	logger.Debug().Str("run_id", "run_1").Msg("Starting to clone")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "run_1", line["run_id"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "Starting to clone", line["message"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New("chatty", FormatJSON, &buf)

	logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
