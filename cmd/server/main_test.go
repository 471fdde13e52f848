package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupReportsBadConfig(t *testing.T) {
	t.Setenv("TICK_INTERVAL", "0s")
	var buf bytes.Buffer

	_, _, err := setup(&buf)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "load config")
	assert.Contains(t, buf.String(), "TICK_INTERVAL")
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestSetupUsesConfiguredLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	var buf bytes.Buffer

	cfg, log, err := setup(&buf)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}
