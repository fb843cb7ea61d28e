package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestConfigureJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "info", "json")

	WithComponent("contextstore").Info("stored", "user_id", "u1")
	WithComponent("contextstore").Debug("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "contextstore", entry["component"])
	assert.Equal(t, "u1", entry["user_id"])
	assert.Equal(t, "stored", entry["msg"])
}

func TestConfigureText(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "debug", "text")
	Logger.Debug("health check", "server", "seo")
	assert.Contains(t, buf.String(), "server=seo")
}
