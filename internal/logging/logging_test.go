package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("passgate", "json", &buf)

	logger.Info("user registered", "user_id", "u-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "passgate", entry["service"])
	assert.Equal(t, "user registered", entry["msg"])
	assert.Equal(t, "u-1", entry["user_id"])
}

func TestSetup_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("passgate", "text", &buf)

	logger.Warn("login failed", "username", "alice1")

	out := buf.String()
	assert.True(t, strings.Contains(out, "level=WARN"), out)
	assert.True(t, strings.Contains(out, "service=passgate"), out)
	assert.True(t, strings.Contains(out, "username=alice1"), out)
}

func TestSetup_DebugSuppressed(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("passgate", "json", &buf)

	logger.Debug("noise")

	assert.Empty(t, buf.String())
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard().Info("dropped")
	})
}
