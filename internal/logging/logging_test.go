package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := NewLogger(Config{
		ServiceName: "keyserver",
		Environment: "test",
		Format:      "json",
		Writer:      &buf,
	})
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hello", "key_id", "K1")
	logger.Debug("hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "keyserver", rec["service"])
	assert.Equal(t, "test", rec["env"])
	assert.Equal(t, "K1", rec["key_id"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewLogger_TextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := NewLogger(Config{Format: "text", Level: "warn", Writer: &buf})
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "msg=loud")
}

func TestNewLogger_FanOutToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "keyserver.log")
	logger, closer, err := NewLogger(Config{Format: "text", File: path, Writer: &buf})
	require.NoError(t, err)

	logger.Error("store down", "operation", "save")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "store down")

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec))
	assert.Equal(t, "store down", rec["msg"])
	assert.Equal(t, "save", rec["operation"])
}
