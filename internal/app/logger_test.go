package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateLogging(t *testing.T) {
	assert.NoError(t, ValidateLogging("debug", "text"))
	assert.NoError(t, ValidateLogging("error", "json"))

	err := ValidateLogging("info", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log-format")

	err = ValidateLogging("verbose", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log-level")
}

func TestNewLoggerRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)

	logger.Info("quiet")
	assert.Empty(t, buf.String())

	logger.Warn("loud", "key", "val")
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "loud", record["msg"])
	assert.Equal(t, "val", record["key"])

	buf.Reset()
	newLogger("info", "text", &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
