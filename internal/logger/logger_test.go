package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	buf := new(bytes.Buffer)
	log := NewWithWriter(buf, "info", "json")

	log.Debug("hidden")
	log.Info("batch completed", "total", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "batch completed", entry["msg"])
	assert.Equal(t, float64(3), entry["total"])
}

func TestNewWithWriter_Text(t *testing.T) {
	buf := new(bytes.Buffer)
	log := NewWithWriter(buf, "DEBUG", "text")

	log.Debug("fetching", "url", "https://www.example.com/itm/1")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "url=https://www.example.com/itm/1")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "WARN", parseLevel("warning").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
