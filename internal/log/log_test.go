package log

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	defer func() { _ = SetLogLevel("info") }()

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, "debug", GetLogLevel())

	require.NoError(t, SetLogLevel("TRACE"))
	assert.Equal(t, "trace", GetLogLevel())

	assert.Error(t, SetLogLevel("verbose"))
	assert.Equal(t, "trace", GetLogLevel())
}

func TestLogAnomaly(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	LogAnomaly("probe", "Malformed profile response", map[string]any{
		"endpoint": "/api/user",
	})

	line := buf.String()
	assert.Contains(t, line, "level=ERROR")
	assert.Contains(t, line, "component=probe")
	assert.Contains(t, line, "anomaly=true")
	assert.Contains(t, line, "endpoint=/api/user")
}
