package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(&Config{
		Level:       LevelDebug,
		Service:     "test",
		Environment: "test",
		Output:      buf,
	})
}

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), "log line must be valid JSON: %s", buf.String())
	return line
}

func TestWithTaskLogsPayload(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferedLogger(&buf)

	logger.WithTask("contract:process_metadata", "task-1", []byte(`{"address":"0xAbC","chain_id":1}`)).
		Debug("Task started")

	line := logLine(t, &buf)
	assert.Equal(t, "contract:process_metadata", line["task"])
	assert.Equal(t, "task-1", line["task_id"])

	args, ok := line["args"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "0xAbC", args["address"])
}

func TestWithTaskHandlesEmptyPayload(t *testing.T) {
	for name, payload := range map[string][]byte{
		"nil":   nil,
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newBufferedLogger(&buf)

			logger.WithTask("contract:rescan_missing_metadata", "task-2", payload).
				Debug("Task started")

			line := logLine(t, &buf)
			assert.Equal(t, "contract:rescan_missing_metadata", line["task"])
			assert.Contains(t, line, "args")
			assert.Nil(t, line["args"])
		})
	}
}
