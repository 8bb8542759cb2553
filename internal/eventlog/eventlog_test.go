package eventlog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycelian/relic-service/internal/model"
)

func TestRecordWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := New(&buf, func() time.Time { return now })

	actor, relic := uuid.New(), uuid.New()
	l.Record(Entry{
		Event:    "DEATH",
		Actor:    actor,
		Relic:    relic,
		Location: &model.Location{World: "overworld", X: 1, Y: 2, Z: 3},
		Outcome:  "LOST_ON_DEATH",
		TimerEnd: now.Add(5 * time.Minute),
		TimeLeft: 5 * time.Minute,
		Context:  map[string]any{"cause": "fall"},
	})

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "DEATH", got["event"])
	assert.Equal(t, actor.String(), got["actor"])
	assert.Equal(t, relic.String(), got["relic"])
	assert.Equal(t, "LOST_ON_DEATH", got["outcome"])
	assert.Equal(t, 300.0, got["time_left"])
	assert.Equal(t, "2025-06-01T12:00:00Z", got["timestamp"])
	assert.Equal(t, "overworld", got["location"].(map[string]any)["world"])
	assert.Equal(t, "fall", got["context"].(map[string]any)["cause"])
	_, hasReason := got["reason"]
	assert.False(t, hasReason, "empty fields are omitted")
}

func TestOpenRotatesDaily(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	l, err := Open(dir, func() time.Time { return now })
	require.NoError(t, err)
	defer l.Close()

	l.Record(Entry{Event: "CRAFT"})
	now = now.Add(2 * time.Minute)
	l.Record(Entry{Event: "PICKUP"})

	first, err := os.ReadFile(filepath.Join(dir, "relic-events-2025-06-01.log"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "relic-events-2025-06-02.log"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(first), `"CRAFT"`))
	assert.True(t, strings.Contains(string(second), `"PICKUP"`))
}

func TestOpenEmptyDirDisables(t *testing.T) {
	l, err := Open("", nil)
	require.NoError(t, err)
	l.Record(Entry{Event: "NOOP"})
	assert.NoError(t, l.Close())
}
