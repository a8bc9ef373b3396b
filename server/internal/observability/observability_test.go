package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContextLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reqCtx := NewRequestContextWithID(logger, "req-1", "line", "U123")
	reqCtx.SetIntent("record_harvest")
	reqCtx.LogError("reply failed", errors.New("token expired"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry[LogFieldRequestID])
	assert.Equal(t, "U123", entry[LogFieldUserID])
	assert.Equal(t, "line", entry[LogFieldChannel])
	assert.Equal(t, "record_harvest", entry[LogFieldIntent])
	assert.Equal(t, "token expired", entry["error"])
	assert.Equal(t, "ERROR", entry["level"])

	buf.Reset()
	reqCtx.LogComplete("done")
	assert.True(t, strings.Contains(buf.String(), LogFieldDuration))
}

func TestNewRequestContextGeneratesID(t *testing.T) {
	a := NewRequestContext(nil, "web", "")
	b := NewRequestContext(nil, "web", "")
	assert.Len(t, a.RequestID, 36)
	assert.NotEqual(t, a.RequestID, b.RequestID)

	ctx := WithRequestContext(context.Background(), a)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("line")
	m.RecordRequest("line")
	m.RecordFailure("line")
	m.RecordDegraded("line")
	m.RecordIntent("line", "get_harvest_stats")
	m.RecordAttempt("line", "bad_request")
	m.RecordAttempt("line", "ok")
	m.RecordRequest("web")
	m.RecordNoOp("web")
	m.RecordRetrievalFailure("web")
	m.RecordWebhookBatch(true)

	s := m.Snapshot()
	require.Contains(t, s.Channels, "line")
	assert.EqualValues(t, 2, s.Channels["line"].Requests)
	assert.EqualValues(t, 1, s.Channels["line"].Degraded)
	assert.Equal(t, map[string]int64{"get_harvest_stats": 1}, s.Channels["line"].Intents)
	assert.Equal(t, map[string]int64{"bad_request": 1, "ok": 1}, s.Channels["line"].Attempts)
	assert.EqualValues(t, 1, s.Channels["web"].NoOps)
	assert.EqualValues(t, 1, s.Channels["web"].RetrievalFailures)
	assert.EqualValues(t, 1, s.WebhookBatchFailures)
	assert.InDelta(t, 50.0, s.SuccessRate("line"), 0.001)
	assert.InDelta(t, 100.0, s.SuccessRate("missing"), 0.001)

	m.Reset()
	assert.Empty(t, m.Snapshot().Channels)
}
