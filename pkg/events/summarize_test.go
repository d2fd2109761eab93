package events

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizePayload_SmallPayloadUnchanged(t *testing.T) {
	payload := map[string]any{"status": "completed", "value": 42}

	assert.Equal(t, payload, SummarizePayload(payload, 0))
}

func TestSummarizePayload_LargePayloadSummarized(t *testing.T) {
	payload := map[string]any{
		"status":      "completed",
		"duration_ms": int64(1200),
		"body":        strings.Repeat("x", DefaultMaxPayloadBytes),
	}

	result := SummarizePayload(payload, 0)

	summary, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, summary["summarized"])
	assert.NotEmpty(t, summary["preview"])
	assert.LessOrEqual(t, len(summary["preview"].(string)), previewBytes)

	preserved, ok := summary["preserved"].(map[string]any)
	require.True(t, ok, "whitelisted metadata must survive summarization")
	assert.Equal(t, "completed", preserved["status"])
	assert.Equal(t, int64(1200), preserved["duration_ms"])
	assert.NotContains(t, preserved, "body")
}

func TestSummarizePayload_NonMapPayload(t *testing.T) {
	payload := strings.Repeat("y", DefaultMaxPayloadBytes+1)

	result := SummarizePayload(payload, 0)

	summary, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, summary["summarized"])
	assert.NotContains(t, summary, "preserved")
}

func TestSummarizePayload_PayloadShorterThanPreview(t *testing.T) {
	payload := map[string]any{"status": "completed", "body": strings.Repeat("z", 200)}

	result := SummarizePayload(payload, 100)

	summary, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, summary["summarized"])

	// The whole payload serializes below the preview window; the preview is
	// simply everything.
	preview, ok := summary["preview"].(string)
	require.True(t, ok)
	assert.Equal(t, summary["total_bytes"], len(preview))
}

func TestSummarizePayload_Nil(t *testing.T) {
	assert.Nil(t, SummarizePayload(nil, 0))
}
