package events

import "encoding/json"

// DefaultMaxPayloadBytes is the serialized size above which event payloads
// are summarized before publishing.
const DefaultMaxPayloadBytes = 8192

// previewBytes is how much of an oversized payload survives as a preview.
const previewBytes = 512

// preservedKeys are the metadata fields copied out of an oversized map
// payload so observers keep the operationally useful signals.
var preservedKeys = []string{
	"status",
	"workflow_status",
	"metrics",
	"tokens",
	"total_tokens",
	"duration_ms",
	"error",
}

// SummarizePayload returns the payload unchanged while it serializes below
// maxBytes (zero selects the default). Larger payloads are replaced by a
// truncated preview plus a whitelist of preserved metadata fields, so the
// event transport never carries unbounded values but observers are not left
// blind either.
func SummarizePayload(payload any, maxBytes int) any {
	if payload == nil {
		return nil
	}

	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		// Unserializable payloads cannot cross the transport at all.
		return map[string]any{"summarized": true, "error": "unserializable payload"}
	}

	if len(serialized) <= maxBytes {
		return payload
	}

	summary := map[string]any{
		"summarized":  true,
		"total_bytes": len(serialized),
		"preview":     string(serialized[:min(previewBytes, len(serialized))]),
	}

	if asMap, ok := payload.(map[string]any); ok {
		preserved := map[string]any{}

		for _, key := range preservedKeys {
			if value, exists := asMap[key]; exists {
				preserved[key] = value
			}
		}

		if len(preserved) > 0 {
			summary["preserved"] = preserved
		}
	}

	return summary
}
