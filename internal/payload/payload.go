// Package payload normalizes request and response bodies into values that
// survive a JSON round trip.
//
// Recorded bodies arrive as raw bytes but are persisted inside JSON blobs,
// so every body is converted to a storable form up front: JSON bodies keep
// their structure, textual bodies become strings, and binary bodies are
// wrapped in a base64 envelope.
package payload

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/ohler55/ojg/oj"
)

// binaryKey marks a normalized binary payload.
const binaryKey = "$binary"

// Normalize converts a raw body into a JSON-storable value.
func Normalize(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if v, err := oj.Parse(raw); err == nil {
		return v
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	return map[string]any{binaryKey: base64.StdEncoding.EncodeToString(raw)}
}

// Denormalize converts a stored value back into the raw bytes that were
// originally observed on the wire.
func Denormalize(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(t), nil
	case map[string]any:
		if enc, ok := t[binaryKey].(string); ok && len(t) == 1 {
			raw, err := base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return nil, fmt.Errorf("failed to decode binary payload: %w", err)
			}
			return raw, nil
		}
	}
	return []byte(oj.JSON(v)), nil
}

// Size reports the serialized size of a normalized value in bytes. It is
// the measure used to decide whether a response is externalized into a
// fixture blob.
func Size(v any) int {
	if v == nil {
		return 0
	}
	return len(oj.JSON(v))
}
