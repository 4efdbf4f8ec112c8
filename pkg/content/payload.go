package content

import (
	"encoding/base64"
	"fmt"
)

// Stored chunk payloads are not uniform. Rows written by the current code
// carry raw bytes, but older rows carry the same data as a base64 string, or
// as a nested object with the base64 text under a "base64" or "data" key.
// chunkPayload is the closed set of shapes we accept; anything else is
// rejected so a corrupt row can never be silently decoded as garbage.
type chunkPayload struct {
	data []byte
}

// normalizePayload maps one stored payload value onto raw bytes.
func normalizePayload(v any) (chunkPayload, error) {
	switch p := v.(type) {
	case []byte:
		return chunkPayload{data: p}, nil
	case string:
		data, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			return chunkPayload{}, fmt.Errorf("payload string is not base64: %w", err)
		}
		return chunkPayload{data: data}, nil
	case map[string]any:
		return normalizeNested(p)
	case map[any]any:
		// CBOR decoding may produce untyped map keys.
		m := make(map[string]any, len(p))
		for k, val := range p {
			ks, ok := k.(string)
			if !ok {
				return chunkPayload{}, fmt.Errorf("payload object has non-string key %v", k)
			}
			m[ks] = val
		}
		return normalizeNested(m)
	case nil:
		return chunkPayload{}, fmt.Errorf("payload is null")
	default:
		return chunkPayload{}, fmt.Errorf("unrecognized payload type %T", v)
	}
}

func normalizeNested(m map[string]any) (chunkPayload, error) {
	for _, key := range []string{"base64", "data"} {
		raw, ok := m[key]
		if !ok {
			continue
		}
		switch inner := raw.(type) {
		case string:
			data, err := base64.StdEncoding.DecodeString(inner)
			if err != nil {
				return chunkPayload{}, fmt.Errorf("payload %q field is not base64: %w", key, err)
			}
			return chunkPayload{data: data}, nil
		case []byte:
			return chunkPayload{data: inner}, nil
		default:
			return chunkPayload{}, fmt.Errorf("payload %q field has type %T", key, raw)
		}
	}
	return chunkPayload{}, fmt.Errorf("payload object carries no base64 or data field")
}
