package txlog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a transaction list from an external payload. Some backends
// hand the list back as a JSON string that itself encodes the array, so both
// forms are accepted. On failure the result is empty and the error wraps
// ErrMalformedPayload; callers are expected to report it and carry on.
func Decode(raw []byte) ([]Transaction, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Transaction{}, nil
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return []Transaction{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 {
			return []Transaction{}, nil
		}
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return []Transaction{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	out := make([]Transaction, 0, len(records))
	for i, rec := range records {
		var tx Transaction
		if err := json.Unmarshal(rec, &tx); err != nil {
			return []Transaction{}, fmt.Errorf("%w: record %d: %w", ErrMalformedPayload, i, err)
		}
		out = append(out, tx)
	}
	return out, nil
}
