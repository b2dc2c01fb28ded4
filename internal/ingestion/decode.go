package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedBatch is returned when a partner payload is not a JSON list of objects.
var ErrMalformedBatch = errors.New("malformed batch")

// DecodeItems decodes a JSON list of partner rows. Numbers are kept as json.Number so integer
// codes and identifiers survive unchanged.
func DecodeItems(data []byte) ([]RawProtocolItem, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var items []RawProtocolItem
	if err := decoder.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}

	if decoder.More() {
		return nil, fmt.Errorf("%w: unexpected data after list", ErrMalformedBatch)
	}

	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("%w: item %d is not an object", ErrMalformedBatch, i)
		}
	}

	return items, nil
}

// DecodePartnerRows accepts the partner's protocol listing, either wrapped as {"data": [...]}
// or as a bare list.
func DecodePartnerRows(data []byte) ([]RawProtocolItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return DecodeItems(trimmed)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}

	if envelope.Data == nil {
		return nil, fmt.Errorf("%w: missing data list", ErrMalformedBatch)
	}

	return DecodeItems(envelope.Data)
}
