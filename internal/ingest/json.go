package ingest

import (
	"bytes"
	"encoding/json"
	"errors"

	"featurestream/internal/model"
)

// DecodeEvent parses one JSON object into a raw event. Validation of the
// fields themselves happens in the engine, not here.
func DecodeEvent(data []byte) (model.RawEvent, error) {
	var raw model.RawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("null event")
	}
	return raw, nil
}

// DecodeEvents parses either a single JSON object or a JSON array of objects.
func DecodeEvents(data []byte) ([]model.RawEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}
	if trimmed[0] == '[' {
		var list []model.RawEvent
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	raw, err := DecodeEvent(trimmed)
	if err != nil {
		return nil, err
	}
	return []model.RawEvent{raw}, nil
}
