package ddi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Batch is a decoded admin sync payload.
type Batch struct {
	Aliases []Alias
	DDI     []Interaction
}

// FieldError reports a payload that parsed as JSON but has the wrong shape.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ErrMalformed wraps JSON syntax errors in the payload.
var ErrMalformed = errors.New("malformed JSON body")

// ParseBatch decodes {aliases?: [...], ddi?: [...]}. Absent or null fields are
// treated as empty; present fields must be arrays. Every row is validated
// before the batch is returned so that callers can reject the request without
// touching storage.
func ParseBatch(body []byte) (*Batch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var b Batch
	if err := decodeArray(raw, "aliases", &b.Aliases); err != nil {
		return nil, err
	}
	if err := decodeArray(raw, "ddi", &b.DDI); err != nil {
		return nil, err
	}

	for i, a := range b.Aliases {
		if err := a.Validate(); err != nil {
			return nil, &FieldError{Field: fmt.Sprintf("aliases[%d]", i), Reason: err.Error()}
		}
	}
	for i, d := range b.DDI {
		if err := d.Validate(); err != nil {
			return nil, &FieldError{Field: fmt.Sprintf("ddi[%d]", i), Reason: err.Error()}
		}
	}
	return &b, nil
}

func decodeArray[T any](raw map[string]json.RawMessage, field string, dst *[]T) error {
	msg, ok := raw[field]
	if !ok {
		return nil
	}
	trimmed := bytes.TrimSpace(msg)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return &FieldError{Field: field, Reason: "must be an array"}
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return &FieldError{Field: field, Reason: "contains an invalid row: " + err.Error()}
	}
	return nil
}
