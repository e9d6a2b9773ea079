package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInboxFull      = errors.New("kafka producer inbox full")
	ErrProducerClosed = errors.New("kafka producer closed")
)

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// UnwrapPayload decodes an envelope payload into T.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
