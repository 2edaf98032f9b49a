/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNilPayload is returned by Decode for events without a payload.
var ErrNilPayload = errors.New("event has no payload")

// Remote is the payload of an event republished from a broker or a websocket
// client. Data holds the original JSON payload.
type Remote struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// Decode returns the payload as T. Local publishers pass T or *T directly;
// remote payloads and loosely typed maps are converted through JSON.
func Decode[T any](payload any) (T, error) {
	var zero T
	switch v := payload.(type) {
	case nil:
		return zero, ErrNilPayload
	case T:
		return v, nil
	case *T:
		if v == nil {
			return zero, ErrNilPayload
		}
		return *v, nil
	case Remote:
		return unmarshal[T](v.Data)
	case *Remote:
		if v == nil {
			return zero, ErrNilPayload
		}
		return unmarshal[T](v.Data)
	case json.RawMessage:
		return unmarshal[T](v)
	case []byte:
		return unmarshal[T](v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return zero, fmt.Errorf("encode payload %T: %w", payload, err)
		}
		return unmarshal[T](data)
	}
}

func unmarshal[T any](data []byte) (T, error) {
	var out T
	if len(data) == 0 {
		return out, ErrNilPayload
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode payload as %T: %w", out, err)
	}
	return out, nil
}
