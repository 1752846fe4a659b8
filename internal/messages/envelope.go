package messages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/vthunder/diner/internal/types"
)

var ErrUnknownKind = errors.New("unknown message kind")

// Envelope is the JSON frame around every message
type Envelope struct {
	Type      Kind            `json:"type"`
	ID        string          `json:"id,omitempty"`
	ContextID types.ContextID `json:"contextId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Encode frames msg for the wire
func Encode(id string, contextID types.ContextID, msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return json.Marshal(Envelope{Type: msg.Kind(), ID: id, ContextID: contextID, Payload: payload})
}

// Decode parses a frame and its payload. The returned message is a value,
// never a pointer.
func Decode(data []byte) (Envelope, Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, nil, fmt.Errorf("decode envelope: %w", err)
	}

	newMsg, ok := decoders[env.Type]
	if !ok {
		return env, nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}

	ptr := newMsg()
	if payload := bytes.TrimSpace(env.Payload); len(payload) > 0 && !bytes.Equal(payload, []byte("null")) {
		if err := json.Unmarshal(payload, ptr); err != nil {
			return env, nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	return env, reflect.ValueOf(ptr).Elem().Interface().(Message), nil
}
