package types

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// MessageType tags a wire envelope.
type MessageType string

const (
	// Worker -> Master
	MsgRegister MessageType = "register"
	MsgReady    MessageType = "ready"
	MsgResult   MessageType = "result"

	// Master -> Worker
	MsgRegisterAck MessageType = "register_ack"
	MsgReply       MessageType = "reply"
)

// Envelope is the unified frame for every master/worker message.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RegisterRequest is the first frame a worker sends on a new connection.
type RegisterRequest struct {
	WorkerID WorkerID `json:"worker_id"`
}

// RegisterAck answers RegisterRequest. On acceptance it carries the run's
// grid and viewport so that remote workers compute with the master's settings.
type RegisterAck struct {
	Accepted bool     `json:"accepted"`
	WorkerID WorkerID `json:"worker_id"`
	Grid     GridSpec `json:"grid"`
	Viewport Viewport `json:"viewport"`
	Error    string   `json:"error,omitempty"`
}

var codec = sonic.ConfigStd

// Encode wraps payload in an envelope of the given type and serializes it.
// A nil payload produces an envelope without data.
func Encode(t MessageType, payload any) ([]byte, error) {
	env := Envelope{Type: t}
	if payload != nil {
		data, err := codec.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Data = data
	}
	return codec.Marshal(&env)
}

// Decode parses a serialized envelope.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}
	return &env, nil
}

// Into decodes the envelope payload into v.
func (e *Envelope) Into(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s envelope has no payload", e.Type)
	}
	if err := codec.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
