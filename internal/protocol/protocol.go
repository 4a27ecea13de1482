package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Protocol revision carried in every envelope.
const Version = 1

// Names a request or response.
type Command string

const (
	CmdBuild    Command = "build"
	CmdStatus   Command = "status"
	CmdShutdown Command = "shutdown"
	CmdOK       Command = "ok"
	CmdError    Command = "error"
)

var ErrProtocol = errors.New("protocol error")

// Frames every message.
type Envelope struct {
	Version int             `json:"version"`
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encodes a command and payload into an envelope, without a trailing newline.
// A nil payload is omitted.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Version: Version, Command: cmd}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		env.Payload = raw
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return data, nil
}

// Decodes an envelope, returning it alongside its raw payload.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if env.Version != Version {
		return nil, nil, fmt.Errorf("%w: unsupported version %d", ErrProtocol, env.Version)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("%w: missing command", ErrProtocol)
	}
	return &env, env.Payload, nil
}

// Decodes a payload into T.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	var v T
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrProtocol)
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return &v, nil
}
