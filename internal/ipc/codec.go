package ipc

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Encode wraps payload into an Envelope of the given type and serializes it
// with sonic, ready for WriteFrame.
func Encode(t Type, payload interface{}) ([]byte, error) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal %s payload: %w", t, err)
	}

	env := Envelope{
		ID:      uuid.NewString(),
		Type:    t,
		Payload: body,
	}

	framed, err := sonic.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("ipc: marshal envelope: %w", err)
	}
	return framed, nil
}

// Decode unmarshals a raw frame into its Envelope and returns it unparsed;
// callers use DecodePayload with a concrete type once they've switched on
// env.Type.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("ipc: unmarshal envelope: %w", err)
	}
	return env, nil
}

// DecodePayload unmarshals env's payload into dst, which must be a pointer
// to one of the message structs matching env.Type.
func DecodePayload(env Envelope, dst interface{}) error {
	if err := sonic.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("ipc: unmarshal %s payload: %w", env.Type, err)
	}
	return nil
}
