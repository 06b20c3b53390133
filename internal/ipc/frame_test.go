package ipc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello world")

	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWriteFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, nil))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	// Hand-craft a header claiming an oversized payload.
	require.NoError(t, WriteFrame(&buf, make([]byte, 16)))
	buf.Reset()
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestEncodeDecodeEnvelope(t *testing.T) {
	start := Start{
		Topic:  "space exploration",
		Prompt: "list attributes of {topic}",
		Params: Params{Temperature: 0.7, BatchSize: 20, MaxTokens: 256},
	}

	frame, err := Encode(TypeStart, start)
	require.NoError(t, err)

	env, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, TypeStart, env.Type)
	require.NotEmpty(t, env.ID)

	var got Start
	require.NoError(t, DecodePayload(env, &got))
	require.Equal(t, start, got)
}
