package envelope

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wagiedev/procbridge/internal/errors"
)

func TestDecode_Message(t *testing.T) {
	line := []byte(`{"type":"system","payload":{"command":"ping"},"timestamp":"2026-10-17T09:30:00Z"}`)

	frame, err := Decode(line)
	require.NoError(t, err)
	require.False(t, frame.IsChunk())
	require.Equal(t, TypeSystem, frame.Message.Type)
	require.Equal(t, string(line), string(frame.Message.Raw()))

	var sys SystemPayload
	require.NoError(t, frame.Message.DecodePayload(&sys))
	require.Equal(t, "ping", sys.Command)
}

func TestDecode_MessageWithoutPayload(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"step"}`))
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, frame.Message.DecodePayload(&payload))
	require.Nil(t, payload)
}

func TestDecode_Chunk(t *testing.T) {
	line := []byte(`{"type":"user_input_CHUNK","chunkId":"abc","chunkIndex":1,"totalChunks":3,"chunk":"{\"a\"","timestamp":"t"}`)

	frame, err := Decode(line)
	require.NoError(t, err)
	require.True(t, frame.IsChunk())
	require.Equal(t, "abc", frame.Chunk.ChunkID)
	require.Equal(t, 1, frame.Chunk.ChunkIndex)
	require.Equal(t, 3, frame.Chunk.TotalChunks)
	require.Equal(t, `{"a"`, frame.Chunk.Chunk)
	require.Equal(t, TypeUserInput, frame.Chunk.BaseType())
}

func TestDecode_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		sentinel error
	}{
		{name: "not json", input: `hello world`},
		{name: "truncated", input: `{"type":"status"`},
		{name: "array", input: `[1,2,3]`},
		{name: "non-string type", input: `{"type":42}`},
		{name: "missing type", input: `{"payload":{}}`},
		{
			name:     "chunk without id",
			input:    `{"type":"log_CHUNK","chunkIndex":0,"totalChunks":1,"chunk":"{}"}`,
			sentinel: errors.ErrMissingChunkID,
		},
		{name: "negative index", input: `{"type":"log_CHUNK","chunkId":"x","chunkIndex":-1,"totalChunks":1,"chunk":"{}"}`},
		{name: "zero total", input: `{"type":"log_CHUNK","chunkId":"x","chunkIndex":0,"totalChunks":0,"chunk":"{}"}`},
		{name: "missing chunk body", input: `{"type":"log_CHUNK","chunkId":"x","chunkIndex":0,"totalChunks":1}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.input))
			require.Error(t, err)

			protoErr, ok := stderrors.AsType[*errors.ProtocolError](err)
			require.True(t, ok, "expected ProtocolError, got %T", err)
			require.Equal(t, tc.input, protoErr.RawData)

			if tc.sentinel != nil {
				require.ErrorIs(t, err, tc.sentinel)
			}
		})
	}
}

func TestDecode_RoundTripsEncodedChunks(t *testing.T) {
	enc := NewEncoder(32)

	frames, err := enc.Encode(TypeResult, map[string]any{"data": "0123456789012345678901234567890123456789"})
	require.NoError(t, err)
	require.Greater(t, len(frames), 1)

	for i, raw := range frames {
		frame, err := Decode(raw)
		require.NoError(t, err)
		require.True(t, frame.IsChunk())
		require.Equal(t, i, frame.Chunk.ChunkIndex)
		require.Equal(t, TypeResult, frame.Chunk.BaseType())
	}
}
