package envelope

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedEncoder(chunkSize int) *Encoder {
	enc := NewEncoder(chunkSize)
	enc.now = func() time.Time {
		return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	}

	return enc
}

func TestEncode_SmallMessageIsSingleFrame(t *testing.T) {
	enc := fixedEncoder(MaxFrameSize)

	frames, err := enc.Encode(TypeStatus, map[string]any{"pong": true})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.JSONEq(t,
		`{"type":"status","payload":{"pong":true},"timestamp":"2026-10-17T09:30:00Z"}`,
		string(frames[0]),
	)
}

func TestEncode_EnvelopeAtLimitIsNotSplit(t *testing.T) {
	enc := fixedEncoder(MaxFrameSize)

	overhead, err := enc.Encode(TypeLog, "")
	require.NoError(t, err)

	text := strings.Repeat("a", MaxFrameSize-len(overhead[0]))

	frames, err := enc.Encode(TypeLog, text)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Len(t, frames[0], MaxFrameSize)
	require.NotContains(t, string(frames[0]), ChunkSuffix)
}

func TestEncode_LargeMessageIsChunked(t *testing.T) {
	enc := fixedEncoder(MaxFrameSize)
	payload := map[string]any{"output": strings.Repeat("x", 3*MaxFrameSize)}

	payloadData, err := json.Marshal(payload)
	require.NoError(t, err)

	frames, err := enc.Encode(TypeAgentOutput, payload)
	require.NoError(t, err)

	expectedChunks := (len(payloadData) + MaxFrameSize - 1) / MaxFrameSize
	require.Len(t, frames, expectedChunks)

	var combined strings.Builder

	var chunkID string

	for i, frame := range frames {
		var part ChunkPart
		require.NoError(t, json.Unmarshal(frame, &part))
		require.Equal(t, "agent_output_CHUNK", part.Type)
		require.Equal(t, i, part.ChunkIndex)
		require.Equal(t, expectedChunks, part.TotalChunks)
		require.LessOrEqual(t, len(part.Chunk), MaxFrameSize)

		if i == 0 {
			chunkID = part.ChunkID
		}

		require.Equal(t, chunkID, part.ChunkID)
		combined.WriteString(part.Chunk)
	}

	require.NotEmpty(t, chunkID)
	require.Equal(t, string(payloadData), combined.String())
}

func TestEncode_ChunkIDsAreUniquePerSplit(t *testing.T) {
	enc := fixedEncoder(64)
	payload := strings.Repeat("z", 200)

	first, err := enc.Encode(TypeResult, payload)
	require.NoError(t, err)

	second, err := enc.Encode(TypeResult, payload)
	require.NoError(t, err)

	var a, b ChunkPart
	require.NoError(t, json.Unmarshal(first[0], &a))
	require.NoError(t, json.Unmarshal(second[0], &b))
	require.NotEqual(t, a.ChunkID, b.ChunkID)
}

func TestEncode_UnencodablePayload(t *testing.T) {
	enc := NewEncoder(0)

	_, err := enc.Encode(TypeResult, map[string]any{"fn": func() {}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "marshal payload")
}

func TestSplitPayload_KeepsRunesWhole(t *testing.T) {
	data := []byte(`"` + strings.Repeat("é", 20) + `"`)

	slices := splitPayload(data, 8)

	var rebuilt strings.Builder

	for _, s := range slices {
		require.LessOrEqual(t, len(s), 8)
		require.True(t, json.Valid([]byte(`"`+strings.ReplaceAll(s, `"`, `\"`)+`"`)))
		rebuilt.WriteString(s)
	}

	require.Equal(t, string(data), rebuilt.String())
}

func TestNewEncoder_DefaultsChunkSize(t *testing.T) {
	require.Equal(t, MaxFrameSize, NewEncoder(0).ChunkSize())
	require.Equal(t, 128, NewEncoder(128).ChunkSize())
}
