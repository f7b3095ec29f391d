package envelope

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/wagiedev/procbridge/internal/errors"
)

// Frame is a decoded inbound line. Exactly one of Message and Chunk is set.
type Frame struct {
	Message *Message
	Chunk   *ChunkPart
}

// IsChunk reports whether the frame is a chunk part.
func (f Frame) IsChunk() bool {
	return f.Chunk != nil
}

// Decode parses one line into a Frame.
//
// Lines that are not JSON objects return a ProtocolError wrapping the JSON
// error. Chunk frames without a chunkId return a ProtocolError wrapping
// ErrMissingChunkID; other malformed chunk frames fail schema validation.
func Decode(line []byte) (Frame, error) {
	var generic map[string]any

	if err := json.Unmarshal(line, &generic); err != nil {
		return Frame{}, &errors.ProtocolError{
			Op:      "invalid JSON message",
			RawData: string(line),
			Err:     err,
		}
	}

	msgType, _ := generic["type"].(string)

	if !IsChunkType(msgType) {
		if err := messageSchema.Validate(generic); err != nil {
			return Frame{}, &errors.ProtocolError{Op: "invalid message frame", RawData: string(line), Err: err}
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return Frame{}, &errors.ProtocolError{Op: "invalid message frame", RawData: string(line), Err: err}
		}

		msg.raw = slices.Clone(line)

		return Frame{Message: &msg}, nil
	}

	if id, _ := generic["chunkId"].(string); id == "" {
		return Frame{}, &errors.ProtocolError{RawData: string(line), Err: errors.ErrMissingChunkID}
	}

	if err := chunkSchema.Validate(generic); err != nil {
		return Frame{}, &errors.ProtocolError{
			Op:      "invalid chunk frame",
			RawData: string(line),
			Err:     err,
		}
	}

	var part ChunkPart
	if err := json.Unmarshal(line, &part); err != nil {
		return Frame{}, &errors.ProtocolError{
			Op:      "invalid chunk frame",
			RawData: string(line),
			Err:     fmt.Errorf("decode chunk: %w", err),
		}
	}

	return Frame{Chunk: &part}, nil
}
