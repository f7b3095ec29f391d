package envelope

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"
)

// Encoder turns outbound messages into wire frames, splitting payloads
// whose envelope exceeds the chunk size.
type Encoder struct {
	chunkSize int
	now       func() time.Time
}

// NewEncoder creates an encoder. A non-positive chunkSize selects MaxFrameSize.
func NewEncoder(chunkSize int) *Encoder {
	if chunkSize <= 0 {
		chunkSize = MaxFrameSize
	}

	return &Encoder{
		chunkSize: chunkSize,
		now:       time.Now,
	}
}

// ChunkSize returns the largest frame the encoder emits unsplit.
func (e *Encoder) ChunkSize() int {
	return e.chunkSize
}

// Encode serializes {type, payload, timestamp}. The result is a single frame
// when the envelope fits in the chunk size, otherwise one ChunkPart frame per
// slice of the serialized payload, in chunk index order. Frames carry no
// trailing newline.
func (e *Encoder) Encode(msgType string, payload any) ([][]byte, error) {
	payloadData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	timestamp := Timestamp(e.now())

	data, err := json.Marshal(NewMessage(msgType, payloadData, timestamp))
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	if len(data) <= e.chunkSize {
		return [][]byte{data}, nil
	}

	slices := splitPayload(payloadData, e.chunkSize)
	chunkID := newChunkID(data)
	frames := make([][]byte, 0, len(slices))

	for i, slice := range slices {
		part := &ChunkPart{
			Type:        msgType + ChunkSuffix,
			ChunkID:     chunkID,
			ChunkIndex:  i,
			TotalChunks: len(slices),
			Chunk:       slice,
			Timestamp:   Timestamp(e.now()),
		}

		frame, err := json.Marshal(part)
		if err != nil {
			return nil, fmt.Errorf("marshal chunk %d: %w", i, err)
		}

		frames = append(frames, frame)
	}

	return frames, nil
}

// newChunkID derives a split identifier from a monotonic ULID and a digest
// of the serialized envelope.
func newChunkID(envelope []byte) string {
	sum := blake3.Sum256(envelope)

	return ulid.Make().String() + "-" + hex.EncodeToString(sum[:6])
}

// splitPayload cuts data into contiguous slices of at most size bytes.
// Cuts never fall inside a UTF-8 sequence, so every slice survives being
// carried as a JSON string.
func splitPayload(data []byte, size int) []string {
	slices := make([]string, 0, (len(data)+size-1)/size)

	for start := 0; start < len(data); {
		end := min(start+size, len(data))

		for end < len(data) && end > start && !utf8.RuneStart(data[end]) {
			end--
		}

		if end == start {
			end = min(start+size, len(data))
		}

		slices = append(slices, string(data[start:end]))
		start = end
	}

	return slices
}
