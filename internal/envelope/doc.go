// Package envelope implements the line-delimited JSON envelope used on both
// sides of the bridge.
//
// Every frame on the wire is one JSON object on one line: either a complete
// Message ({type, payload, timestamp}) or a ChunkPart carrying a slice of an
// oversized payload. The Encoder decides when a message must be split;
// Decode classifies an inbound line as one or the other.
//
// Example usage:
//
//	enc := envelope.NewEncoder(envelope.MaxFrameSize)
//	frames, err := enc.Encode(envelope.TypeStatus, map[string]any{"pong": true})
//
//	frame, err := envelope.Decode(line)
//	if frame.IsChunk() {
//		// hand frame.Chunk to the reassembler
//	}
package envelope
