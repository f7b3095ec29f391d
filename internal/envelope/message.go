package envelope

import (
	"encoding/json"
	"strings"
	"time"
)

// Control-plane message types. Any other type is application-defined and
// forwarded opaquely.
const (
	TypeSystem      = "system"
	TypeStatus      = "status"
	TypeError       = "error"
	TypeUserInput   = "user_input"
	TypeAgentOutput = "agent_output"
	TypeStep        = "step"
	TypeResult      = "result"
	TypeLog         = "log"
)

const (
	// ChunkSuffix marks the type of a chunk frame.
	ChunkSuffix = "_CHUNK"

	// MaxFrameSize is the largest serialized envelope sent as a single frame.
	MaxFrameSize = 16384
)

// Log levels carried in log payloads.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Message is a complete protocol envelope.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`

	// raw holds the exact line the message was decoded from.
	raw []byte
}

// NewMessage creates a message from an already-encoded payload.
func NewMessage(msgType string, payload json.RawMessage, timestamp string) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: timestamp,
	}
}

// Raw returns the line the message was decoded from, or nil for messages
// built in-process.
func (m *Message) Raw() []byte {
	return m.raw
}

// DecodePayload unmarshals the payload into v. A missing payload leaves v untouched.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return nil
	}

	return json.Unmarshal(m.Payload, v)
}

// ChunkPart is one slice of an oversized payload.
type ChunkPart struct {
	Type        string `json:"type"`
	ChunkID     string `json:"chunkId"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
	Chunk       string `json:"chunk"`
	Timestamp   string `json:"timestamp"`
}

// BaseType returns the type of the message the chunk belongs to.
func (c *ChunkPart) BaseType() string {
	return strings.TrimSuffix(c.Type, ChunkSuffix)
}

// IsChunkType reports whether a frame type denotes a chunk.
func IsChunkType(msgType string) bool {
	return strings.HasSuffix(msgType, ChunkSuffix)
}

// Timestamp formats t as an ISO-8601 timestamp.
func Timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// LogPayload is the payload of a log message.
type LogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ErrorPayload is the payload of an error message.
type ErrorPayload struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// SystemPayload is the payload of a system message.
type SystemPayload struct {
	Command string `json:"command"`
}

// Outbound is one unit queued for the parent-facing channel: either a
// message to encode or, when Raw is set, a line to pass through verbatim.
type Outbound struct {
	Type    string
	Payload any
	Raw     []byte
}

// NewLog creates a log unit.
func NewLog(level, text string) Outbound {
	return Outbound{Type: TypeLog, Payload: LogPayload{Level: level, Message: text}}
}

// NewStatus creates a status unit.
func NewStatus(payload any) Outbound {
	return Outbound{Type: TypeStatus, Payload: payload}
}

// NewError creates an error unit from err, with an optional detail line.
func NewError(err error, detail string) Outbound {
	return Outbound{Type: TypeError, Payload: ErrorPayload{Message: err.Error(), Detail: detail}}
}

// Passthrough creates a unit that is written to the parent unchanged.
func Passthrough(line []byte) Outbound {
	return Outbound{Raw: line}
}
