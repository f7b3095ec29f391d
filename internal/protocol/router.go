package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/wagiedev/procbridge/internal/chunk"
	"github.com/wagiedev/procbridge/internal/envelope"
	"github.com/wagiedev/procbridge/internal/errors"
)

// maxErrorDetail bounds the raw input echoed back in error details.
const maxErrorDetail = 256

// Child is the view of the supervised process the router needs.
type Child interface {
	Running() bool
	Send(ctx context.Context, data []byte) error
}

// CommandHandler handles one system command.
type CommandHandler func(ctx context.Context, msg *envelope.Message) error

// Router dispatches control-channel envelopes.
type Router struct {
	log         *slog.Logger
	child       Child
	reassembler *chunk.Reassembler
	sink        Sink

	// Handler registry for system commands
	handlersMu sync.RWMutex
	handlers   map[string]CommandHandler
}

// NewRouter creates a router. child may be nil when no process is supervised.
func NewRouter(
	log *slog.Logger,
	child Child,
	reassembler *chunk.Reassembler,
	sink Sink,
) *Router {
	return &Router{
		log:         log.With("component", "router"),
		child:       child,
		reassembler: reassembler,
		sink:        sink,
		handlers:    make(map[string]CommandHandler, 4),
	}
}

// RegisterHandler registers the handler for a system command, replacing
// any previous handler for the same command.
func (r *Router) RegisterHandler(command string, handler CommandHandler) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()

	r.log.Debug("Registering system command handler", "command", command)
	r.handlers[command] = handler
}

// HandleLine decodes one control-channel line and routes the result.
// Chunk frames are buffered until their group completes.
func (r *Router) HandleLine(ctx context.Context, line []byte) {
	frame, err := envelope.Decode(line)
	if err != nil {
		r.reportError(err)

		return
	}

	msg := frame.Message

	if frame.IsChunk() {
		msg, err = r.reassembler.Observe(frame.Chunk)
		if err != nil {
			r.reportError(err)

			return
		}

		if msg == nil {
			return
		}

		r.log.Debug("Reassembled chunked message", "type", msg.Type, "chunk_id", frame.Chunk.ChunkID)
	}

	r.Route(ctx, msg)
}

// Route dispatches a complete message.
func (r *Router) Route(ctx context.Context, msg *envelope.Message) {
	r.log.Debug("Routing message", "type", msg.Type)

	switch msg.Type {
	case envelope.TypeSystem:
		r.handleSystem(ctx, msg)

	case envelope.TypeUserInput:
		r.handleUserInput(ctx, msg)

	default:
		r.forward(ctx, msg)
	}
}

// handleSystem invokes the handler registered for the message's command.
func (r *Router) handleSystem(ctx context.Context, msg *envelope.Message) {
	var sys envelope.SystemPayload

	if err := msg.DecodePayload(&sys); err != nil {
		r.reportError(&errors.ProtocolError{Op: "invalid system payload", RawData: string(msg.Payload), Err: err})

		return
	}

	r.handlersMu.RLock()
	handler, exists := r.handlers[sys.Command]
	r.handlersMu.RUnlock()

	if !exists {
		r.log.Warn("Unknown system command", "command", sys.Command)
		r.reportError(&errors.RoutingError{Type: msg.Type, Command: sys.Command, Err: errors.ErrUnknownCommand})

		return
	}

	if err := handler(ctx, msg); err != nil {
		r.log.Warn("System command failed", "command", sys.Command, "error", err)
		r.reportError(err)
	}
}

// handleUserInput forwards the message as received and acknowledges it.
func (r *Router) handleUserInput(ctx context.Context, msg *envelope.Message) {
	if !r.childRunning() {
		r.reportError(&errors.RoutingError{Type: msg.Type, Err: errors.ErrNoRunningProcess})

		return
	}

	data := msg.Raw()
	if data == nil {
		var err error

		data, err = json.Marshal(msg)
		if err != nil {
			r.reportError(fmt.Errorf("marshal user input: %w", err))

			return
		}
	}

	if err := r.child.Send(ctx, data); err != nil {
		r.reportError(fmt.Errorf("forward user input: %w", err))

		return
	}

	r.sink.Emit(envelope.NewStatus(map[string]any{
		"status":  "received_input",
		"inputId": gjson.GetBytes(msg.Payload, "id").Value(),
	}))
}

// forward passes any other message to the child unchanged.
func (r *Router) forward(ctx context.Context, msg *envelope.Message) {
	if !r.childRunning() {
		r.reportError(&errors.RoutingError{Type: msg.Type, Err: errors.ErrUnknownMessageType})

		return
	}

	data := msg.Raw()
	if data == nil {
		var err error

		data, err = json.Marshal(msg)
		if err != nil {
			r.reportError(fmt.Errorf("marshal %s message: %w", msg.Type, err))

			return
		}
	}

	if err := r.child.Send(ctx, data); err != nil {
		r.reportError(fmt.Errorf("forward %s message: %w", msg.Type, err))
	}
}

func (r *Router) childRunning() bool {
	return r.child != nil && r.child.Running()
}

// reportError converts err into an error message for the parent.
func (r *Router) reportError(err error) {
	detail := ""

	if protoErr, ok := stderrors.AsType[*errors.ProtocolError](err); ok {
		detail = protoErr.RawData
		if len(detail) > maxErrorDetail {
			cut := maxErrorDetail
			for cut > 0 && !utf8.RuneStart(detail[cut]) {
				cut--
			}

			detail = detail[:cut] + "..."
		}
	}

	r.sink.Emit(envelope.NewError(err, detail))
}
