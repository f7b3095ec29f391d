package protocol

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wagiedev/procbridge/internal/envelope"
)

// defaultQueueSize is the buffer size of the emitter's unit queue.
const defaultQueueSize = 100

// Sink accepts units bound for the parent.
type Sink interface {
	Emit(unit envelope.Outbound)
}

// Emitter serializes units onto the parent-facing writer, one frame per line.
type Emitter struct {
	log        *slog.Logger
	w          io.Writer
	encoder    *envelope.Encoder
	chunkDelay time.Duration

	units    chan envelope.Outbound
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

// Compile-time verification that Emitter implements Sink.
var _ Sink = (*Emitter)(nil)

// NewEmitter creates an emitter writing to w. chunkDelay is the pause
// between successive chunk frames of one split message.
func NewEmitter(
	log *slog.Logger,
	w io.Writer,
	encoder *envelope.Encoder,
	chunkDelay time.Duration,
) *Emitter {
	return &Emitter{
		log:        log.With("component", "emitter"),
		w:          w,
		encoder:    encoder,
		chunkDelay: chunkDelay,
		units:      make(chan envelope.Outbound, defaultQueueSize),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

// Units returns the queue producers may send to directly.
func (e *Emitter) Units() chan<- envelope.Outbound {
	return e.units
}

// Emit queues a unit. Units emitted after Stop are dropped.
func (e *Emitter) Emit(unit envelope.Outbound) {
	select {
	case <-e.stop:
		e.log.Debug("Dropped unit after stop", "type", unit.Type)

		return
	default:
	}

	select {
	case e.units <- unit:
	case <-e.stop:
		e.log.Debug("Dropped unit after stop", "type", unit.Type)
	}
}

// Run writes queued units until Stop is called, then flushes whatever is
// still queued and returns.
func (e *Emitter) Run() {
	defer close(e.finished)
	defer e.log.Debug("Emitter stopped")

	for {
		select {
		case unit := <-e.units:
			e.write(unit)

		case <-e.stop:
			for {
				select {
				case unit := <-e.units:
					e.write(unit)
				default:
					return
				}
			}
		}
	}
}

// Stop ends Run after the queue is flushed and waits for it to return.
// It is safe to call Stop multiple times.
func (e *Emitter) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})

	<-e.finished
}

// write encodes one unit and writes its frames.
func (e *Emitter) write(unit envelope.Outbound) {
	if unit.Raw != nil {
		e.writeLine(unit.Raw)

		return
	}

	frames, err := e.encoder.Encode(unit.Type, unit.Payload)
	if err != nil {
		e.log.Error("Failed to encode message", "type", unit.Type, "error", err)

		frames, err = e.encoder.Encode(envelope.TypeError, envelope.ErrorPayload{
			Message: fmt.Sprintf("failed to encode %s message", unit.Type),
			Detail:  err.Error(),
		})
		if err != nil {
			// Last resort: the parent gets a plain-text line.
			e.writeLine(fmt.Appendf(nil, "procbridge: failed to encode message: %v", err))

			return
		}
	}

	for i, frame := range frames {
		if i > 0 && e.chunkDelay > 0 {
			time.Sleep(e.chunkDelay)
		}

		e.writeLine(frame)
	}

	if len(frames) > 1 {
		e.log.Debug("Sent chunked message", "type", unit.Type, "chunks", len(frames))
	}
}

func (e *Emitter) writeLine(data []byte) {
	line := make([]byte, len(data)+1)
	copy(line, data)
	line[len(data)] = '\n'

	if _, err := e.w.Write(line); err != nil {
		e.log.Error("Failed to write to parent", "error", err)
	}
}
