package pump

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/wagiedev/procbridge/internal/envelope"
)

const (
	// DefaultMaxLineSize bounds a single line read from the child.
	DefaultMaxLineSize = 1024 * 1024 // 1MB

	readBufferSize = 64 * 1024
)

var errDecodeOutput = stderrors.New("error decoding process output")

// Pump converts one child output stream into protocol units.
type Pump struct {
	log         *slog.Logger
	name        string
	level       string
	maxLineSize int
}

// New creates a pump for the named stream. Plain lines are logged at level
// (envelope.LevelInfo or envelope.LevelError). A non-positive maxLineSize
// selects DefaultMaxLineSize.
func New(log *slog.Logger, name, level string, maxLineSize int) *Pump {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}

	return &Pump{
		log:         log.With("component", "pump", "stream", name),
		name:        name,
		level:       level,
		maxLineSize: maxLineSize,
	}
}

// Run reads r until end of stream, sending one unit per non-empty line to
// out. Line order is preserved. It returns nil at end of stream, the
// context error if ctx is cancelled, or the read error that ended the
// stream.
func (p *Pump) Run(ctx context.Context, r io.Reader, out chan<- envelope.Outbound) error {
	defer p.log.Debug("Pump stopped")

	reader := bufio.NewReaderSize(r, readBufferSize)
	lineCount := 0

	for {
		line, tooLong, readErr := p.readLine(reader)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var unit *envelope.Outbound

		switch {
		case tooLong:
			u := envelope.NewError(fmt.Errorf("%w: line exceeds %d bytes", errDecodeOutput, p.maxLineSize), p.name)
			unit = &u
		case len(line) > 0:
			unit = p.classify(line)
		}

		if unit != nil {
			lineCount++

			select {
			case out <- *unit:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if readErr != nil {
			if stderrors.Is(readErr, io.EOF) || stderrors.Is(readErr, io.ErrClosedPipe) || stderrors.Is(readErr, os.ErrClosed) {
				p.log.Debug("End of stream", "lines", lineCount)

				return nil
			}

			p.log.Debug("Read error", "error", readErr, "lines", lineCount)

			return fmt.Errorf("read %s: %w", p.name, readErr)
		}
	}
}

// readLine returns the next line with surrounding whitespace removed. Lines longer than
// maxLineSize are consumed and reported via tooLong with a nil line.
func (p *Pump) readLine(r *bufio.Reader) ([]byte, bool, error) {
	var line []byte

	tooLong := false

	for {
		fragment, err := r.ReadSlice('\n')

		if !tooLong {
			if len(line)+len(fragment) > p.maxLineSize+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, fragment...)
			}
		}

		if stderrors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		return bytes.TrimSpace(line), tooLong, err
	}
}

// classify turns one trimmed line into a unit.
func (p *Pump) classify(line []byte) *envelope.Outbound {
	if !utf8.Valid(line) {
		unit := envelope.NewError(fmt.Errorf("%w: invalid UTF-8", errDecodeOutput), p.name)

		return &unit
	}

	if IsProtocolLine(line) {
		unit := envelope.Passthrough(line)

		return &unit
	}

	unit := envelope.NewLog(p.level, string(line))

	return &unit
}

// IsProtocolLine reports whether line is a JSON object carrying a type field.
func IsProtocolLine(line []byte) bool {
	if len(line) < 2 || line[0] != '{' || line[len(line)-1] != '}' {
		return false
	}

	return gjson.ValidBytes(line) && gjson.GetBytes(line, "type").Exists()
}
