package protocol

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/wagiedev/procbridge/internal/errors"
)

// maxControlLineSize is the maximum control-channel line size.
const maxControlLineSize = 1024 * 1024 // 1MB

// ReadInput reads control-channel lines from in and routes each one until
// end of input or until ctx is cancelled. Cancellation is checked between
// lines; a read that never returns blocks until in is closed.
//
// A line longer than maxControlLineSize is discarded and reported as an
// error message; reading continues with the next line.
func (r *Router) ReadInput(ctx context.Context, in io.Reader) error {
	defer r.log.Debug("Control input reader stopped")

	reader := bufio.NewReaderSize(in, 64*1024)
	lineCount := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, tooLong, readErr := readControlLine(reader, maxControlLineSize)

		switch {
		case tooLong:
			r.log.Warn("Discarding oversized control line", "limit", maxControlLineSize)
			r.reportError(&errors.ProtocolError{
				Op:  "control input",
				Err: fmt.Errorf("line exceeds %d bytes", maxControlLineSize),
			})
		case len(line) > 0:
			lineCount++
			r.HandleLine(ctx, line)
		}

		if readErr != nil {
			if stderrors.Is(readErr, io.EOF) || stderrors.Is(readErr, io.ErrClosedPipe) || stderrors.Is(readErr, os.ErrClosed) {
				r.log.Debug("Control input closed", "lines", lineCount)

				return nil
			}

			r.log.Error("Read error on control input", "error", readErr)
			err := fmt.Errorf("error processing input: %w", readErr)
			r.reportError(err)

			return err
		}
	}
}

// readControlLine returns the next line with surrounding whitespace removed.
// A line longer than limit is consumed to its newline and reported via
// tooLong with a nil line.
func readControlLine(r *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte

	tooLong := false

	for {
		fragment, err := r.ReadSlice('\n')

		if !tooLong {
			if len(line)+len(fragment) > limit+2 {
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
