package chunk

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wagiedev/procbridge/internal/envelope"
	"github.com/wagiedev/procbridge/internal/errors"
)

// maxPreallocParts caps the part slice capacity reserved up front. The
// declared total comes off the wire and is not trusted for allocation.
const maxPreallocParts = 64

// buffer collects the parts of one split message.
type buffer struct {
	parts       []*envelope.ChunkPart
	totalChunks int
	lastSeen    time.Time
}

// Reassembler rebuilds messages from chunk parts. It is safe for concurrent use.
type Reassembler struct {
	log         *slog.Logger
	idleTimeout time.Duration
	now         func() time.Time

	mu      sync.Mutex
	buffers map[string]*buffer
}

// NewReassembler creates a reassembler. An idleTimeout of zero keeps
// incomplete buffers until the session ends.
func NewReassembler(log *slog.Logger, idleTimeout time.Duration) *Reassembler {
	return &Reassembler{
		log:         log.With("component", "reassembler"),
		idleTimeout: idleTimeout,
		now:         time.Now,
		buffers:     make(map[string]*buffer, 4),
	}
}

// Observe records a chunk part. It returns the completed message once every
// declared part has arrived, or nil while parts are still outstanding.
//
// The totalChunks of the first part seen for a chunkId is trusted for the
// whole group. Completion removes the buffer even when the combined payload
// fails to decode; a later part with the same id starts a fresh buffer.
func (r *Reassembler) Observe(part *envelope.ChunkPart) (*envelope.Message, error) {
	if part.ChunkID == "" {
		return nil, &errors.ProtocolError{Err: errors.ErrMissingChunkID}
	}

	r.mu.Lock()

	buf, ok := r.buffers[part.ChunkID]
	if !ok {
		buf = &buffer{
			parts:       make([]*envelope.ChunkPart, 0, max(0, min(part.TotalChunks, maxPreallocParts))),
			totalChunks: part.TotalChunks,
		}
		r.buffers[part.ChunkID] = buf
	}

	buf.parts = append(buf.parts, part)
	buf.lastSeen = r.now()

	if len(buf.parts) < buf.totalChunks {
		r.mu.Unlock()
		r.log.Debug("Buffered chunk",
			"chunk_id", part.ChunkID,
			"chunk_index", part.ChunkIndex,
			"received", len(buf.parts),
			"total", buf.totalChunks,
		)

		return nil, nil
	}

	delete(r.buffers, part.ChunkID)
	r.mu.Unlock()

	return combine(part, buf.parts)
}

// combine orders parts by index and decodes the concatenated payload. The
// result carries the timestamp of the part that completed the group.
func combine(trigger *envelope.ChunkPart, parts []*envelope.ChunkPart) (*envelope.Message, error) {
	slices.SortStableFunc(parts, func(a, b *envelope.ChunkPart) int {
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	})

	var combined strings.Builder

	for _, p := range parts {
		combined.WriteString(p.Chunk)
	}

	var payload json.RawMessage

	if err := json.Unmarshal([]byte(combined.String()), &payload); err != nil {
		return nil, &errors.ProtocolError{
			Op:      "combine chunks " + trigger.ChunkID,
			RawData: trigger.ChunkID,
			Err:     fmt.Errorf("%w: %w", errors.ErrChunkCombine, err),
		}
	}

	return envelope.NewMessage(trigger.BaseType(), payload, trigger.Timestamp), nil
}

// Pending returns the number of incomplete chunk groups.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.buffers)
}

// Expire drops buffers that have not received a part within the idle
// timeout and returns one error per dropped chunkId. It does nothing when
// no idle timeout is configured.
func (r *Reassembler) Expire() []error {
	if r.idleTimeout <= 0 {
		return nil
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []error

	for id, buf := range r.buffers {
		if now.Sub(buf.lastSeen) < r.idleTimeout {
			continue
		}

		delete(r.buffers, id)

		r.log.Warn("Dropped idle chunk group",
			"chunk_id", id,
			"received", len(buf.parts),
			"total", buf.totalChunks,
		)

		expired = append(expired, &errors.ProtocolError{
			Op:      "reassemble chunk group",
			RawData: id,
			Err: fmt.Errorf("%w for chunk %s after %s (%d of %d parts)",
				errors.ErrReassemblyTimeout, id, r.idleTimeout, len(buf.parts), buf.totalChunks),
		})
	}

	return expired
}
