// Package chunk reassembles chunked envelopes.
//
// A Reassembler buffers ChunkParts by chunkId until the declared number of
// parts has arrived, then orders them by index and decodes the combined
// payload. Buffers are dropped as soon as they complete, whether or not the
// payload decodes. Incomplete buffers live for the session unless an idle
// timeout is configured and Expire is called periodically.
package chunk
