// Package protocol implements the bridge's control plane.
//
// The Router consumes envelopes arriving on the parent's control channel:
// chunk frames are first resolved by the reassembler, system commands are
// dispatched to registered handlers, and everything else is forwarded to
// the child's stdin when a child is running. The Emitter is the single
// writer of the parent-facing channel; every worker hands it units instead
// of writing directly, so each stream stays ordered while streams interleave
// freely.
//
// Example usage:
//
//	emitter := protocol.NewEmitter(log, os.Stdout, envelope.NewEncoder(0), 10*time.Millisecond)
//	go emitter.Run()
//
//	router := protocol.NewRouter(log, supervisor, chunk.NewReassembler(log, 0), emitter)
//	router.RegisterHandler("ping", func(ctx context.Context, msg *envelope.Message) error {
//		emitter.Emit(envelope.NewStatus(map[string]any{"pong": true}))
//		return nil
//	})
//	err := router.ReadInput(ctx, os.Stdin)
package protocol
