package session

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// notifySignals routes SIGINT and SIGTERM into Shutdown. Only the first
// signal is intercepted; after it the default handling is restored, so a
// second Ctrl-C terminates the bridge. The returned function stops delivery.
func (s *Session) notifySignals() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var once sync.Once

	release := func() { once.Do(func() { signal.Stop(sigCh) }) }
	done := make(chan struct{})

	go s.watchSignals(sigCh, release, done)

	return func() {
		release()
		close(done)
	}
}

// watchSignals waits for one signal, releases the handler and requests
// shutdown.
func (s *Session) watchSignals(sigCh <-chan os.Signal, release func(), done <-chan struct{}) {
	select {
	case sig := <-sigCh:
		s.log.Info("Received signal", "signal", sig.String())
		release()
		s.Shutdown()
	case <-done:
	}
}
