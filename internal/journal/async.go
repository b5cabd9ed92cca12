package journal

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

var errClosed = errors.New("journal closed")

// Async decouples journal writes from the execution path with a bounded
// buffer. A full buffer drops the record with a warning instead of blocking
// trade execution.
type Async struct {
	inner Journal
	log   zerolog.Logger
	ch    chan Record
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewAsync wraps inner with a buffered background writer.
func NewAsync(inner Journal, buffer int, log zerolog.Logger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{inner: inner, log: log, ch: make(chan Record, buffer)}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer a.wg.Done()
	for rec := range a.ch {
		if err := a.inner.Append(rec); err != nil {
			a.log.Error().Err(err).Str("id", rec.ID).Msg("journal append failed")
		}
	}
}

// Append enqueues the record without blocking the caller.
func (a *Async) Append(rec Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errClosed
	}
	select {
	case a.ch <- rec:
	default:
		a.log.Warn().Str("id", rec.ID).Msg("journal buffer full, dropping record")
	}
	return nil
}

// Close drains buffered records and closes the underlying journal.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	a.wg.Wait()
	return a.inner.Close()
}
