package audit

import (
	"errors"
	"fmt"
	"sync"
)

// Writer persists audit events.
//
// Implementations MUST:
//   - Return an error if the write fails (audit fails = operation fails)
//   - Set the hash chain (HashPrev, Hash) before persisting
//   - Never write sensitive data
type Writer interface {
	// Write validates, chains and persists one event.
	Write(event *Event) error

	// Close flushes any pending writes and closes the writer.
	Close() error

	// LastHash returns the hash of the last written event, or GenesisHash.
	LastHash() string
}

// NopWriter discards all events. Used when audit logging is disabled.
type NopWriter struct{}

var _ Writer = NopWriter{}

func (NopWriter) Write(*Event) error { return nil }
func (NopWriter) Close() error       { return nil }
func (NopWriter) LastHash() string   { return GenesisHash }

// MultiWriter fans events out to several writers. If any writer fails,
// the write fails.
type MultiWriter struct {
	writers []Writer
}

var _ Writer = (*MultiWriter)(nil)

// NewMultiWriter creates a writer that writes to all provided writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write passes a copy of event to each writer so that every chain is
// computed independently.
func (m *MultiWriter) Write(event *Event) error {
	for _, w := range m.writers {
		e := *event
		if err := w.Write(&e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiWriter) LastHash() string {
	if len(m.writers) > 0 {
		return m.writers[0].LastHash()
	}
	return GenesisHash
}

// MemoryWriter keeps a hash-chained event log in memory.
type MemoryWriter struct {
	mu       sync.Mutex
	events   []Event
	lastHash string
	closed   bool
}

var _ Writer = (*MemoryWriter)(nil)

// NewMemoryWriter creates an empty in-memory log.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{lastHash: GenesisHash}
}

func (m *MemoryWriter) Write(event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("audit writer closed")
	}
	if err := chain(event, m.lastHash); err != nil {
		return err
	}
	m.events = append(m.events, *event)
	m.lastHash = event.Hash
	return nil
}

func (m *MemoryWriter) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryWriter) LastHash() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHash
}

// Events returns a copy of the events written so far.
func (m *MemoryWriter) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
