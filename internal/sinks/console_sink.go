// Package sinks provides the bundled direct sinks: a console sink writing
// the shared line format to an io.Writer, and an in-memory list sink used
// by tests.
package sinks

import (
	"io"
	"os"
	"sync"

	"ssw-proc-logging/pkg/linefmt"
	"ssw-proc-logging/pkg/severity"
	"ssw-proc-logging/pkg/types"
)

// ConsoleSink writes records synchronously to an io.Writer, one formatted
// line each, serialized by a mutex. The default writer is stderr.
type ConsoleSink struct {
	name    string
	gate    severity.LogGate
	options linefmt.Options

	mutex    sync.Mutex
	writer   io.Writer
	shutdown bool
}

// NewConsoleSink creates a console sink. A nil writer means stderr; a zero
// gate means admit everything.
func NewConsoleSink(name string, gate severity.LogGate, w io.Writer) *ConsoleSink {
	if name == "" {
		name = "console"
	}
	if w == nil {
		w = os.Stderr
	}
	if gate.Mask == severity.MaskNone {
		gate = severity.GateAll
	}
	return &ConsoleSink{
		name:    name,
		gate:    gate,
		options: linefmt.DefaultOptions(),
		writer:  w,
	}
}

func (s *ConsoleSink) Name() string { return s.name }

func (s *ConsoleSink) SupportsRefCountedRelease() bool { return true }

func (s *ConsoleSink) HandleMessage(m *types.LogMessage) {
	if m == nil {
		return
	}
	defer m.Release()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.shutdown || !s.gate.Allows(m.Sev()) {
		return
	}
	io.WriteString(s.writer, linefmt.Format(m, s.options))
}

func (s *ConsoleSink) HandleMessages(batch []*types.LogMessage) {
	for _, m := range batch {
		s.HandleMessage(m)
	}
}

func (s *ConsoleSink) Flush() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if f, ok := s.writer.(interface{ Sync() error }); ok {
		return f.Sync()
	}
	return nil
}

func (s *ConsoleSink) Shutdown() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.shutdown = true
}
