package sinks

import (
	"sync"

	"ssw-proc-logging/pkg/severity"
	"ssw-proc-logging/pkg/types"
)

// CapturedRecord is one entry collected by a ListSink.
type CapturedRecord struct {
	Sev      severity.Severity
	Body     string
	Source   string
	Keywords []string
	SeqNum   int64
	File     string
	Line     int
}

// ListSink collects records in memory. Used by the pipeline's own tests and
// exported for embedders' tests.
type ListSink struct {
	name string

	mutex    sync.Mutex
	records  []CapturedRecord
	flushes  int
	shutdown bool

	// refCounted controla o que o sink declara ao hub; um ListSink
	// não-cooperativo serve para testar o fallback de heap.
	refCounted bool
}

// NewListSink creates a collecting sink that supports ref-counted release.
func NewListSink(name string) *ListSink {
	if name == "" {
		name = "list"
	}
	return &ListSink{name: name, refCounted: true}
}

// NewRetainingListSink creates a collecting sink that declares no support
// for ref-counted release, forcing heap-born records for its group.
func NewRetainingListSink(name string) *ListSink {
	s := NewListSink(name)
	s.refCounted = false
	return s
}

func (s *ListSink) Name() string { return s.name }

func (s *ListSink) SupportsRefCountedRelease() bool { return s.refCounted }

func (s *ListSink) HandleMessage(m *types.LogMessage) {
	if m == nil {
		return
	}
	defer m.Release()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.shutdown {
		return
	}
	s.records = append(s.records, CapturedRecord{
		Sev:      m.Sev(),
		Body:     m.Body(),
		Source:   m.SourceName(),
		Keywords: append([]string(nil), m.Keywords()...),
		SeqNum:   m.SeqNum(),
		File:     m.File(),
		Line:     m.Line(),
	})
}

func (s *ListSink) HandleMessages(batch []*types.LogMessage) {
	for _, m := range batch {
		s.HandleMessage(m)
	}
}

func (s *ListSink) Flush() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.flushes++
	return nil
}

func (s *ListSink) Shutdown() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.shutdown = true
}

// Records returns a snapshot of everything captured so far.
func (s *ListSink) Records() []CapturedRecord {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]CapturedRecord(nil), s.records...)
}

// Bodies returns just the record bodies, in capture order.
func (s *ListSink) Bodies() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Body
	}
	return out
}

// Len returns the number of captured records.
func (s *ListSink) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.records)
}

// Flushes returns how many times Flush was called.
func (s *ListSink) Flushes() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.flushes
}

// Clear descarta os registros coletados
func (s *ListSink) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.records = nil
}
