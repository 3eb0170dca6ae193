// Package types defines the core data structures and interfaces shared by
// the logging pipeline.
//
// This package provides:
//   - LogMessage: the record entity that flows from emitters through the
//     distribution hub into the sinks, with an intrusive reference count
//     that supports pooled reuse
//   - LoggerSourceInfo: the interned per-logger-name identity
//   - Interface definitions for pluggable components (Sink, Distributor)
//   - Statistics structures published by the hub, queue adapters and sinks
//
// The types here are designed for a high-throughput emit path: a record is
// obtained (from a pool when the receiving group supports it), populated
// once, stamped by the hub, fanned out to N sinks, and returned to its pool
// when the last sink releases it.
package types

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"ssw-proc-logging/pkg/logconfig"
	"ssw-proc-logging/pkg/severity"
)

// Reserved logger source ids.
const (
	// InvalidSourceID marks a source that was never interned.
	InvalidSourceID = -1
	// InternalSourceID marks records produced by the pipeline itself
	// (drop summaries, recovery notices).
	InternalSourceID = -2
)

// LoggerSourceInfo is the interned, process-wide identity of one logger
// name. Identity (name <-> id) is stable for the life of the process.
type LoggerSourceInfo struct {
	ID           int
	Name         string
	ConfigSource *logconfig.Publisher
}

// ThreadInfo captures the identity of the goroutine that emitted a record.
type ThreadInfo struct {
	GoroutineID int64
	OSThreadID  int
	Name        string
}

// processStart ancora o relógio monotônico dos registros
var processStart = time.Now()

// AssertionHandler is invoked on logic violations (mutation of an already
// emitted record). The violation is surfaced and the mutation is dropped;
// the surrounding pipeline keeps working.
var AssertionHandler = func(operation string) {
	logrus.StandardLogger().WithField("operation", operation).
		Error("logic violation: mutation of an emitted log message")
}

// Recycler receives a fully released pool-born record.
type Recycler interface {
	Recycle(m *LogMessage)
}

// LogMessage is a single log record.
//
// Lifecycle: obtained (pool or heap) in reset state with one reference,
// populated via Setup and the optional mutators, stamped by the hub
// (NoteEmitted), handed to the sinks of its group, and released once per
// sink. The last release of a pool-born record resets it and returns it to
// its pool. Every mutator asserts the record was not emitted yet.
type LogMessage struct {
	source   *LoggerSourceInfo
	sev      severity.Severity
	body     string
	data     []byte
	keywords []string
	file     string
	line     int
	thread   ThreadInfo

	emitted     bool
	emittedQPC  time.Duration
	emittedTime time.Time
	seqNum      int64

	refCount int32 // atomic
	recycler Recycler
}

// NewMessage allocates a heap-born record with one reference.
func NewMessage() *LogMessage {
	return &LogMessage{refCount: 1}
}

// NewPooledMessage allocates a record owned by the given recycler. Used by
// the record pool only.
func NewPooledMessage(r Recycler) *LogMessage {
	return &LogMessage{refCount: 1, recycler: r}
}

// Setup fills the identifying fields of the record and captures the calling
// goroutine's identity. It must happen before the record is emitted.
func (m *LogMessage) Setup(source *LoggerSourceInfo, sev severity.Severity, body string) *LogMessage {
	if !m.assertNotEmitted("Setup") {
		return m
	}
	m.source = source
	m.sev = sev
	m.body = body
	m.thread = CaptureThreadInfo("")
	return m
}

// SetCallSite records the client call site. Performed by the emitter only
// when the observed configuration requests it.
func (m *LogMessage) SetCallSite(file string, line int) {
	if !m.assertNotEmitted("SetCallSite") {
		return
	}
	m.file = file
	m.line = line
}

// SetData attaches an optional binary payload.
func (m *LogMessage) SetData(data []byte) {
	if !m.assertNotEmitted("SetData") {
		return
	}
	m.data = data
}

// AddKeywords appends keyword strings used for routing and display.
func (m *LogMessage) AddKeywords(kw ...string) {
	if !m.assertNotEmitted("AddKeywords") {
		return
	}
	m.keywords = append(m.keywords, kw...)
}

// SetThreadName overrides the captured thread name.
func (m *LogMessage) SetThreadName(name string) {
	if !m.assertNotEmitted("SetThreadName") {
		return
	}
	m.thread.Name = name
}

// SetBody replaces the message body.
func (m *LogMessage) SetBody(body string) {
	if !m.assertNotEmitted("SetBody") {
		return
	}
	m.body = body
}

// NoteEmitted stamps the record with its distribution sequence number and
// timestamps. Only the distribution hub calls this; it is the transition
// after which the record is immutable.
func (m *LogMessage) NoteEmitted(seqNum int64) {
	if !m.assertNotEmitted("NoteEmitted") {
		return
	}
	m.seqNum = seqNum
	m.emitted = true
	m.emittedTime = time.Now()
	m.emittedQPC = time.Since(processStart)
}

// Accessors. All read-only; safe after emission.

func (m *LogMessage) Source() *LoggerSourceInfo { return m.source }
func (m *LogMessage) Sev() severity.Severity    { return m.sev }
func (m *LogMessage) Body() string              { return m.body }
func (m *LogMessage) Data() []byte              { return m.data }
func (m *LogMessage) Keywords() []string        { return m.keywords }
func (m *LogMessage) File() string              { return m.file }
func (m *LogMessage) Line() int                 { return m.line }
func (m *LogMessage) Thread() ThreadInfo        { return m.thread }
func (m *LogMessage) Emitted() bool             { return m.emitted }
func (m *LogMessage) EmittedQPC() time.Duration { return m.emittedQPC }
func (m *LogMessage) EmittedTime() time.Time    { return m.emittedTime }
func (m *LogMessage) SeqNum() int64             { return m.seqNum }

// SourceName returns the logger name, or an empty string for an anonymous
// record.
func (m *LogMessage) SourceName() string {
	if m.source == nil {
		return ""
	}
	return m.source.Name
}

// AddReference adds n references to the record. The hub uses this to give
// each sink of the group its own reference before fan-out.
func (m *LogMessage) AddReference(n int32) {
	atomic.AddInt32(&m.refCount, n)
}

// Release drops one reference. The last release of a pool-born record hands
// it back to its recycler; a heap-born record is simply left to the GC.
// Returns the remaining reference count.
func (m *LogMessage) Release() int32 {
	remaining := atomic.AddInt32(&m.refCount, -1)
	if remaining < 0 {
		AssertionHandler("Release")
		return 0
	}
	if remaining == 0 && m.recycler != nil {
		m.recycler.Recycle(m)
	}
	return remaining
}

// RefCount returns the current reference count.
func (m *LogMessage) RefCount() int32 {
	return atomic.LoadInt32(&m.refCount)
}

// Reset returns the record to its freshly constructed state, keeping only
// its pool ownership. The reference count is re-armed to 1.
func (m *LogMessage) Reset() {
	recycler := m.recycler
	*m = LogMessage{}
	m.recycler = recycler
	m.refCount = 1
}

// Clone produces a standalone, heap-born copy with emitted=false and a zero
// sequence number, suitable for re-emission or retention by a sink.
func (m *LogMessage) Clone() *LogMessage {
	out := NewMessage()
	out.source = m.source
	out.sev = m.sev
	out.body = m.body
	if m.data != nil {
		out.data = append([]byte(nil), m.data...)
	}
	if m.keywords != nil {
		out.keywords = append([]string(nil), m.keywords...)
	}
	out.file = m.file
	out.line = m.line
	out.thread = m.thread
	return out
}

func (m *LogMessage) assertNotEmitted(operation string) bool {
	if m.emitted {
		AssertionHandler(operation)
		return false
	}
	return true
}

// CaptureThreadInfo captures the calling goroutine's runtime id and the OS
// thread id it is currently scheduled on.
func CaptureThreadInfo(name string) ThreadInfo {
	return ThreadInfo{
		GoroutineID: currentGoroutineID(),
		OSThreadID:  syscall.Gettid(),
		Name:        name,
	}
}

var goroutinePrefix = []byte("goroutine ")

// currentGoroutineID extrai o id da primeira linha de runtime.Stack
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(header, ' '); i > 0 {
		if id, err := strconv.ParseInt(string(header[:i]), 10, 64); err == nil {
			return id
		}
	}
	return 0
}
