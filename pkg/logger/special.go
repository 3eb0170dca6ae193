package logger

import (
	"errors"
	"runtime"
	"sync"
)

// nullEmitter is never enabled; every emit is a no-op.
type nullEmitter struct{}

// Null is the shared disabled emitter.
var Null Emitter = nullEmitter{}

func (nullEmitter) IsEnabled() bool                     { return false }
func (nullEmitter) Emit(string)                         {}
func (nullEmitter) Emitf(string, ...interface{})        {}
func (nullEmitter) EmitWithSkip(int, string)            {}

// ThrowingEmitter turns "this should never happen" guards into failures:
// every emit panics with an error built by the factory.
type ThrowingEmitter struct {
	// Factory builds the panic value from the body. Defaults to
	// errors.New.
	Factory func(body string) error
}

func (e *ThrowingEmitter) IsEnabled() bool { return true }

func (e *ThrowingEmitter) Emit(body string) {
	factory := e.Factory
	if factory == nil {
		factory = errors.New
	}
	panic(factory(body))
}

func (e *ThrowingEmitter) Emitf(format string, args ...interface{}) {
	e.Emit(safeFormat(format, args...))
}

func (e *ThrowingEmitter) EmitWithSkip(_ int, body string) {
	e.Emit(body)
}

// ListEntry is one captured emit.
type ListEntry struct {
	Body string
	File string
	Line int
}

// ListEmitter appends every emit to an in-memory list, optionally under a
// caller-supplied mutex. Used by tests.
type ListEmitter struct {
	// Mutex, when non-nil, guards Entries.
	Mutex *sync.Mutex

	// RecordCallSite captures file/line of the caller of each emit.
	RecordCallSite bool

	Entries []ListEntry
}

func (e *ListEmitter) IsEnabled() bool { return true }

func (e *ListEmitter) Emit(body string) { e.append(body, 1) }

func (e *ListEmitter) Emitf(format string, args ...interface{}) {
	e.append(safeFormat(format, args...), 1)
}

func (e *ListEmitter) EmitWithSkip(extraFrames int, body string) {
	e.append(body, 1+extraFrames)
}

func (e *ListEmitter) append(body string, depth int) {
	entry := ListEntry{Body: body}
	if e.RecordCallSite {
		if _, file, line, ok := runtime.Caller(depth + 1); ok {
			entry.File, entry.Line = file, line
		}
	}
	if e.Mutex != nil {
		e.Mutex.Lock()
		defer e.Mutex.Unlock()
	}
	e.Entries = append(e.Entries, entry)
}
