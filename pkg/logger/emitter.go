package logger

import (
	"fmt"
	"runtime"
	"strings"

	"ssw-proc-logging/internal/metrics"
	"ssw-proc-logging/pkg/severity"
	"ssw-proc-logging/pkg/types"
)

// Emitter is the per-severity emit surface handed to call sites.
type Emitter interface {
	// IsEnabled reports whether a record of this emitter's severity would
	// currently pass the instance gate and the observed group gate.
	IsEnabled() bool

	// Emit produces a record with the given body.
	Emit(body string)

	// Emitf formats and emits. When the emitter is disabled the arguments
	// are never formatted. A formatting failure never escapes: the record
	// is emitted with a diagnostic body instead.
	Emitf(format string, args ...interface{})

	// EmitWithSkip behaves like Emit but attributes the call site the
	// given number of frames further up. For use by wrapping emitters.
	EmitWithSkip(extraFrames int, body string)
}

// sevEmitter is the real emitter: one per logger per severity.
type sevEmitter struct {
	logger     *Logger
	sev        severity.Severity
	skipFrames int
}

func (e *sevEmitter) IsEnabled() bool {
	l := e.logger
	if l.dist.IsShutdown() {
		return false
	}
	if !l.instanceGate.Allows(e.sev) {
		return false
	}
	l.observer.Update()
	return l.observer.Config().Allows(e.sev)
}

func (e *sevEmitter) Emit(body string) {
	e.emit(body, 1)
}

func (e *sevEmitter) Emitf(format string, args ...interface{}) {
	if !e.IsEnabled() {
		metrics.RecordsGatedTotal.Inc()
		return
	}
	e.emit(safeFormat(format, args...), 1)
}

func (e *sevEmitter) EmitWithSkip(extraFrames int, body string) {
	e.emit(body, 1+extraFrames)
}

// emit allocates, populates and distributes one record. depth counts the
// wrapper frames between the client call site and this function.
func (e *sevEmitter) emit(body string, depth int) {
	if !e.IsEnabled() {
		metrics.RecordsGatedTotal.Inc()
		return
	}
	l := e.logger

	var m *types.LogMessage
	if l.usePool {
		m = l.dist.Allocate(l.src)
	} else {
		m = types.NewMessage()
	}
	m.Setup(l.src, e.sev, body)
	if l.threadName != "" {
		m.SetThreadName(l.threadName)
	}
	if l.observer.Config().RecordCallSite {
		// skip 0 = esta linha, 1 = Emit/Emitf, depth+1 = cliente
		if _, file, line, ok := runtime.Caller(depth + 1 + e.skipFrames); ok {
			m.SetCallSite(file, line)
		}
	}
	l.dist.Distribute(m)
}

// safeFormat shields the emit path from panicking Stringer/Formatter
// implementations in the arguments.
func safeFormat(format string, args ...interface{}) (body string) {
	defer func() {
		if r := recover(); r != nil {
			body = fmt.Sprintf("log formatting failed for %q: %v", format, r)
		}
	}()
	body = fmt.Sprintf(format, args...)
	// fmt recupera panics de String/Error/Format e embute "%!v(PANIC=...)";
	// nesse caso o corpo vira o diagnóstico
	if strings.Contains(body, "(PANIC=") {
		return fmt.Sprintf("log formatting failed for %q: %s", format, body)
	}
	return body
}
