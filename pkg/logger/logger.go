// Package logger provides the source façade of the pipeline: named loggers
// that vend one tiny emitter per severity. An emitter's gate check costs one
// atomic load and an integer compare when nothing changed, so disabled emit
// sites stay near free.
package logger

import (
	"time"

	"ssw-proc-logging/pkg/logconfig"
	"ssw-proc-logging/pkg/severity"
	"ssw-proc-logging/pkg/types"
)

// Logger is the per-name emit façade. It holds a non-owning reference to
// the distributor; after the distributor shuts down every emit becomes a
// no-op.
type Logger struct {
	dist         types.Distributor
	src          *types.LoggerSourceInfo
	observer     *logconfig.Observer
	instanceGate severity.LogGate
	threadName   string
	usePool      bool

	emitters [severity.All + 1]*sevEmitter
}

// Option configures a Logger at construction.
type Option func(*Logger)

// WithInstanceGate restricts this logger instance below the group gate.
func WithInstanceGate(g severity.LogGate) Option {
	return func(l *Logger) { l.instanceGate = g }
}

// WithThreadName stamps every record from this logger with a thread name.
func WithThreadName(name string) Option {
	return func(l *Logger) { l.threadName = name }
}

// WithoutPooling forces heap-born records even for release-safe groups.
func WithoutPooling() Option {
	return func(l *Logger) { l.usePool = false }
}

// New interns the name with the distributor and builds the per-severity
// emitters.
func New(dist types.Distributor, name string, opts ...Option) *Logger {
	l := &Logger{
		dist:         dist,
		src:          dist.SourceInfo(name),
		instanceGate: severity.GateAll,
		usePool:      true,
	}
	l.observer = logconfig.NewObserver(l.src.ConfigSource)
	l.observer.Update()
	for _, opt := range opts {
		opt(l)
	}
	for _, s := range severity.Severities() {
		l.emitters[s] = &sevEmitter{logger: l, sev: s}
	}
	return l
}

// Name returns the interned logger name.
func (l *Logger) Name() string { return l.src.Name }

// SourceID returns the interned logger id.
func (l *Logger) SourceID() int { return l.src.ID }

// Emitter returns the emitter for a severity; the null emitter for the
// sentinels.
func (l *Logger) Emitter(s severity.Severity) Emitter {
	if s.IsActive() {
		return l.emitters[s]
	}
	return Null
}

// Per-severity accessors, the usual call-site spelling:
// log.Info().Emitf("loaded %d entries", n)

func (l *Logger) Fatal() Emitter   { return l.emitters[severity.Fatal] }
func (l *Logger) Error() Emitter   { return l.emitters[severity.Error] }
func (l *Logger) Warning() Emitter { return l.emitters[severity.Warning] }
func (l *Logger) Signif() Emitter  { return l.emitters[severity.Signif] }
func (l *Logger) Info() Emitter    { return l.emitters[severity.Info] }
func (l *Logger) Debug() Emitter   { return l.emitters[severity.Debug] }
func (l *Logger) Trace() Emitter   { return l.emitters[severity.Trace] }

// SetInstanceGate replaces the instance gate. Intended for configuration
// time; concurrent emitters observe either gate.
func (l *Logger) SetInstanceGate(g severity.LogGate) { l.instanceGate = g }

// WaitForCompletion blocks until everything this logger emitted has been
// handed to its sinks, or the timeout elapses.
func (l *Logger) WaitForCompletion(timeout time.Duration) bool {
	return l.dist.WaitForCompletion(l.src.ID, timeout)
}
