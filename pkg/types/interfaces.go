package types

import "time"

// Sink consumes emitted log records. Each HandleMessage call transfers one
// reference to the sink; the sink must release it when done with the record
// (after formatting, after delivery, or on drop).
type Sink interface {
	// Name identifies the sink in diagnostics and metrics.
	Name() string

	// HandleMessage delivers a single record. Must not block producers
	// beyond the sink's own contract (queue adapters never block; direct
	// sinks may perform I/O inline).
	HandleMessage(m *LogMessage)

	// HandleMessages is the bulk delivery path. Semantically equivalent to
	// calling HandleMessage for each element in order.
	HandleMessages(batch []*LogMessage)

	// Flush forces buffered output down to durable/visible form.
	Flush() error

	// Shutdown flushes and releases the sink's resources. The sink must
	// ignore records handed to it after Shutdown.
	Shutdown()

	// SupportsRefCountedRelease reports whether the sink reliably releases
	// every record it is handed. Only groups made exclusively of such
	// sinks may be fed pool-born records.
	SupportsRefCountedRelease() bool
}

// Distributor is the hub-facing surface the logger façade depends on.
type Distributor interface {
	// SourceInfo interns the logger name, returning its stable identity.
	SourceInfo(name string) *LoggerSourceInfo

	// Allocate obtains a record for the source: pool-born when the
	// source's group is release-safe, heap-born otherwise.
	Allocate(source *LoggerSourceInfo) *LogMessage

	// Distribute stamps the record and fans it out to the sinks of the
	// source's group. Takes over the caller's reference.
	Distribute(m *LogMessage)

	// WaitForCompletion blocks until every record enqueued by the given
	// logger id has been handed to all of its sinks, or the timeout
	// elapses. Returns true when completion was reached.
	WaitForCompletion(loggerID int, timeout time.Duration) bool

	// IsShutdown reports whether the distributor stopped accepting
	// records.
	IsShutdown() bool
}
