// Package logconfig carries the per-logger-name configuration values and the
// sequenced publisher/observer pair that lets thousands of emit sites re-read
// the current effective configuration at the cost of one atomic load.
package logconfig

import (
	"ssw-proc-logging/pkg/severity"
)

// LoggerConfig is the immutable per-name configuration value observed by
// loggers and applied by sinks.
type LoggerConfig struct {
	// GroupName identifies the distribution group the name is bound to.
	GroupName string `yaml:"group_name"`

	// Gate decides which severities pass this boundary.
	Gate severity.LogGate `yaml:"-"`

	// RecordCallSite requests file/line capture at emit time.
	RecordCallSite bool `yaml:"record_call_site"`

	// SupportsRefCountedRelease marks every consumer of this configuration
	// as safe for pooled, reference-counted record reuse.
	SupportsRefCountedRelease bool `yaml:"supports_refcounted_release"`
}

// Canned configuration values.
var (
	// ConfigNone passes nothing.
	ConfigNone = LoggerConfig{Gate: severity.GateNone}

	// ConfigAllNoCallSite passes everything, without call-site capture.
	ConfigAllNoCallSite = LoggerConfig{Gate: severity.GateAll, SupportsRefCountedRelease: true}

	// ConfigAllWithCallSite passes everything and records call sites.
	ConfigAllWithCallSite = LoggerConfig{Gate: severity.GateAll, RecordCallSite: true, SupportsRefCountedRelease: true}
)

// Or combines two configurations into one at least as permissive as either.
func (c LoggerConfig) Or(other LoggerConfig) LoggerConfig {
	out := c
	if out.GroupName == "" {
		out.GroupName = other.GroupName
	}
	out.Gate = c.Gate.Or(other.Gate)
	out.RecordCallSite = c.RecordCallSite || other.RecordCallSite
	out.SupportsRefCountedRelease = c.SupportsRefCountedRelease || other.SupportsRefCountedRelease
	return out
}

// And combines two configurations into one restricted to both.
func (c LoggerConfig) And(other LoggerConfig) LoggerConfig {
	out := c
	if out.GroupName == "" {
		out.GroupName = other.GroupName
	}
	out.Gate = c.Gate.And(other.Gate)
	out.RecordCallSite = c.RecordCallSite && other.RecordCallSite
	out.SupportsRefCountedRelease = c.SupportsRefCountedRelease && other.SupportsRefCountedRelease
	return out
}

// Allows reports whether the configuration's gate admits the severity.
func (c LoggerConfig) Allows(s severity.Severity) bool {
	return c.Gate.Allows(s)
}
