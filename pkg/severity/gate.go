package severity

import "fmt"

// LogGate is a severity admission gate. It is always built in level mode,
// so NewLogGate(Info) admits Fatal through Info.
type LogGate struct {
	Mask Mask
}

// NewLogGate builds a gate admitting the given severity and everything more
// severe than it.
func NewLogGate(s Severity) LogGate {
	return LogGate{Mask: NewMask(s, MaskLevel)}
}

// GateNone admits nothing; GateAll admits everything.
var (
	GateNone = LogGate{Mask: MaskNone}
	GateAll  = LogGate{Mask: MaskAll}
)

// Allows reports whether a record of the given severity passes the gate.
func (g LogGate) Allows(s Severity) bool {
	return g.Mask.Allows(s)
}

// Or returns a gate at least as permissive as either input.
func (g LogGate) Or(other LogGate) LogGate {
	return LogGate{Mask: g.Mask.Or(other.Mask)}
}

// And returns a gate restricted to what both inputs admit.
func (g LogGate) And(other LogGate) LogGate {
	return LogGate{Mask: g.Mask.And(other.Mask)}
}

// String renders the gate's mask in the canonical textual form.
func (g LogGate) String() string { return g.Mask.String() }

// ParseLogGate parses a gate from the mask grammar. A bare severity name is
// promoted to level mode, matching how gates are always constructed.
func ParseLogGate(text string) (LogGate, error) {
	if s, err := ParseSeverity(normalizeName(text)); err == nil {
		return NewLogGate(s), nil
	}
	m, err := ParseMask(text)
	if err != nil {
		return GateNone, fmt.Errorf("invalid gate: %w", err)
	}
	return LogGate{Mask: m}, nil
}
