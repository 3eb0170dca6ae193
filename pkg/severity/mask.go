package severity

import (
	"fmt"
	"strconv"
	"strings"
)

// MaskMode selects how a Mask is built from a single severity.
type MaskMode int

const (
	// MaskBit sets exactly the one bit belonging to the severity.
	MaskBit MaskMode = iota
	// MaskLevel sets the severity's bit and every more-severe bit below it,
	// so MaskLevel of Info admits Fatal through Info.
	MaskLevel
)

// Mask is a signed 32-bit set of severity bits (Fatal = bit 0 .. Trace =
// bit 6). The zero value admits nothing; MaskAll has every bit set.
type Mask int32

const (
	MaskNone Mask = 0
	MaskAll  Mask = -1
)

// NewMask builds a mask from one severity in the given mode. None yields an
// empty mask and All a full one regardless of mode.
func NewMask(s Severity, mode MaskMode) Mask {
	switch {
	case s == None:
		return MaskNone
	case s == All:
		return MaskAll
	case !s.IsActive():
		return MaskNone
	}
	if mode == MaskBit {
		return Mask(1) << uint(s-1)
	}
	// level: bits 0..s-1 inclusive
	return (Mask(1) << uint(s)) - 1
}

// Or returns the union of both masks.
func (m Mask) Or(other Mask) Mask { return m | other }

// And returns the intersection of both masks.
func (m Mask) And(other Mask) Mask { return m & other }

// Not returns the complement of the mask.
func (m Mask) Not() Mask { return ^m }

// Allows reports whether the severity's bit is contained in the mask. None
// is never allowed; All is allowed only by a full mask.
func (m Mask) Allows(s Severity) bool {
	bit := NewMask(s, MaskBit)
	return bit != 0 && m&bit == bit
}

// String renders the mask in the canonical textual form "<Name>[$hh]" where
// Name is one of None, All, a severity name (single-bit mask), a severity
// name with a '+' suffix (level mask), or Custom.
func (m Mask) String() string {
	return fmt.Sprintf("%s[$%s]", m.name(), m.hex())
}

func (m Mask) hex() string {
	return fmt.Sprintf("%02x", uint32(m))
}

func (m Mask) name() string {
	switch m {
	case MaskNone:
		return "None"
	case MaskAll:
		return "All"
	}
	for _, s := range Severities() {
		if m == NewMask(s, MaskBit) {
			return s.String()
		}
	}
	// Fatal+ é idêntico ao bit de Fatal e já foi resolvido acima, então a
	// forma "<sev>+" só existe de Error+ até Trace+.
	for _, s := range Severities()[1:] {
		if m == NewMask(s, MaskLevel) {
			return s.String() + "+"
		}
	}
	return "Custom"
}

// ParseMask parses the textual form produced by String. The grammar is
// "<Name>" or "<Name>[$hh]"; Custom requires the hex part. Unrecognized
// names or malformed hex fail the parse.
func ParseMask(text string) (Mask, error) {
	name := normalizeName(text)
	hexPart := ""
	hasHex := false
	if i := strings.IndexByte(name, '['); i >= 0 {
		rest := name[i+1:]
		name = normalizeName(name[:i])
		if !strings.HasPrefix(rest, "$") || !strings.HasSuffix(rest, "]") {
			return MaskNone, fmt.Errorf("malformed mask suffix in %q", text)
		}
		hexPart = rest[1 : len(rest)-1]
		hasHex = true
	}

	var hexValue Mask
	if hasHex {
		v, err := strconv.ParseUint(hexPart, 16, 32)
		if err != nil {
			return MaskNone, fmt.Errorf("malformed mask hex %q: %w", hexPart, err)
		}
		hexValue = Mask(uint32(v))
	}

	switch {
	case name == "None":
		return MaskNone, nil
	case name == "All":
		return MaskAll, nil
	case name == "Custom":
		if !hasHex {
			return MaskNone, fmt.Errorf("mask %q: Custom requires [$hh]", text)
		}
		return hexValue, nil
	}

	if plus := strings.HasSuffix(name, "+"); plus {
		s, err := ParseSeverity(name[:len(name)-1])
		if err != nil || s == Fatal || !s.IsActive() {
			// "Fatal+" fica fora da tabela: nada é mais severo que Fatal
			return MaskNone, fmt.Errorf("unknown mask name: %q", text)
		}
		return NewMask(s, MaskLevel), nil
	}

	s, err := ParseSeverity(name)
	if err != nil || !s.IsActive() {
		return MaskNone, fmt.Errorf("unknown mask name: %q", text)
	}
	return NewMask(s, MaskBit), nil
}
