package severity

import (
	"fmt"
	"testing"
)

func TestGateLevelOrdering(t *testing.T) {
	// Um gate construído em level mode admite a severidade escolhida e
	// todas as mais severas, nada além disso.
	for _, gateSev := range Severities() {
		gate := NewLogGate(gateSev)
		for _, s := range Severities() {
			want := s <= gateSev
			if got := gate.Allows(s); got != want {
				t.Errorf("NewLogGate(%v).Allows(%v) = %v, want %v", gateSev, s, got, want)
			}
		}
		if gate.Allows(None) {
			t.Errorf("NewLogGate(%v) must not allow None", gateSev)
		}
	}
}

func TestGateSentinels(t *testing.T) {
	for _, s := range Severities() {
		if GateNone.Allows(s) {
			t.Errorf("GateNone.Allows(%v) = true", s)
		}
		if !GateAll.Allows(s) {
			t.Errorf("GateAll.Allows(%v) = false", s)
		}
	}
}

func TestMaskTextualRoundTrip(t *testing.T) {
	var values []Mask
	values = append(values, MaskNone, MaskAll)
	for _, s := range Severities() {
		values = append(values, NewMask(s, MaskBit))
	}
	// "Fatal+" não existe; level masks começam em Error+
	for _, s := range Severities()[1:] {
		values = append(values, NewMask(s, MaskLevel))
	}
	values = append(values, Mask(0x2a))

	for _, v := range values {
		text := v.String()
		got, err := ParseMask(text)
		if err != nil {
			t.Errorf("ParseMask(%q) failed: %v", text, err)
			continue
		}
		if got != v {
			t.Errorf("round trip %q: got %v, want %v", text, got, v)
		}
	}
}

func TestMaskFormatPrefixes(t *testing.T) {
	cases := []struct {
		mask   Mask
		prefix string
	}{
		{MaskNone, "None["},
		{MaskAll, "All["},
		{NewMask(Fatal, MaskBit), "Fatal["},
		{NewMask(Fatal, MaskLevel), "Fatal["}, // idêntico ao bit de Fatal
		{NewMask(Error, MaskLevel), "Error+["},
		{NewMask(Trace, MaskLevel), "Trace+["},
		{Mask(0x2a), "Custom["},
	}
	for _, c := range cases {
		text := c.mask.String()
		if len(text) < len(c.prefix) || text[:len(c.prefix)] != c.prefix {
			t.Errorf("format of %#x = %q, want prefix %q", uint32(c.mask), text, c.prefix)
		}
	}
}

func TestParseCustomEightBit(t *testing.T) {
	for v := 0; v < 256; v++ {
		text := fmt.Sprintf("Custom[$%02x]", v)
		got, err := ParseMask(text)
		if err != nil {
			t.Fatalf("ParseMask(%q) failed: %v", text, err)
		}
		if got != Mask(v) {
			t.Errorf("ParseMask(%q) = %v, want %v", text, got, Mask(v))
		}
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	bad := []string{
		"Fatal+",        // nada acima de Fatal
		"Verbose",       // nome desconhecido
		"Custom",        // Custom sem hex
		"Custom[$zz]",   // hex inválido
		"Custom[$2a",    // suffix malformado
		"Info[2a]",      // falta o '$'
		"",              // vazio
	}
	for _, text := range bad {
		if _, err := ParseMask(text); err == nil {
			t.Errorf("ParseMask(%q) succeeded, want error", text)
		}
	}
}

func TestMaskAlgebra(t *testing.T) {
	a := NewMask(Error, MaskLevel)
	b := NewMask(Info, MaskBit)
	if got := a.Or(b); !got.Allows(Info) || !got.Allows(Fatal) {
		t.Errorf("Or result %v missing expected bits", got)
	}
	if got := a.And(b); got != MaskNone {
		t.Errorf("And of disjoint masks = %v, want MaskNone", got)
	}
	if got := MaskAll.Not(); got != MaskNone {
		t.Errorf("Not(MaskAll) = %v, want MaskNone", got)
	}
}

func TestSeverityCodes(t *testing.T) {
	want := map[Severity]string{
		Fatal: "Ftl", Error: "Err", Warning: "Wrn", Signif: "Sig",
		Info: "Inf", Debug: "Dbg", Trace: "Trc",
	}
	for s, code := range want {
		if got := s.Code3(); got != code {
			t.Errorf("%v.Code3() = %q, want %q", s, got, code)
		}
	}
}
