package linefmt

import (
	"strings"
	"testing"

	"ssw-proc-logging/pkg/severity"
	"ssw-proc-logging/pkg/types"
)

func emitted(sev severity.Severity, body string) *types.LogMessage {
	m := types.NewMessage()
	m.Setup(&types.LoggerSourceInfo{ID: 1, Name: "fmt.test"}, sev, body)
	m.AddKeywords("k1", "k2")
	m.NoteEmitted(42)
	return m
}

func TestLineShape(t *testing.T) {
	// o call site entra antes da emissão; depois dela o registro é imutável
	m := types.NewMessage()
	m.Setup(&types.LoggerSourceInfo{ID: 1, Name: "fmt.test"}, severity.Error, "something broke")
	m.AddKeywords("k1", "k2")
	m.SetCallSite("handler.go", 17)
	m.NoteEmitted(42)

	line := Format(m, DefaultOptions())
	if !strings.HasSuffix(line, "\r\n") {
		t.Fatalf("line must end with CRLF: %q", line)
	}
	fields := strings.Split(strings.TrimSuffix(line, "\r\n"), "\t")
	// wall time, sev3, thread, logger, keywords, body, call site
	if len(fields) != 7 {
		t.Fatalf("got %d fields, want 7: %q", len(fields), line)
	}
	if fields[1] != "Err" {
		t.Errorf("severity field = %q, want Err", fields[1])
	}
	if fields[3] != "fmt.test" {
		t.Errorf("logger field = %q", fields[3])
	}
	if fields[4] != "k1,k2" {
		t.Errorf("keywords field = %q", fields[4])
	}
	if fields[5] != "something broke" {
		t.Errorf("body field = %q", fields[5])
	}
	if fields[6] != "handler.go:17" {
		t.Errorf("call site field = %q", fields[6])
	}
}

func TestOptionalFields(t *testing.T) {
	m := emitted(severity.Info, "body")

	line := Format(m, Options{IncludeQPC: true})
	fields := strings.Split(strings.TrimSuffix(line, "\r\n"), "\t")
	// qpc, sev3, thread, logger, keywords, body
	if len(fields) != 6 {
		t.Fatalf("got %d fields, want 6: %q", len(fields), line)
	}
	if fields[1] != "Inf" {
		t.Errorf("severity field = %q, want Inf", fields[1])
	}
}

func TestBodySanitization(t *testing.T) {
	m := emitted(severity.Debug, "multi\nline\tand\r\nmore")
	line := Format(m, Options{})
	trimmed := strings.TrimSuffix(line, "\r\n")
	if strings.ContainsAny(trimmed, "\r\n") {
		t.Errorf("body line breaks must be escaped: %q", line)
	}
	if !strings.Contains(trimmed, `multi\nline and\nmore`) {
		t.Errorf("sanitized body = %q", trimmed)
	}
}
