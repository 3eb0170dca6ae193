// Package linefmt renders log records into the fixed plain-text line format
// shared by the console and rotating-file sinks: TAB-separated fields,
// CRLF-terminated, severity as a 3-letter code.
//
// Field order: wall time (optional), monotonic delta (optional), severity code, thread
// info, logger name, keywords, body, source file:line (optional).
package linefmt

import (
	"bytes"
	"fmt"
	"strings"

	"ssw-proc-logging/pkg/types"
)

// DefaultWallTimeFormat is the timestamp layout used when none is set.
const DefaultWallTimeFormat = "2006-01-02 15:04:05.000"

// Options controls which optional fields are rendered.
type Options struct {
	IncludeWallTime bool   `yaml:"include_wall_time"`
	IncludeQPC      bool   `yaml:"include_qpc"`
	IncludeCallSite bool   `yaml:"include_call_site"`
	WallTimeFormat  string `yaml:"wall_time_format"`
}

// DefaultOptions renders wall time and call site, no monotonic delta.
func DefaultOptions() Options {
	return Options{IncludeWallTime: true, IncludeCallSite: true, WallTimeFormat: DefaultWallTimeFormat}
}

// Format renders one record as a complete line including the CRLF
// terminator.
func Format(m *types.LogMessage, opts Options) string {
	var buf bytes.Buffer
	AppendLine(&buf, m, opts)
	return buf.String()
}

// AppendLine renders one record into buf, including the CRLF terminator.
func AppendLine(buf *bytes.Buffer, m *types.LogMessage, opts Options) {
	layout := opts.WallTimeFormat
	if layout == "" {
		layout = DefaultWallTimeFormat
	}

	if opts.IncludeWallTime {
		buf.WriteString(m.EmittedTime().Format(layout))
		buf.WriteByte('\t')
	}
	if opts.IncludeQPC {
		fmt.Fprintf(buf, "%.6f", m.EmittedQPC().Seconds())
		buf.WriteByte('\t')
	}

	buf.WriteString(m.Sev().Code3())
	buf.WriteByte('\t')

	thread := m.Thread()
	if thread.Name != "" {
		fmt.Fprintf(buf, "%s(%d/%d)", thread.Name, thread.GoroutineID, thread.OSThreadID)
	} else {
		fmt.Fprintf(buf, "%d/%d", thread.GoroutineID, thread.OSThreadID)
	}
	buf.WriteByte('\t')

	buf.WriteString(m.SourceName())
	buf.WriteByte('\t')

	buf.WriteString(strings.Join(m.Keywords(), ","))
	buf.WriteByte('\t')

	buf.WriteString(sanitize(m.Body()))

	if opts.IncludeCallSite && m.File() != "" {
		buf.WriteByte('\t')
		fmt.Fprintf(buf, "%s:%d", m.File(), m.Line())
	}

	buf.WriteString("\r\n")
}

// sanitize keeps the line format intact: tabs become spaces and embedded
// line breaks become literal "\n".
func sanitize(body string) string {
	if !strings.ContainsAny(body, "\t\r\n") {
		return body
	}
	replacer := strings.NewReplacer("\t", " ", "\r\n", `\n`, "\n", `\n`, "\r", `\n`)
	return replacer.Replace(body)
}
