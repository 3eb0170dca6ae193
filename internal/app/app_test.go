package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ssw-proc-logging/pkg/logger"
)

func TestPipelineFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "logs")
	configYAML := `
internal_log_level: error
file_sinks:
  - name: main
    dir: ` + logDir + `
    name_style: numeric
    advance:
      size_limit: 1048576
groups:
  - name: service
    gate: Debug
    record_call_site: true
    file_sinks: [main]
    queued: true
    queue:
      capacity: 64
      wakeup_threshold: 1
    loggers: [svc.worker]
`
	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(configYAML), 0o644))

	a, err := New(configFile)
	require.NoError(t, err)

	log := logger.New(a.Hub(), "svc.worker")
	log.Info().Emitf("pipeline booted with %d groups", 1)
	log.Debug().Emit("debug passes the Debug gate")
	log.Trace().Emit("trace must be filtered")

	require.True(t, log.WaitForCompletion(time.Second))
	a.Shutdown()

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries, "file sink must have produced a file")

	data, err := os.ReadFile(filepath.Join(logDir, entries[0].Name()))
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "pipeline booted with 1 groups")
	require.Contains(t, content, "debug passes the Debug gate")
	require.NotContains(t, content, "trace must be filtered")
	require.Contains(t, content, "svc.worker")
	require.Contains(t, content, "app_test.go", "call-site capture must record this file")

	// linhas CRLF com campos tab-separados
	for _, line := range strings.Split(strings.TrimSuffix(content, "\r\n"), "\r\n") {
		require.GreaterOrEqual(t, strings.Count(line, "\t"), 4, "line %q", line)
	}
}

func TestInvalidConfigRejectedAtSetup(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`
groups:
  - name: broken
    gate: NotASeverity
    console: true
`), 0o644))

	_, err := New(configFile)
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken")
}
