package logger

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"ssw-proc-logging/internal/sinks"
	"ssw-proc-logging/pkg/distribution"
	"ssw-proc-logging/pkg/logconfig"
	"ssw-proc-logging/pkg/severity"
)

func benchHub(b *testing.B, gate severity.LogGate) (*distribution.Hub, *Logger) {
	b.Helper()
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	h := distribution.NewHub(distribution.Config{PoolCapacity: 4096}, l)
	cfg := logconfig.LoggerConfig{Gate: gate, SupportsRefCountedRelease: true}
	sink := sinks.NewConsoleSink("discard", severity.GateAll, io.Discard)
	if err := h.AddGroup("bench", cfg, sink); err != nil {
		b.Fatal(err)
	}
	if err := h.SetGroup("bench.src", "bench"); err != nil {
		b.Fatal(err)
	}
	return h, New(h, "bench.src")
}

// O caminho quente da biblioteca: um emit desabilitado custa uma leitura
// atômica e uma comparação.
func BenchmarkEmitDisabled(b *testing.B) {
	_, log := benchHub(b, severity.NewLogGate(severity.Error))
	e := log.Trace()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Emitf("never formatted %d", i)
	}
}

func BenchmarkEmitEnabled(b *testing.B) {
	_, log := benchHub(b, severity.GateAll)
	e := log.Info()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Emit("benchmark record")
	}
}

func BenchmarkIsEnabled(b *testing.B) {
	_, log := benchHub(b, severity.NewLogGate(severity.Info))
	e := log.Debug()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if e.IsEnabled() {
			b.Fatal("Debug must be gated by Info")
		}
	}
}
