package distribution

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"ssw-proc-logging/internal/sinks"
	"ssw-proc-logging/pkg/logconfig"
	"ssw-proc-logging/pkg/severity"
	"ssw-proc-logging/pkg/types"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestSourceInterningIsStable(t *testing.T) {
	h := NewHub(Config{}, quietLogger())

	a := h.SourceInfo("pkg.alpha")
	b := h.SourceInfo("pkg.beta")
	a2 := h.SourceInfo("pkg.alpha")

	if a != a2 {
		t.Error("interning the same name twice must return the same info")
	}
	if a.ID == b.ID {
		t.Error("distinct names must get distinct ids")
	}
	if a.ID < 0 || b.ID < 0 {
		t.Errorf("interned ids must be >= 0, got %d and %d", a.ID, b.ID)
	}
}

func TestDistributeStampsMonotonicSequence(t *testing.T) {
	h := NewHub(Config{}, quietLogger())
	sink := sinks.NewListSink("collect")
	if err := h.AddGroup("g", logconfig.ConfigAllNoCallSite, sink); err != nil {
		t.Fatal(err)
	}
	if err := h.SetGroup("src", "g"); err != nil {
		t.Fatal(err)
	}
	src := h.SourceInfo("src")

	for i := 0; i < 5; i++ {
		m := h.Allocate(src)
		m.Setup(src, severity.Info, "x")
		h.Distribute(m)
	}

	records := sink.Records()
	if len(records) != 5 {
		t.Fatalf("captured %d records, want 5", len(records))
	}
	last := int64(0)
	for _, r := range records {
		if r.SeqNum <= last {
			t.Errorf("sequence not monotonic: %d after %d", r.SeqNum, last)
		}
		last = r.SeqNum
	}
}

func TestPooledAllocationOnlyForReleaseSafeGroups(t *testing.T) {
	h := NewHub(Config{PoolCapacity: 4}, quietLogger())

	safe := sinks.NewListSink("safe")
	retaining := sinks.NewRetainingListSink("retaining")
	h.AddGroup("pooled", logconfig.ConfigAllNoCallSite, safe)
	h.AddGroup("heap", logconfig.ConfigAllNoCallSite, retaining)
	h.SetGroup("p.src", "pooled")
	h.SetGroup("h.src", "heap")

	pSrc := h.SourceInfo("p.src")
	hSrc := h.SourceInfo("h.src")

	// Grupo release-safe: o ciclo completo devolve o registro ao pool.
	m := h.Allocate(pSrc)
	m.Setup(pSrc, severity.Info, "pooled")
	h.Distribute(m)
	if got := h.pool.Size(); got != 1 {
		t.Errorf("pool size after release-safe cycle = %d, want 1", got)
	}

	// Grupo com sink não cooperativo: heap-born, o pool não cresce.
	m2 := h.Allocate(hSrc)
	m2.Setup(hSrc, severity.Info, "heap")
	h.Distribute(m2)
	if got := h.pool.Size(); got != 1 {
		t.Errorf("pool size after heap cycle = %d, want 1", got)
	}
}

func TestFanOutReferenceCounting(t *testing.T) {
	h := NewHub(Config{}, quietLogger())
	a := sinks.NewListSink("a")
	b := sinks.NewListSink("b")
	c := sinks.NewListSink("c")
	h.AddGroup("fan", logconfig.ConfigAllNoCallSite, a, b, c)
	h.SetGroup("fan.src", "fan")
	src := h.SourceInfo("fan.src")

	m := h.Allocate(src)
	m.Setup(src, severity.Warning, "fan-out")
	h.Distribute(m)

	for _, s := range []*sinks.ListSink{a, b, c} {
		if s.Len() != 1 {
			t.Errorf("sink %s captured %d records, want 1", s.Name(), s.Len())
		}
	}
	// todas as referências liberadas: registro de volta ao pool
	if got := h.pool.Size(); got != 1 {
		t.Errorf("pool size after 3-sink fan-out = %d, want 1", got)
	}
}

type panicSink struct{ name string }

func (p *panicSink) Name() string                          { return p.name }
func (p *panicSink) HandleMessage(m *types.LogMessage)     { panic("sink exploded") }
func (p *panicSink) HandleMessages(b []*types.LogMessage)  { panic("sink exploded") }
func (p *panicSink) Flush() error                          { return nil }
func (p *panicSink) Shutdown()                             {}
func (p *panicSink) SupportsRefCountedRelease() bool       { return true }

func TestSickSinkIsQuarantined(t *testing.T) {
	h := NewHub(Config{SinkRetryInterval: time.Hour}, quietLogger())
	good := sinks.NewListSink("good")
	bad := &panicSink{name: "bad"}
	h.AddGroup("mixed", logconfig.ConfigAllNoCallSite, bad, good)
	h.SetGroup("m.src", "mixed")
	src := h.SourceInfo("m.src")

	for i := 0; i < 3; i++ {
		m := h.Allocate(src)
		m.Setup(src, severity.Error, "boom")
		h.Distribute(m)
	}

	// O sink saudável continua recebendo tudo.
	if good.Len() != 3 {
		t.Errorf("healthy sink captured %d records, want 3", good.Len())
	}
	if h.Stats().SinkFailures != 1 {
		t.Errorf("sink failures = %d, want 1 (quarantined after first)", h.Stats().SinkFailures)
	}
}

func TestWaitForCompletion(t *testing.T) {
	h := NewHub(Config{}, quietLogger())
	sink := sinks.NewListSink("w")
	h.AddGroup("wg", logconfig.ConfigAllNoCallSite, sink)
	h.SetGroup("w.src", "wg")
	src := h.SourceInfo("w.src")

	if !h.WaitForCompletion(src.ID, 10*time.Millisecond) {
		t.Error("wait with nothing enqueued must succeed immediately")
	}

	m := h.Allocate(src)
	m.Setup(src, severity.Info, "done")
	h.Distribute(m)

	if !h.WaitForCompletion(src.ID, time.Second) {
		t.Error("wait after synchronous distribution must succeed")
	}
}

func TestShutdownStopsAcceptingAndFlushes(t *testing.T) {
	h := NewHub(Config{}, quietLogger())
	sink := sinks.NewListSink("s")
	h.AddGroup("sg", logconfig.ConfigAllNoCallSite, sink)
	h.SetGroup("s.src", "sg")
	src := h.SourceInfo("s.src")

	h.Shutdown()
	if !h.IsShutdown() {
		t.Fatal("hub must report shutdown")
	}
	if sink.Flushes() == 0 {
		t.Error("shutdown must flush sinks")
	}

	m := types.NewMessage()
	m.Setup(src, severity.Info, "late")
	h.Distribute(m)
	if sink.Len() != 0 {
		t.Error("records distributed after shutdown must be dropped")
	}
}

func TestGroupConfigPropagatesToBoundNames(t *testing.T) {
	h := NewHub(Config{}, quietLogger())
	sink := sinks.NewListSink("p")
	h.AddGroup("prop", logconfig.LoggerConfig{Gate: severity.NewLogGate(severity.Error), SupportsRefCountedRelease: true}, sink)
	h.SetGroup("p.src", "prop")
	src := h.SourceInfo("p.src")

	obs := logconfig.NewObserver(src.ConfigSource)
	obs.Update()
	if obs.Config().Allows(severity.Debug) {
		t.Fatal("initial gate should reject Debug")
	}

	// Reconfigura o grupo: o publisher do nome é republicado.
	h.AddGroup("prop", logconfig.ConfigAllNoCallSite, sink)
	if !obs.Update() {
		t.Fatal("observer must see the reconfiguration")
	}
	if !obs.Config().Allows(severity.Debug) {
		t.Error("new gate should admit Debug")
	}
}
