package logconfig

import (
	"sync"
	"testing"

	"ssw-proc-logging/pkg/severity"
)

func TestObserverSeesPublishedValue(t *testing.T) {
	pub := NewPublisher(ConfigNone)
	obs := NewObserver(pub)

	if !obs.Update() {
		t.Fatal("first Update must copy the initial value")
	}
	if obs.Config().Allows(severity.Info) {
		t.Error("initial config should allow nothing")
	}

	next := ConfigAllNoCallSite
	next.GroupName = "main"
	pub.Set(next)

	if !obs.Update() {
		t.Fatal("Update after Set must report a change")
	}
	if got := obs.Config(); !got.Allows(severity.Trace) || got.GroupName != "main" {
		t.Errorf("observer config = %+v, want published value", got)
	}
}

func TestPublisherIdenticalValueKeepsSequence(t *testing.T) {
	cfg := LoggerConfig{GroupName: "g", Gate: severity.NewLogGate(severity.Info)}
	pub := NewPublisher(cfg)
	before := pub.Sequence()
	pub.Set(cfg)
	if got := pub.Sequence(); got != before {
		t.Errorf("sequence advanced on identical Set: %d -> %d", before, got)
	}

	obs := NewObserver(pub)
	obs.Update()
	if obs.Update() {
		t.Error("Update with unchanged sequence must be a no-op")
	}
}

func TestRepublishReachesObserver(t *testing.T) {
	// O rebind de grupo republica pelo mesmo publisher do nome; o observer
	// nunca troca de publisher.
	pub := NewPublisher(LoggerConfig{GroupName: "a", Gate: severity.NewLogGate(severity.Error)})

	obs := NewObserver(pub)
	obs.Update()
	if obs.Config().GroupName != "a" {
		t.Fatalf("expected config from group a, got %+v", obs.Config())
	}

	pub.Set(LoggerConfig{GroupName: "b", Gate: severity.NewLogGate(severity.Trace)})
	if !obs.Update() {
		t.Fatal("Update after republish must copy")
	}
	if got := obs.Config(); got.GroupName != "b" || !got.Allows(severity.Debug) {
		t.Errorf("config after republish = %+v, want group b value", got)
	}
}

func TestObserverConcurrentPublish(t *testing.T) {
	pub := NewPublisher(ConfigNone)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	pubDone := make(chan struct{})
	go func() {
		defer close(pubDone)
		gates := []severity.Severity{severity.Error, severity.Info, severity.Trace}
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			pub.Set(LoggerConfig{GroupName: "g", Gate: severity.NewLogGate(gates[i%len(gates)])})
		}
	}()

	// Cada observer é dono de uma goroutine, como um logger real.
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obs := NewObserver(pub)
			for i := 0; i < 10000; i++ {
				obs.Update()
				cfg := obs.Config()
				// Fatal passa em qualquer um dos gates publicados
				if cfg.GroupName != "" && !cfg.Allows(severity.Fatal) {
					t.Error("observed config rejects Fatal")
					return
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	<-pubDone
}

func TestConfigCombinators(t *testing.T) {
	a := LoggerConfig{GroupName: "a", Gate: severity.NewLogGate(severity.Warning), RecordCallSite: true}
	b := LoggerConfig{Gate: severity.NewLogGate(severity.Debug), SupportsRefCountedRelease: true}

	or := a.Or(b)
	if !or.Allows(severity.Debug) || !or.RecordCallSite || !or.SupportsRefCountedRelease {
		t.Errorf("Or result %+v not at least as permissive as both", or)
	}

	and := a.And(b)
	if and.Allows(severity.Debug) || and.RecordCallSite || and.SupportsRefCountedRelease {
		t.Errorf("And result %+v not restricted to both", and)
	}
	if !and.Allows(severity.Warning) {
		t.Errorf("And result %+v should still allow Warning", and)
	}
}
