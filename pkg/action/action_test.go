package action

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// as filas de cada teste são encerradas via t.Cleanup antes do check
	goleak.VerifyTestMain(m)
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q := NewQueue(QueueConfig{Name: "test"}, nil)
	t.Cleanup(q.Shutdown)
	return q
}

func TestHappyPathWithNamedValues(t *testing.T) {
	q := newTestQueue(t)

	var updates, completes int64
	delegate := func(p Provider) (string, bool) {
		time.Sleep(50 * time.Millisecond)
		p.PublishNamedValues(NamedValues{"progress": 0.5})
		p.PublishNamedValues(NamedValues{"result": 42})
		p.SetResult(42)
		return "", true
	}
	a := New(q, "happy", delegate, WithNamedValues(NamedValues{"result": nil}))
	a.NotifyOnUpdate().Add(func() { atomic.AddInt64(&updates, 1) })
	a.NotifyOnComplete().Add(func() { atomic.AddInt64(&completes, 1) })

	if st := a.ActionState(); st.State != StateReady {
		t.Fatalf("initial state = %v, want Ready", st.State)
	}
	if !a.Run(time.Second) {
		t.Fatal("Run did not complete in time")
	}

	st := a.ActionState()
	if !st.Succeeded() || st.ResultCode != "" {
		t.Errorf("state = %+v, want success", st)
	}
	if got := st.NamedValues["progress"]; got != 0.5 {
		t.Errorf("progress = %v, want 0.5", got)
	}
	if got := st.NamedValues["result"]; got != 42 {
		t.Errorf("named result = %v, want 42", got)
	}
	if got := a.Result(); got != 42 {
		t.Errorf("result = %v, want 42", got)
	}
	if atomic.LoadInt64(&completes) != 1 {
		t.Errorf("completes = %d, want exactly 1", completes)
	}
	if atomic.LoadInt64(&updates) < 2 {
		t.Errorf("updates = %d, want at least the publish and the completion", updates)
	}
}

func TestCancelRequested(t *testing.T) {
	q := newTestQueue(t)

	var sawCancel int64
	delegate := func(p Provider) (string, bool) {
		for i := 0; i < 200; i++ {
			if p.IsCancelRequested() {
				atomic.StoreInt64(&sawCancel, 1)
				return CancelRequestedResult, true
			}
			time.Sleep(5 * time.Millisecond)
		}
		return "never canceled", true
	}
	a := New(q, "cancelable", delegate)
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)
	a.RequestCancel()
	a.RequestCancel() // idempotente

	if !a.WaitUntilComplete(time.Second) {
		t.Fatal("action did not complete after cancel")
	}
	st := a.ActionState()
	if !st.Failed() || st.ResultCode != CancelRequestedResult {
		t.Errorf("state = %+v, want failure with %q", st, CancelRequestedResult)
	}
	if atomic.LoadInt64(&sawCancel) != 1 {
		t.Error("delegate never observed the cancel hint")
	}
	if !st.CancelRequested {
		t.Error("cancel hint must stay set until re-arm")
	}
}

func TestRearmClearsCancelAndSnapshotsValues(t *testing.T) {
	q := newTestQueue(t)

	runs := int64(0)
	delegate := func(p Provider) (string, bool) {
		atomic.AddInt64(&runs, 1)
		return "", true
	}
	a := New(q, "rearm", delegate, WithNamedValues(NamedValues{"round": 1}))

	if !a.Run(time.Second) {
		t.Fatal("first run failed")
	}
	a.RequestCancel() // no-op depois de Complete
	if a.ActionState().CancelRequested {
		t.Error("cancel after completion must be a no-op")
	}

	if err := a.SetNamedValues(NamedValues{"round": 2}); err != nil {
		t.Fatal(err)
	}
	if !a.Run(time.Second) {
		t.Fatal("re-armed run failed")
	}

	st := a.ActionState()
	if st.CancelRequested {
		t.Error("re-arm must clear cancel")
	}
	if got := st.NamedValues["round"]; got != 2 {
		t.Errorf("round = %v, want the re-snapshotted 2", got)
	}
	if atomic.LoadInt64(&runs) != 2 {
		t.Errorf("delegate ran %d times, want exactly once per cycle", runs)
	}
}

func TestDelegatePanicBecomesFailure(t *testing.T) {
	q := newTestQueue(t)

	a := New(q, "explosive", func(p Provider) (string, bool) {
		panic("delegate blew up")
	})
	if !a.Run(time.Second) {
		t.Fatal("action did not complete")
	}
	st := a.ActionState()
	if !st.Failed() {
		t.Fatalf("state = %+v, want failure", st)
	}
	if st.ResultCode == "" || st.ResultCode == "delegate blew up" {
		t.Errorf("result code = %q, want a synthetic delegate failure code", st.ResultCode)
	}
}

func TestIllegalTransitionGoesInvalid(t *testing.T) {
	q := newTestQueue(t)

	block := make(chan struct{})
	a := New(q, "strict", func(p Provider) (string, bool) {
		<-block
		return "", true
	})
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	// segundo Start com a ação correndo: transição ilegal
	if err := a.Start(); err == nil {
		t.Error("second Start while running must fail")
	}
	st := a.ActionState()
	if st.State != StateInvalid {
		t.Errorf("state = %v, want Invalid", st.State)
	}
	if st.ResultCode == "" {
		t.Error("invalid transition must record a non-empty result code")
	}
	close(block)
}

func TestAsynchronousCompletion(t *testing.T) {
	q := newTestQueue(t)

	var facet Provider
	ready := make(chan struct{})
	a := New(q, "async", func(p Provider) (string, bool) {
		facet = p
		close(ready)
		return "", false // completo mais tarde
	})
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	<-ready

	if a.WaitUntilComplete(30 * time.Millisecond) {
		t.Fatal("action must still be running")
	}
	if st := a.ActionState(); st.State != StateIssued {
		t.Errorf("state = %v, want Issued while provider holds it", st.State)
	}

	facet.CompleteWithValues("", NamedValues{"answer": 42})
	if !a.WaitUntilComplete(time.Second) {
		t.Fatal("action did not complete after provider Complete")
	}
	if got := a.ActionState().NamedValues["answer"]; got != 42 {
		t.Errorf("answer = %v, want 42", got)
	}
}

func TestTimeLimit(t *testing.T) {
	q := newTestQueue(t)

	a := New(q, "slow", func(p Provider) (string, bool) {
		return "", false // nunca completa por conta própria
	}, WithTimeLimit(30*time.Millisecond))

	if !a.Run(time.Second) {
		t.Fatal("time limit did not fire")
	}
	if got := a.ActionState().ResultCode; got != TimeLimitResult {
		t.Errorf("result code = %q, want %q", got, TimeLimitResult)
	}
}

func TestWaitTimeoutRespected(t *testing.T) {
	q := newTestQueue(t)

	block := make(chan struct{})
	a := New(q, "stuck", func(p Provider) (string, bool) {
		<-block
		return "", true
	})
	a.Start()

	start := time.Now()
	if a.WaitUntilComplete(80 * time.Millisecond) {
		t.Error("wait must report timeout while the delegate blocks")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("wait took %v, deadline not honored", elapsed)
	}
	close(block)
	if !a.WaitUntilComplete(time.Second) {
		t.Error("action should complete after unblock")
	}
}

func TestNotifyListenerSelfRemoval(t *testing.T) {
	var l NotifyList
	fired := 0
	var id int
	id = l.Add(func() {
		fired++
		l.Remove(id) // remoção dentro do próprio callback
	})
	l.Notify()
	l.Notify()
	if fired != 1 {
		t.Errorf("listener fired %d times, want 1", fired)
	}
	if l.Len() != 0 {
		t.Errorf("list length = %d, want 0", l.Len())
	}
}

func TestWaitEventPoolReuse(t *testing.T) {
	e1 := borrowEvent()
	e1.Signal()
	returnEvent(e1) // o sinal pendente é drenado na devolução

	e2 := borrowEvent()
	if e1 != e2 {
		// outro teste pode ter populado o pool; só valida o estado
		returnEvent(e2)
		e2 = e1
	}
	if e2.WaitTimeout(5 * time.Millisecond) {
		t.Error("recycled event must come back unsignaled")
	}
	returnEvent(e2)
}
