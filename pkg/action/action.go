// Package action implements asynchronous units of work jointly owned by a
// client (start, cancel, wait) and a provider (issue, progress, complete),
// with their lifecycle transitions rendered into the logging pipeline.
//
// State machine:
//
//	Initial → Ready               (construction)
//	Ready   → Started             (client Start)
//	Started → Issued              (provider dequeue)
//	Issued  → Complete            (provider Complete)
//	Ready   → Complete            (construction failure)
//	Started → Complete            (direct error or time limit)
//	Complete→ Ready               (re-arm on the next Start)
//	*       → Invalid             (illegal transition: fatal-class error)
package action

import (
	"fmt"
	"sync"
	"time"

	"ssw-proc-logging/internal/metrics"
	"ssw-proc-logging/pkg/logger"
)

// State is an action's lifecycle position.
type State int

const (
	StateInitial State = iota
	StateReady
	StateStarted
	StateIssued
	StateComplete
	StateInvalid
)

var stateNames = [...]string{
	StateInitial:  "Initial",
	StateReady:    "Ready",
	StateStarted:  "Started",
	StateIssued:   "Issued",
	StateComplete: "Complete",
	StateInvalid:  "Invalid",
}

func (s State) String() string {
	if s < StateInitial || s > StateInvalid {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Well-known result codes.
const (
	// CancelRequestedResult completes an action that honored a cancel.
	CancelRequestedResult = "Cancel Requested"

	// TimeLimitResult completes an action whose time budget expired.
	TimeLimitResult = "Time Limit Reached"
)

// NamedValues carries progress or result values by name. Published
// snapshots are copies; the carrier map is never shared mutable.
type NamedValues map[string]interface{}

func (v NamedValues) clone() NamedValues {
	if v == nil {
		return nil
	}
	out := make(NamedValues, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// ActionState is the externally visible snapshot of an action.
type ActionState struct {
	State           State
	TimeStamp       time.Time
	ResultCode      string
	CancelRequested bool
	NamedValues     NamedValues
}

// IsComplete reports a finished action (successfully or not).
func (s ActionState) IsComplete() bool { return s.State == StateComplete }

// Succeeded reports completion with an empty result code.
func (s ActionState) Succeeded() bool { return s.State == StateComplete && s.ResultCode == "" }

// Failed reports completion with a non-empty result code.
func (s ActionState) Failed() bool { return s.State == StateComplete && s.ResultCode != "" }

// Delegate is the provider's work callback. It either completes the action
// synchronously (completed true, empty resultCode meaning success) or takes
// responsibility for completing it later (completed false).
type Delegate func(p Provider) (resultCode string, completed bool)

// Client is the starting side's facet.
type Client interface {
	Start() error
	WaitUntilComplete(timeout time.Duration) bool
	Run(timeout time.Duration) bool
	RequestCancel()
	ActionState() ActionState
	Result() interface{}
	SetParam(v interface{}) error
	SetNamedValues(v NamedValues) error
	NotifyOnComplete() *NotifyList
	NotifyOnUpdate() *NotifyList
}

// Provider is the performing side's facet, handed to the delegate.
type Provider interface {
	Param() interface{}
	NamedValues() NamedValues
	IsCancelRequested() bool
	PublishNamedValues(v NamedValues)
	SetResult(v interface{})
	Complete(resultCode string)
	CompleteWithValues(resultCode string, v NamedValues)
}

// Action is a jointly owned unit of work. Its shared state is guarded by a
// single lock; the notification lists are signaled outside of it.
type Action struct {
	name     string
	queue    *Queue
	delegate Delegate

	mutex           sync.Mutex
	state           State
	timestamp       time.Time
	resultCode      string
	cancelRequested bool
	param           interface{}
	result          interface{}
	clientValues    NamedValues // staging do cliente, congelado no Start
	publishedValues NamedValues // snapshot visível
	timeLimit       time.Duration
	timeLimitTimer  *time.Timer

	notifyOnComplete NotifyList
	notifyOnUpdate   NotifyList

	dbg logger.Emitter
	err logger.Emitter
}

// Option configures an action at construction.
type Option func(*Action)

// WithParam sets the initial parameter value.
func WithParam(v interface{}) Option {
	return func(a *Action) { a.param = v }
}

// WithNamedValues sets the client's initial named values, snapshotted into
// the provider-visible map on every Start.
func WithNamedValues(v NamedValues) Option {
	return func(a *Action) { a.clientValues = v.clone() }
}

// WithTimeLimit completes the action with TimeLimitResult when it is still
// running that long after Start.
func WithTimeLimit(d time.Duration) Option {
	return func(a *Action) { a.timeLimit = d }
}

// New creates a re-armable action bound to the queue, in Ready state.
func New(q *Queue, name string, delegate Delegate, opts ...Option) *Action {
	a := &Action{
		name:     name,
		queue:    q,
		delegate: delegate,
		state:    StateReady, // Initial → Ready na construção
		timestamp: time.Now(),
		dbg:      q.dbg,
		err:      q.err,
	}
	for _, opt := range opts {
		opt(a)
	}
	if delegate == nil {
		// falha de construção: Ready → Complete com código de erro
		a.state = StateComplete
		a.resultCode = "No delegate supplied"
	}
	return a
}

// Client returns the client facet.
func (a *Action) Client() Client { return a }

// Provider returns the provider facet.
func (a *Action) Provider() Provider { return a }

// ActionState returns a consistent snapshot.
func (a *Action) ActionState() ActionState {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return ActionState{
		State:           a.state,
		TimeStamp:       a.timestamp,
		ResultCode:      a.resultCode,
		CancelRequested: a.cancelRequested,
		NamedValues:     a.publishedValues.clone(),
	}
}

// NotifyOnComplete is signaled once per completion.
func (a *Action) NotifyOnComplete() *NotifyList { return &a.notifyOnComplete }

// NotifyOnUpdate is signaled after every state, param or named-values
// change.
func (a *Action) NotifyOnUpdate() *NotifyList { return &a.notifyOnUpdate }

// SetParam replaces the parameter. Only legal while the action is not
// running.
func (a *Action) SetParam(v interface{}) error {
	a.mutex.Lock()
	if a.state != StateReady && a.state != StateComplete {
		a.mutex.Unlock()
		return fmt.Errorf("action %s: SetParam in state %v", a.name, a.state)
	}
	a.param = v
	a.mutex.Unlock()
	a.notifyOnUpdate.Notify()
	return nil
}

// SetNamedValues replaces the client's staged values.
func (a *Action) SetNamedValues(v NamedValues) error {
	a.mutex.Lock()
	if a.state != StateReady && a.state != StateComplete {
		a.mutex.Unlock()
		return fmt.Errorf("action %s: SetNamedValues in state %v", a.name, a.state)
	}
	a.clientValues = v.clone()
	a.mutex.Unlock()
	a.notifyOnUpdate.Notify()
	return nil
}

// Start arms the action and enqueues it with the provider. From Complete it
// re-arms first: cancel is cleared and the client's current named values
// are snapshotted into the provider-visible map.
func (a *Action) Start() error {
	a.mutex.Lock()
	switch a.state {
	case StateComplete:
		// re-arm: Complete → Ready
		a.state = StateReady
		fallthrough
	case StateReady:
		a.cancelRequested = false
		a.resultCode = ""
		a.result = nil
		a.publishedValues = a.clientValues.clone()
		a.setStateLocked(StateStarted)
	default:
		err := a.invalidTransitionLocked("Start")
		a.mutex.Unlock()
		a.notifyOnUpdate.Notify()
		return err
	}
	if a.timeLimit > 0 {
		a.timeLimitTimer = time.AfterFunc(a.timeLimit, a.onTimeLimit)
	}
	a.mutex.Unlock()

	a.notifyOnUpdate.Notify()
	a.dbg.Emitf("action %s: started", a.name)
	metrics.ActionsActive.WithLabelValues(a.queue.name).Inc()

	if err := a.queue.enqueue(a); err != nil {
		a.CompleteWithValues(fmt.Sprintf("Enqueue failed: %v", err), nil)
		return err
	}
	return nil
}

// Run starts the action and waits for its completion.
func (a *Action) Run(timeout time.Duration) bool {
	if err := a.Start(); err != nil {
		return false
	}
	return a.WaitUntilComplete(timeout)
}

// WaitUntilComplete blocks until the action completes or the timeout
// elapses. Returns true when the action completed in time. The wake-up
// event is borrowed from a process-wide pool and polling is bounded, so a
// missed notification only costs one poll interval.
func (a *Action) WaitUntilComplete(timeout time.Duration) bool {
	if a.ActionState().IsComplete() {
		return true
	}

	event := borrowEvent()
	defer returnEvent(event)
	id := a.notifyOnComplete.Add(event.Signal)
	defer a.notifyOnComplete.Remove(id)

	deadline := time.Now().Add(timeout)
	for {
		if a.ActionState().IsComplete() {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if remaining > 50*time.Millisecond {
			remaining = 50 * time.Millisecond
		}
		event.WaitTimeout(remaining)
	}
}

// RequestCancel sets the cooperative cancel hint. Idempotent; a no-op once
// the action is complete. The hint stays visible until the next re-arm.
func (a *Action) RequestCancel() {
	a.mutex.Lock()
	if a.state == StateComplete || a.state == StateInvalid || a.cancelRequested {
		a.mutex.Unlock()
		return
	}
	a.cancelRequested = true
	a.mutex.Unlock()
	a.notifyOnUpdate.Notify()
	a.dbg.Emitf("action %s: cancel requested", a.name)
}

// Result returns the provider's result value; meaningful once complete.
func (a *Action) Result() interface{} {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.result
}

// Provider facet implementation.

func (a *Action) Param() interface{} {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.param
}

func (a *Action) NamedValues() NamedValues {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.publishedValues.clone()
}

func (a *Action) IsCancelRequested() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.cancelRequested
}

// PublishNamedValues merges the given values into a fresh provider-visible
// snapshot. The previously published carrier is never mutated.
func (a *Action) PublishNamedValues(v NamedValues) {
	a.mutex.Lock()
	merged := a.publishedValues.clone()
	if merged == nil {
		merged = make(NamedValues, len(v))
	}
	for k, val := range v {
		merged[k] = val
	}
	a.publishedValues = merged
	a.mutex.Unlock()
	a.notifyOnUpdate.Notify()
}

func (a *Action) SetResult(v interface{}) {
	a.mutex.Lock()
	a.result = v
	a.mutex.Unlock()
}

// Complete finishes the action with the given result code (empty means
// success).
func (a *Action) Complete(resultCode string) {
	a.CompleteWithValues(resultCode, nil)
}

// CompleteWithValues finishes the action, optionally merging a final set of
// named values.
func (a *Action) CompleteWithValues(resultCode string, v NamedValues) {
	a.mutex.Lock()
	switch a.state {
	case StateReady, StateStarted, StateIssued:
		// caminhos legais de conclusão
	case StateComplete:
		a.mutex.Unlock()
		return // conclusão dupla é ignorada (corrida com time limit/cancel)
	default:
		a.invalidTransitionLocked("Complete")
		a.mutex.Unlock()
		a.notifyOnUpdate.Notify()
		return
	}
	if v != nil {
		merged := a.publishedValues.clone()
		if merged == nil {
			merged = make(NamedValues, len(v))
		}
		for k, val := range v {
			merged[k] = val
		}
		a.publishedValues = merged
	}
	a.resultCode = resultCode
	a.setStateLocked(StateComplete)
	if a.timeLimitTimer != nil {
		a.timeLimitTimer.Stop()
		a.timeLimitTimer = nil
	}
	a.mutex.Unlock()

	a.notifyOnUpdate.Notify()
	a.notifyOnComplete.Notify()
	metrics.ActionsActive.WithLabelValues(a.queue.name).Dec()

	outcome := "success"
	switch {
	case resultCode == CancelRequestedResult:
		outcome = "canceled"
	case resultCode != "":
		outcome = "failure"
	}
	metrics.ActionsCompletedTotal.WithLabelValues(a.queue.name, outcome).Inc()
	if resultCode == "" {
		a.dbg.Emitf("action %s: complete", a.name)
	} else {
		a.dbg.Emitf("action %s: complete, result %q", a.name, resultCode)
	}
}

// issue transitions Started → Issued and runs the delegate exactly once per
// Start→Complete cycle. Panics become a synthetic failure code.
func (a *Action) issue() {
	a.mutex.Lock()
	if a.state != StateStarted {
		// já completado (time limit, cancel direto); nada a fazer
		if a.state != StateComplete {
			a.invalidTransitionLocked("Issue")
			a.mutex.Unlock()
			a.notifyOnUpdate.Notify()
			return
		}
		a.mutex.Unlock()
		return
	}
	a.setStateLocked(StateIssued)
	delegate := a.delegate
	a.mutex.Unlock()
	a.notifyOnUpdate.Notify()
	a.dbg.Emitf("action %s: issued", a.name)

	var resultCode string
	completed := true
	func() {
		defer func() {
			if r := recover(); r != nil {
				resultCode = fmt.Sprintf("Delegate threw: %v", r)
				completed = true
				a.err.Emitf("action %s: delegate panic: %v", a.name, r)
			}
		}()
		resultCode, completed = delegate(a)
	}()

	if completed {
		a.Complete(resultCode)
	}
}

// onTimeLimit roda no timer; completa a ação se ainda estiver correndo
func (a *Action) onTimeLimit() {
	a.mutex.Lock()
	running := a.state == StateStarted || a.state == StateIssued
	a.mutex.Unlock()
	if running {
		a.dbg.Emitf("action %s: time limit reached", a.name)
		a.Complete(TimeLimitResult)
	}
}

// setStateLocked performs a legal transition.
func (a *Action) setStateLocked(next State) {
	a.state = next
	a.timestamp = time.Now()
}

// invalidTransitionLocked moves the action to the Invalid terminal state
// and surfaces a fatal-class error through the error emitter.
func (a *Action) invalidTransitionLocked(operation string) error {
	err := fmt.Errorf("action %s: illegal %s in state %v", a.name, operation, a.state)
	a.state = StateInvalid
	a.timestamp = time.Now()
	if a.resultCode == "" {
		a.resultCode = err.Error()
	}
	a.err.Emitf("%v", err)
	return err
}
