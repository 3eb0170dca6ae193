package logconfig

import (
	"sync"
	"sync/atomic"
)

// Publisher holds the current LoggerConfig for one logger name together with
// a monotonic change sequence. Observers cache the value locally and only
// copy when the sequence moved.
type Publisher struct {
	seq   int64 // atomic; incrementa a cada mudança efetiva
	value atomic.Value
	mutex sync.Mutex // serializa publicações
}

// NewPublisher creates a publisher with an initial configuration. The
// sequence starts at 1 so a fresh observer (sequence 0) always copies once.
func NewPublisher(initial LoggerConfig) *Publisher {
	p := &Publisher{}
	p.value.Store(initial)
	atomic.StoreInt64(&p.seq, 1)
	return p
}

// Set publishes a new configuration. Publishing an identical value does not
// advance the sequence, so observers stay on their fast path. The value is
// stored before the sequence advances; an observer that reads the new
// sequence is guaranteed to copy at least this value.
func (p *Publisher) Set(c LoggerConfig) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if c == p.value.Load().(LoggerConfig) {
		return
	}
	p.value.Store(c)
	atomic.AddInt64(&p.seq, 1)
}

// Get returns the current configuration and its sequence. The sequence is
// read first so the pair is never newer-sequence/older-value.
func (p *Publisher) Get() (LoggerConfig, int64) {
	seq := atomic.LoadInt64(&p.seq)
	return p.value.Load().(LoggerConfig), seq
}

// Sequence returns the current change sequence.
func (p *Publisher) Sequence() int64 {
	return atomic.LoadInt64(&p.seq)
}

// Observer is a local cache of one publisher's value. The fast path of
// Update is one atomic load and an integer compare; the local copy is kept
// in an atomic value so a logger shared by many goroutines may consult its
// observer concurrently.
type Observer struct {
	publisher *Publisher
	seenSeq   int64 // atomic
	local     atomic.Value
}

// NewObserver creates an observer bound to the publisher. The first Update
// call copies the published value. The binding is fixed for the life of the
// observer; group rebinding republishes through the same publisher instead.
func NewObserver(p *Publisher) *Observer {
	o := &Observer{publisher: p}
	o.local.Store(LoggerConfig{})
	return o
}

// Update refreshes the local copy if the published sequence moved. Returns
// true when the local copy changed.
func (o *Observer) Update() bool {
	p := o.publisher
	if p == nil {
		return false
	}
	published := atomic.LoadInt64(&p.seq)
	if published == atomic.LoadInt64(&o.seenSeq) {
		return false
	}
	value, seq := p.Get()
	o.local.Store(value)
	atomic.StoreInt64(&o.seenSeq, seq)
	return true
}

// Config returns the locally cached configuration.
func (o *Observer) Config() LoggerConfig {
	return o.local.Load().(LoggerConfig)
}
