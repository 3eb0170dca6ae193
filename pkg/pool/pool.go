// Package pool implements the capped free-list of reusable log records used
// by the distribution hub for its zero-allocation emit path.
package pool

import (
	"errors"
	"sync"
	"sync/atomic"

	"ssw-proc-logging/pkg/types"
)

// ErrPoolExhausted is returned by Get when the pool is capped and every
// record is currently in flight. Callers fall back to heap allocation.
var ErrPoolExhausted = errors.New("record pool exhausted")

// Config configuração do pool de registros
type Config struct {
	// Capacity limits the number of pool-born records in existence.
	Capacity int `yaml:"capacity"`
}

// RecordPool owns a bounded set of reusable records. Records are handed out
// with one reference; the last release recycles them back here in reset
// state.
type RecordPool struct {
	mutex     sync.Mutex
	free      []*types.LogMessage
	allocated int
	capacity  int

	gets     int64 // atomic
	recycles int64 // atomic
	misses   int64 // atomic
}

// NewRecordPool creates a pool with the given capacity (default 1000).
func NewRecordPool(config Config) *RecordPool {
	if config.Capacity <= 0 {
		config.Capacity = 1000
	}
	return &RecordPool{
		free:     make([]*types.LogMessage, 0, config.Capacity),
		capacity: config.Capacity,
	}
}

// Get returns a record in reset state with one reference, or
// ErrPoolExhausted when the pool is capped and empty.
func (p *RecordPool) Get() (*types.LogMessage, error) {
	p.mutex.Lock()
	if n := len(p.free); n > 0 {
		m := p.free[n-1]
		p.free = p.free[:n-1]
		p.mutex.Unlock()
		atomic.AddInt64(&p.gets, 1)
		return m, nil
	}
	if p.allocated < p.capacity {
		p.allocated++
		p.mutex.Unlock()
		atomic.AddInt64(&p.gets, 1)
		return types.NewPooledMessage(p), nil
	}
	p.mutex.Unlock()
	atomic.AddInt64(&p.misses, 1)
	return nil, ErrPoolExhausted
}

// Recycle implements types.Recycler: reset and reinsert. Called by the
// record itself on its last release.
func (p *RecordPool) Recycle(m *types.LogMessage) {
	m.Reset()
	atomic.AddInt64(&p.recycles, 1)
	p.mutex.Lock()
	p.free = append(p.free, m)
	p.mutex.Unlock()
}

// Size returns the number of records currently idle in the pool.
func (p *RecordPool) Size() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.free)
}

// Allocated returns the number of pool-born records in existence.
func (p *RecordPool) Allocated() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.allocated
}

// Stats returns cumulative counters: gets, recycles, misses.
func (p *RecordPool) Stats() (gets, recycles, misses int64) {
	return atomic.LoadInt64(&p.gets), atomic.LoadInt64(&p.recycles), atomic.LoadInt64(&p.misses)
}
