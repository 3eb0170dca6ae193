// Package queuesink wraps any sink in a bounded single-consumer queue with
// its own delivery goroutine, so producers never block on the target's I/O.
//
// Overflow drops the oldest queued record and accounts for it; the drops
// are periodically summarized into the target. Flush is
// flush-at-sequence-number: it marks the currently last enqueued sequence
// and returns once that sequence has been handed to the target. The target's
// own Flush follows on the delivery goroutine and may still be pending when
// Flush returns.
package queuesink

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"ssw-proc-logging/internal/metrics"
	"ssw-proc-logging/pkg/severity"
	"ssw-proc-logging/pkg/types"
)

// Config configuração do adapter de fila
type Config struct {
	// Name identifies the adapter; defaults to "queued-<target>".
	Name string `yaml:"name"`

	// Capacity is the fixed ring size (default 1000).
	Capacity int `yaml:"capacity"`

	// WakeupThreshold is the queue depth that signals the delivery
	// goroutine eagerly (default 100).
	WakeupThreshold int `yaml:"wakeup_threshold"`

	// BatchSize limits how many records one delivery pass hands to the
	// target (default 500).
	BatchSize int `yaml:"batch_size"`

	// IdleWait is the delivery goroutine's wait when there is nothing to
	// do (default 50ms).
	IdleWait time.Duration `yaml:"idle_wait"`

	// FlushPollInterval is the back-off used while Flush waits (default
	// 10ms).
	FlushPollInterval time.Duration `yaml:"flush_poll_interval"`
}

// DeliveredListener is notified after each delivery pass with the highest
// delivered sequence number.
type DeliveredListener func(lastDeliveredSeq int64)

// QueueSink is the bounded queue sink adapter. It owns exactly one
// background delivery goroutine.
type QueueSink struct {
	config Config
	logger *logrus.Logger
	target types.Sink

	mutex sync.Mutex
	ring  []*types.LogMessage
	head  int // próximo a sair
	depth int

	enqueued  int64
	delivered int64 // contabilizado na saída do ring
	dropped   int64

	lastEnqueuedSeq  int64 // atomic
	lastDeliveredSeq int64 // atomic

	flushAfterSeq  int64 // atomic, CAS a partir de 0
	flushRequested int32 // atomic

	enabled  int32 // atomic: aceita novos registros
	shutdown int32 // atomic

	lastSummarizedDrops int64 // só a goroutine de entrega toca

	wake chan struct{}
	done chan struct{}

	listenerMutex sync.Mutex
	listenerNext  int
	listeners     map[int]DeliveredListener

	internalSource *types.LoggerSourceInfo
}

// New wraps the target sink and starts the delivery goroutine.
func New(config Config, target types.Sink, logger *logrus.Logger) *QueueSink {
	if config.Name == "" {
		config.Name = "queued-" + target.Name()
	}
	if config.Capacity <= 0 {
		config.Capacity = 1000
	}
	if config.WakeupThreshold <= 0 {
		config.WakeupThreshold = 100
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.IdleWait <= 0 {
		config.IdleWait = 50 * time.Millisecond
	}
	if config.FlushPollInterval <= 0 {
		config.FlushPollInterval = 10 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	q := &QueueSink{
		config:    config,
		logger:    logger,
		target:    target,
		ring:      make([]*types.LogMessage, config.Capacity),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		listeners: make(map[int]DeliveredListener),
		internalSource: &types.LoggerSourceInfo{
			ID:   types.InternalSourceID,
			Name: config.Name,
		},
	}
	atomic.StoreInt32(&q.enabled, 1)

	logger.WithFields(logrus.Fields{
		"sink":     config.Name,
		"target":   target.Name(),
		"capacity": config.Capacity,
	}).Info("Starting queue sink adapter")
	go q.run()
	return q
}

func (q *QueueSink) Name() string { return q.config.Name }

// SupportsRefCountedRelease mirrors the target: the adapter itself releases
// or forwards every reference it is handed.
func (q *QueueSink) SupportsRefCountedRelease() bool {
	return q.target.SupportsRefCountedRelease()
}

// HandleMessage appends the record to the ring. When the ring is full the
// oldest record is dropped and accounted. Never blocks beyond the internal
// mutex.
func (q *QueueSink) HandleMessage(m *types.LogMessage) {
	if m == nil {
		return
	}
	if atomic.LoadInt32(&q.enabled) == 0 {
		m.Release()
		return
	}

	q.mutex.Lock()
	if q.depth == len(q.ring) {
		// drop-oldest
		oldest := q.ring[q.head]
		q.ring[q.head] = nil
		q.head = (q.head + 1) % len(q.ring)
		q.depth--
		q.dropped++
		metrics.QueueDroppedTotal.WithLabelValues(q.config.Name).Inc()
		oldest.Release()
	}
	q.ring[(q.head+q.depth)%len(q.ring)] = m
	q.depth++
	q.enqueued++
	atomic.StoreInt64(&q.lastEnqueuedSeq, m.SeqNum())
	depth := q.depth
	q.mutex.Unlock()

	metrics.QueueDepth.WithLabelValues(q.config.Name).Set(float64(depth))
	if depth >= q.config.WakeupThreshold {
		q.signal()
	}
}

// HandleMessages is the bulk enqueue path.
func (q *QueueSink) HandleMessages(batch []*types.LogMessage) {
	for _, m := range batch {
		q.HandleMessage(m)
	}
}

// IsDeliveryInProgress reports whether sequence n was enqueued and not yet
// delivered, at snapshot time.
func (q *QueueSink) IsDeliveryInProgress(n int64) bool {
	if n == 0 {
		return false
	}
	return atomic.LoadInt64(&q.lastDeliveredSeq) < n && n <= atomic.LoadInt64(&q.lastEnqueuedSeq)
}

// Flush marks the last enqueued sequence, wakes the delivery goroutine and
// polls until that sequence has been delivered. The delivery goroutine then
// flushes the target; Flush does not wait for that target flush.
func (q *QueueSink) Flush() error {
	last := atomic.LoadInt64(&q.lastEnqueuedSeq)
	if last != 0 {
		atomic.CompareAndSwapInt64(&q.flushAfterSeq, 0, last)
	} else {
		atomic.StoreInt32(&q.flushRequested, 1)
	}
	q.signal()

	for q.IsDeliveryInProgress(last) {
		if atomic.LoadInt32(&q.shutdown) != 0 {
			break
		}
		time.Sleep(q.config.FlushPollInterval)
	}
	return nil
}

// Shutdown stops accepting records, waits for the delivery goroutine to
// drain the ring and shuts the target down.
func (q *QueueSink) Shutdown() {
	if atomic.CompareAndSwapInt32(&q.enabled, 1, 0) {
		q.signal()
	}
	<-q.done
	atomic.StoreInt32(&q.shutdown, 1)
}

// AddDeliveredListener registers a listener; returns its removal id.
func (q *QueueSink) AddDeliveredListener(fn DeliveredListener) int {
	q.listenerMutex.Lock()
	defer q.listenerMutex.Unlock()
	q.listenerNext++
	q.listeners[q.listenerNext] = fn
	return q.listenerNext
}

// RemoveDeliveredListener unregisters a listener. Safe to call from inside
// the listener itself.
func (q *QueueSink) RemoveDeliveredListener(id int) {
	q.listenerMutex.Lock()
	defer q.listenerMutex.Unlock()
	delete(q.listeners, id)
}

// Stats returns a consistent snapshot.
func (q *QueueSink) Stats() types.QueueStats {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return types.QueueStats{
		Enqueued:         q.enqueued,
		Delivered:        q.delivered,
		Dropped:          q.dropped,
		Depth:            q.depth,
		Capacity:         len(q.ring),
		LastEnqueuedSeq:  atomic.LoadInt64(&q.lastEnqueuedSeq),
		LastDeliveredSeq: atomic.LoadInt64(&q.lastDeliveredSeq),
	}
}

func (q *QueueSink) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run is the delivery goroutine.
func (q *QueueSink) run() {
	defer close(q.done)

	for {
		// zera o evento de wake antes de olhar a fila
		select {
		case <-q.wake:
		default:
		}

		deliveredSome := q.deliverBatch()
		flushedSome := q.serviceFlush()

		if !deliveredSome && !flushedSome {
			if atomic.LoadInt32(&q.enabled) == 0 {
				break
			}
			select {
			case <-q.wake:
			case <-time.After(q.config.IdleWait):
			}
		}
	}

	// drena o que sobrou depois de enabled cair
	for q.deliverBatch() {
	}
	// passada extra de serviço: o resumo de drops também precisa sair
	q.summarizeDrops(true)
	if err := q.target.Flush(); err != nil {
		q.logger.WithError(err).WithField("sink", q.config.Name).Warn("Target flush on shutdown failed")
	}
	q.target.Shutdown()
	q.logger.WithField("sink", q.config.Name).Info("Queue sink adapter stopped")
}

// deliverBatch moves up to BatchSize records from the ring to the target.
// Returns true when any record moved.
func (q *QueueSink) deliverBatch() bool {
	q.mutex.Lock()
	n := q.depth
	if n == 0 {
		q.mutex.Unlock()
		return false
	}
	if n > q.config.BatchSize {
		n = q.config.BatchSize
	}
	batch := make([]*types.LogMessage, n)
	for i := 0; i < n; i++ {
		batch[i] = q.ring[q.head]
		q.ring[q.head] = nil
		q.head = (q.head + 1) % len(q.ring)
	}
	q.depth -= n
	q.delivered += int64(n)
	depth := q.depth
	q.mutex.Unlock()

	// o seq precisa ser lido antes da entrega: o target libera a
	// referência e um registro pooled pode ser reciclado na volta
	maxSeq := batch[n-1].SeqNum()
	q.target.HandleMessages(batch)
	atomic.StoreInt64(&q.lastDeliveredSeq, maxSeq)
	metrics.QueueDepth.WithLabelValues(q.config.Name).Set(float64(depth))

	q.summarizeDrops(false)
	q.notifyDelivered(maxSeq)
	return true
}

// serviceFlush promotes flush-at-sequence to a target flush once the marked
// sequence left the ring. Returns true when the target was flushed.
func (q *QueueSink) serviceFlush() bool {
	if seq := atomic.LoadInt64(&q.flushAfterSeq); seq != 0 {
		if atomic.LoadInt64(&q.lastDeliveredSeq) >= seq {
			atomic.StoreInt32(&q.flushRequested, 1)
			atomic.StoreInt64(&q.flushAfterSeq, 0)
		}
	}
	if atomic.CompareAndSwapInt32(&q.flushRequested, 1, 0) {
		if err := q.target.Flush(); err != nil {
			q.logger.WithError(err).WithField("sink", q.config.Name).Warn("Target flush failed")
		}
		return true
	}
	return false
}

// summarizeDrops emits one diagnostic record into the target when drops
// accumulated since the last summary. Best effort: the summary itself never
// goes through the ring.
func (q *QueueSink) summarizeDrops(final bool) {
	q.mutex.Lock()
	dropped := q.dropped
	q.mutex.Unlock()
	if dropped <= q.lastSummarizedDrops {
		return
	}
	delta := dropped - q.lastSummarizedDrops
	q.lastSummarizedDrops = dropped

	body := fmt.Sprintf("queue overflow: dropped %d records (total %d)", delta, dropped)
	if final {
		body = fmt.Sprintf("queue shutdown: dropped %d records in total", dropped)
	}
	m := types.NewMessage()
	m.Setup(q.internalSource, severity.Warning, body)
	m.NoteEmitted(0)
	q.target.HandleMessage(m)

	q.logger.WithFields(logrus.Fields{
		"sink":    q.config.Name,
		"dropped": dropped,
	}).Warn("Queue sink dropped records")
}

// notifyDelivered iterates a snapshot of the listener list.
func (q *QueueSink) notifyDelivered(lastSeq int64) {
	q.listenerMutex.Lock()
	snapshot := make([]DeliveredListener, 0, len(q.listeners))
	for _, fn := range q.listeners {
		snapshot = append(snapshot, fn)
	}
	q.listenerMutex.Unlock()
	for _, fn := range snapshot {
		fn(lastSeq)
	}
}
