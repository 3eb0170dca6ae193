// Package distribution implements the process-wide hub that interns logger
// names, binds them to sink groups, allocates distribution sequence numbers
// and fans emitted records out to the sinks of the record's group.
//
// The hub is the sole allocator of sequence numbers: 0 means "not emitted",
// positive numbers are monotonic and serve as a single-value completion
// beacon ("has message N been handed to every sink of its group?").
//
// Lifecycle follows the library's explicit bootstrap model: an embedding
// program creates a hub with NewHub, configures groups and sinks, hands the
// hub to its loggers, and tears it down with Shutdown, which drains,
// flushes every sink and shuts them down in reverse order.
package distribution

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"ssw-proc-logging/internal/metrics"
	"ssw-proc-logging/pkg/logconfig"
	"ssw-proc-logging/pkg/pool"
	"ssw-proc-logging/pkg/types"
)

// DefaultGroupName is the group new logger names bind to until reassigned.
const DefaultGroupName = "default"

// Config configuração do hub de distribuição
type Config struct {
	// PoolCapacity limits the record pool shared by release-safe groups.
	PoolCapacity int `yaml:"pool_capacity"`

	// SinkRetryInterval is how long a sink stays quarantined after a
	// delivery failure before the hub retries it.
	SinkRetryInterval time.Duration `yaml:"sink_retry_interval"`

	// WaitPollInterval is the back-off used by WaitForCompletion.
	WaitPollInterval time.Duration `yaml:"wait_poll_interval"`
}

// group is one named set of sinks sharing a LoggerConfig.
type group struct {
	name         string
	config       logconfig.LoggerConfig
	sinks        []types.Sink
	releaseSafe  bool  // todos os sinks suportam release ref-contado
	completedSeq int64 // atomic: entregue a todos os sinks até aqui
}

// sickSink quarantines a failing sink until the retry interval passes.
type sickSink struct {
	failures  int64
	sickSince time.Time
	lastTry   time.Time
}

// Hub is the distribution hub. Safe for concurrent use by any number of
// producers; fan-out is serialized under one internal lock.
type Hub struct {
	config Config
	logger *logrus.Logger

	registry registry
	pool     *pool.RecordPool

	mutex         sync.Mutex
	seq           int64
	groups        map[string]*group
	groupOrder    []string // ordem de criação, para shutdown reverso
	groupBySource map[int]*group
	lastSeqSource map[int]int64
	sick          map[string]*sickSink

	shutdownFlag int32 // atomic
	distributed  int64 // atomic
	sinkFailures int64 // atomic

	internalSource *types.LoggerSourceInfo
}

// NewHub creates a hub with an implicit empty "default" group. The logrus
// logger is the internal bootstrap sink: pipeline failures are reported
// there and never propagate to producers.
func NewHub(config Config, logger *logrus.Logger) *Hub {
	if config.PoolCapacity <= 0 {
		config.PoolCapacity = 1000
	}
	if config.SinkRetryInterval <= 0 {
		config.SinkRetryInterval = 10 * time.Second
	}
	if config.WaitPollInterval <= 0 {
		config.WaitPollInterval = time.Millisecond
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	h := &Hub{
		config:        config,
		logger:        logger,
		pool:          pool.NewRecordPool(pool.Config{Capacity: config.PoolCapacity}),
		groups:        make(map[string]*group),
		groupBySource: make(map[int]*group),
		lastSeqSource: make(map[int]int64),
		sick:          make(map[string]*sickSink),
	}
	h.addGroupLocked(DefaultGroupName, logconfig.ConfigAllNoCallSite)
	h.internalSource = &types.LoggerSourceInfo{
		ID:           types.InternalSourceID,
		Name:         "lmh.internal",
		ConfigSource: logconfig.NewPublisher(logconfig.ConfigAllNoCallSite),
	}
	return h
}

// AddGroup creates (or reconfigures) a named group with the given
// configuration and sinks. Names already bound to the group observe the new
// configuration on their next gate check.
func (h *Hub) AddGroup(name string, config logconfig.LoggerConfig, sinks ...types.Sink) error {
	if name == "" {
		return fmt.Errorf("group name must not be empty")
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()

	g, ok := h.groups[name]
	if !ok {
		g = h.addGroupLocked(name, config)
	}
	config.GroupName = name
	g.config = config
	g.sinks = append([]types.Sink(nil), sinks...)
	g.releaseSafe = len(g.sinks) > 0
	for _, s := range g.sinks {
		if !s.SupportsRefCountedRelease() {
			g.releaseSafe = false
			break
		}
	}
	h.propagateConfigLocked(g)

	h.logger.WithFields(logrus.Fields{
		"group":        name,
		"sinks":        len(sinks),
		"release_safe": g.releaseSafe,
	}).Info("Configured distribution group")
	return nil
}

func (h *Hub) addGroupLocked(name string, config logconfig.LoggerConfig) *group {
	config.GroupName = name
	g := &group{name: name, config: config}
	h.groups[name] = g
	h.groupOrder = append(h.groupOrder, name)
	return g
}

// propagateConfigLocked re-publishes the group's config to every bound name.
func (h *Hub) propagateConfigLocked(g *group) {
	h.registry.each(func(src *types.LoggerSourceInfo) {
		if h.groupBySource[src.ID] == g {
			src.ConfigSource.Set(g.config)
		}
	})
}

// SourceInfo interns a logger name, binding it to the default group on
// first sight.
func (h *Hub) SourceInfo(name string) *types.LoggerSourceInfo {
	if existing := h.registry.lookup(name); existing != nil {
		return existing
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	g := h.groups[DefaultGroupName]
	src := h.registry.intern(name, g.config)
	if _, bound := h.groupBySource[src.ID]; !bound {
		h.groupBySource[src.ID] = g
	}
	return src
}

// SetGroup rebinds a logger name to a different group. The name's observed
// configuration source is republished with the group's configuration.
func (h *Hub) SetGroup(sourceName, groupName string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	g, ok := h.groups[groupName]
	if !ok {
		return fmt.Errorf("unknown group: %q", groupName)
	}
	src := h.registry.intern(sourceName, g.config)
	h.groupBySource[src.ID] = g
	src.ConfigSource.Set(g.config)
	return nil
}

// InternalSource returns the reserved identity used for records the
// pipeline emits about itself.
func (h *Hub) InternalSource() *types.LoggerSourceInfo { return h.internalSource }

// Allocate obtains a record for the source. Pool-born only when the
// source's group consists solely of sinks that support ref-counted release
// and the source's configuration requested pooled allocation; otherwise, or
// when the pool is exhausted, the record is heap-born.
func (h *Hub) Allocate(source *types.LoggerSourceInfo) *types.LogMessage {
	if source != nil {
		h.mutex.Lock()
		g := h.groupBySource[source.ID]
		h.mutex.Unlock()
		if g != nil && g.releaseSafe && g.config.SupportsRefCountedRelease {
			if m, err := h.pool.Get(); err == nil {
				return m
			}
			// pool esgotado: fallback para heap
		}
	}
	return types.NewMessage()
}

// Distribute stamps the record with the next sequence number and hands one
// reference to each healthy sink of the record's group. Takes over the
// caller's reference.
func (h *Hub) Distribute(m *types.LogMessage) {
	if m == nil {
		return
	}
	if atomic.LoadInt32(&h.shutdownFlag) != 0 {
		m.Release()
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	g := h.groupFor(m.Source())
	h.seq++
	seq := h.seq
	m.NoteEmitted(seq)
	if src := m.Source(); src != nil && src.ID >= 0 {
		h.lastSeqSource[src.ID] = seq
	}
	atomic.AddInt64(&h.distributed, 1)
	metrics.RecordsDistributedTotal.WithLabelValues(g.name, m.Sev().String()).Inc()

	targets := h.healthySinksLocked(g)
	if len(targets) == 0 {
		m.Release()
		atomic.StoreInt64(&g.completedSeq, seq)
		return
	}

	// uma referência por sink; a do chamador cobre o primeiro
	m.AddReference(int32(len(targets) - 1))
	for _, s := range targets {
		h.deliverLocked(s, m)
	}
	atomic.StoreInt64(&g.completedSeq, seq)
}

// groupFor resolves the record's group, defaulting for anonymous and
// internal sources.
func (h *Hub) groupFor(src *types.LoggerSourceInfo) *group {
	if src != nil && src.ID >= 0 {
		if g := h.groupBySource[src.ID]; g != nil {
			return g
		}
	}
	return h.groups[DefaultGroupName]
}

// healthySinksLocked filters out quarantined sinks, readmitting them after
// the retry interval.
func (h *Hub) healthySinksLocked(g *group) []types.Sink {
	if len(h.sick) == 0 {
		return g.sinks
	}
	now := time.Now()
	out := make([]types.Sink, 0, len(g.sinks))
	for _, s := range g.sinks {
		state := h.sick[s.Name()]
		if state == nil {
			out = append(out, s)
			continue
		}
		if now.Sub(state.lastTry) >= h.config.SinkRetryInterval {
			state.lastTry = now
			out = append(out, s) // tentativa de recuperação
		}
	}
	return out
}

// deliverLocked hands one reference to the sink, catching panics: a sink
// that fails is reported through the bootstrap logger, quarantined, and its
// reference is released on its behalf.
func (h *Hub) deliverLocked(s types.Sink, m *types.LogMessage) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&h.sinkFailures, 1)
			metrics.SinkFailuresTotal.WithLabelValues(s.Name()).Inc()
			state := h.sick[s.Name()]
			if state == nil {
				state = &sickSink{sickSince: time.Now()}
				h.sick[s.Name()] = state
			}
			state.failures++
			state.lastTry = time.Now()
			metrics.SetComponentHealth("sink", s.Name(), false)
			h.logger.WithFields(logrus.Fields{
				"sink":  s.Name(),
				"panic": fmt.Sprint(r),
			}).Error("Sink failed while handling record; quarantined")
			m.Release()
		} else if _, wasSick := h.sick[s.Name()]; wasSick {
			delete(h.sick, s.Name())
			metrics.SetComponentHealth("sink", s.Name(), true)
			h.logger.WithField("sink", s.Name()).Info("Sink recovered")
		}
	}()
	s.HandleMessage(m)
}

// WaitForCompletion blocks until every record enqueued by the logger id has
// been handed to all sinks of its group, or the timeout elapses.
func (h *Hub) WaitForCompletion(loggerID int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		h.mutex.Lock()
		g := h.groupBySource[loggerID]
		want := h.lastSeqSource[loggerID]
		h.mutex.Unlock()

		if g == nil || want == 0 || atomic.LoadInt64(&g.completedSeq) >= want {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(h.config.WaitPollInterval)
	}
}

// IsShutdown reports whether the hub stopped accepting records.
func (h *Hub) IsShutdown() bool {
	return atomic.LoadInt32(&h.shutdownFlag) != 0
}

// Flush flushes every sink of every group.
func (h *Hub) Flush() {
	for _, s := range h.snapshotSinks() {
		if err := s.Flush(); err != nil {
			h.logger.WithError(err).WithField("sink", s.Name()).Warn("Sink flush failed")
		}
	}
}

// Shutdown stops accepting records, flushes every sink and shuts the sinks
// down in reverse group-creation order. Loggers holding the hub keep
// working but their emits become no-ops.
func (h *Hub) Shutdown() {
	if !atomic.CompareAndSwapInt32(&h.shutdownFlag, 0, 1) {
		return
	}
	h.logger.Info("Shutting down distribution hub")

	h.mutex.Lock()
	var ordered []types.Sink
	seen := make(map[string]bool)
	for i := len(h.groupOrder) - 1; i >= 0; i-- {
		g := h.groups[h.groupOrder[i]]
		for j := len(g.sinks) - 1; j >= 0; j-- {
			s := g.sinks[j]
			if !seen[s.Name()] {
				seen[s.Name()] = true
				ordered = append(ordered, s)
			}
		}
	}
	h.mutex.Unlock()

	for _, s := range ordered {
		if err := s.Flush(); err != nil {
			h.logger.WithError(err).WithField("sink", s.Name()).Warn("Flush during shutdown failed")
		}
	}
	for _, s := range ordered {
		s.Shutdown()
	}
}

// snapshotSinks coleta os sinks únicos de todos os grupos
func (h *Hub) snapshotSinks() []types.Sink {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	var out []types.Sink
	seen := make(map[string]bool)
	for _, name := range h.groupOrder {
		for _, s := range h.groups[name].sinks {
			if !seen[s.Name()] {
				seen[s.Name()] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Stats returns a point-in-time snapshot.
func (h *Hub) Stats() types.HubStats {
	h.mutex.Lock()
	groups := len(h.groups)
	last := h.seq
	h.mutex.Unlock()
	return types.HubStats{
		SourcesInterned:    h.registry.count(),
		GroupsConfigured:   groups,
		RecordsDistributed: atomic.LoadInt64(&h.distributed),
		SinkFailures:       atomic.LoadInt64(&h.sinkFailures),
		LastSequence:       last,
	}
}
