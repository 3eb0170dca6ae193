package distribution

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"ssw-proc-logging/pkg/logconfig"
	"ssw-proc-logging/pkg/types"
)

const registryShards = 16

// registry interna os nomes de logger em LoggerSourceInfo estáveis.
// O sharding por hash mantém a contenção baixa quando muitos módulos
// registram nomes durante o bootstrap.
type registry struct {
	nextID int64 // atomic; ids a partir de 0
	shards [registryShards]registryShard
}

type registryShard struct {
	mutex  sync.RWMutex
	byName map[string]*types.LoggerSourceInfo
}

func (r *registry) shardFor(name string) *registryShard {
	return &r.shards[xxhash.Sum64String(name)%registryShards]
}

// intern returns the stable source info for the name, creating it with the
// given initial configuration on first sight.
func (r *registry) intern(name string, initial logconfig.LoggerConfig) *types.LoggerSourceInfo {
	shard := r.shardFor(name)

	shard.mutex.RLock()
	src := shard.byName[name]
	shard.mutex.RUnlock()
	if src != nil {
		return src
	}

	shard.mutex.Lock()
	defer shard.mutex.Unlock()
	if src = shard.byName[name]; src != nil {
		return src
	}
	if shard.byName == nil {
		shard.byName = make(map[string]*types.LoggerSourceInfo)
	}
	src = &types.LoggerSourceInfo{
		ID:           int(atomic.AddInt64(&r.nextID, 1) - 1),
		Name:         name,
		ConfigSource: logconfig.NewPublisher(initial),
	}
	shard.byName[name] = src
	return src
}

// lookup returns the source info for a name without creating it.
func (r *registry) lookup(name string) *types.LoggerSourceInfo {
	shard := r.shardFor(name)
	shard.mutex.RLock()
	defer shard.mutex.RUnlock()
	return shard.byName[name]
}

// count returns the number of interned names.
func (r *registry) count() int {
	total := 0
	for i := range r.shards {
		r.shards[i].mutex.RLock()
		total += len(r.shards[i].byName)
		r.shards[i].mutex.RUnlock()
	}
	return total
}

// each visita todas as entradas; usado na propagação de config de grupo
func (r *registry) each(fn func(*types.LoggerSourceInfo)) {
	for i := range r.shards {
		r.shards[i].mutex.RLock()
		for _, src := range r.shards[i].byName {
			fn(src)
		}
		r.shards[i].mutex.RUnlock()
	}
}
