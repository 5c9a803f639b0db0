package infra

import (
	"sync"

	"keyedstate-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

const DefaultShards = 64

// shard é uma partição do mapa. O RWMutex protege só a estrutura (inserção e
// remoção); o conteúdo de cada Cell tem o próprio lock.
type shard struct {
	mu    sync.RWMutex
	items map[domain.Key]*domain.Cell
}

// ShardedMap é um domain.CellMap com lock por shard.
//
// Leituras da mesma shard não se bloqueiam (RLock). Só criação e retenção
// pegam o lock exclusivo, e a retenção trava uma shard por vez.
type ShardedMap struct {
	shards []shard
	mask   uint64
}

// NewShardedMap arredonda n para a próxima potência de dois.
func NewShardedMap(n int) *ShardedMap {
	if n <= 0 {
		n = DefaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	m := &ShardedMap{
		shards: make([]shard, size),
		mask:   uint64(size - 1),
	}
	for i := range m.shards {
		m.shards[i].items = make(map[domain.Key]*domain.Cell)
	}
	return m
}

func (m *ShardedMap) getShard(key domain.Key) *shard {
	return &m.shards[xxhash.Sum64String(string(key))&m.mask]
}

func (m *ShardedMap) Shards() int { return len(m.shards) }

func (m *ShardedMap) Load(key domain.Key) (*domain.Cell, bool) {
	s := m.getShard(key)
	s.mu.RLock()
	c, ok := s.items[key]
	s.mu.RUnlock()
	return c, ok
}

// LoadOrCreate cria a Cell sob o lock exclusivo da shard; concorrentes com a
// mesma chave convergem para a mesma Cell.
func (m *ShardedMap) LoadOrCreate(key domain.Key) *domain.Cell {
	s := m.getShard(key)

	s.mu.RLock()
	c, ok := s.items[key]
	s.mu.RUnlock()
	if ok && !c.Evicted() {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok = s.items[key]
	if !ok || c.Evicted() {
		c = domain.NewCell()
		s.items[key] = c
	}
	return c
}

func (m *ShardedMap) Retain(keep func(domain.Key, *domain.Cell) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, c := range s.items {
			if !keep(k, c) {
				delete(s.items, k)
			}
		}
		s.mu.Unlock()
	}
}

func (m *ShardedMap) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
