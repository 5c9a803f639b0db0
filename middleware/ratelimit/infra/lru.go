package infra

import (
	"fmt"
	"sync"
	"sync/atomic"

	"keyedstate-gateway/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type lruShard struct {
	mu    sync.Mutex
	cache *simplelru.LRU[domain.Key, *domain.Cell]
	size  int
}

// LRUMap é um domain.CellMap com capacidade máxima, dividido em shards LRU.
//
// Quando uma shard enche, a chave usada há mais tempo sai e a Cell dela é
// marcada como removida. Perder o estado de uma chave só deixa o limiter mais
// permissivo para ela, nunca mais restritivo.
type LRUMap struct {
	shards    []lruShard
	mask      uint64
	evictions atomic.Int64
}

// lruMinPerShard é o mínimo de chaves por shard. Abaixo disso duas chaves
// ativas na mesma shard se expulsam a cada requisição e ambas voltam a None.
const lruMinPerShard = 16

// NewLRUMap divide capacity entre as shards sem ultrapassá-la: a soma das
// shards é exatamente capacity. O número de shards é reduzido (potência de 2)
// até cada uma comportar ao menos lruMinPerShard chaves; com capacity menor
// que isso fica uma shard só.
func NewLRUMap(capacity, shards int) (*LRUMap, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("lru capacity must be > 0, got %d", capacity)
	}
	size := lruShardCount(capacity, shards)
	per, extra := capacity/size, capacity%size

	m := &LRUMap{
		shards: make([]lruShard, size),
		mask:   uint64(size - 1),
	}
	for i := range m.shards {
		n := per
		if i < extra {
			n++
		}
		cache, err := simplelru.NewLRU[domain.Key, *domain.Cell](n, func(_ domain.Key, c *domain.Cell) {
			c.Evict()
		})
		if err != nil {
			return nil, err
		}
		m.shards[i].cache = cache
		m.shards[i].size = n
	}
	return m, nil
}

func lruShardCount(capacity, shards int) int {
	if shards <= 0 {
		shards = DefaultShards
	}
	size := 1
	for size < shards {
		size <<= 1
	}
	for size > 1 && capacity/size < lruMinPerShard {
		size >>= 1
	}
	return size
}

// Shards devolve o número efetivo de shards (pode ser menor que o pedido).
func (m *LRUMap) Shards() int { return len(m.shards) }

// Capacity devolve a soma das capacidades das shards.
func (m *LRUMap) Capacity() int {
	n := 0
	for i := range m.shards {
		n += m.shards[i].size
	}
	return n
}

func (m *LRUMap) getShard(key domain.Key) *lruShard {
	return &m.shards[xxhash.Sum64String(string(key))&m.mask]
}

// Load também atualiza a recência da chave, por isso usa o lock exclusivo.
func (m *LRUMap) Load(key domain.Key) (*domain.Cell, bool) {
	s := m.getShard(key)
	s.mu.Lock()
	c, ok := s.cache.Get(key)
	s.mu.Unlock()
	return c, ok
}

func (m *LRUMap) LoadOrCreate(key domain.Key) *domain.Cell {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cache.Get(key); ok && !c.Evicted() {
		return c
	}
	c := domain.NewCell()
	if s.cache.Add(key, c) {
		m.evictions.Add(1)
	}
	return c
}

func (m *LRUMap) Retain(keep func(domain.Key, *domain.Cell) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for _, k := range s.cache.Keys() {
			c, ok := s.cache.Peek(k)
			if ok && !keep(k, c) {
				s.cache.Remove(k)
			}
		}
		s.mu.Unlock()
	}
}

func (m *LRUMap) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += s.cache.Len()
		s.mu.Unlock()
	}
	return n
}

// Evictions conta as chaves que saíram por falta de capacidade (não inclui a
// retenção).
func (m *LRUMap) Evictions() int64 { return m.evictions.Load() }
