package infra

import (
	"sync"
	"sync/atomic"

	"keyedstate-gateway/middleware/ratelimit/domain"
)

// SyncMap é um domain.CellMap sem lock de estrutura, em cima de sync.Map.
//
// Uma Cell marcada como removida pode ficar visível por um instante entre a
// marcação e o CompareAndDelete; quem a encontra em LoadOrCreate ajuda a
// removê-la e tenta de novo.
type SyncMap struct {
	m sync.Map // domain.Key -> *domain.Cell
	n atomic.Int64
}

func NewSyncMap() *SyncMap { return &SyncMap{} }

func (m *SyncMap) Load(key domain.Key) (*domain.Cell, bool) {
	v, ok := m.m.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*domain.Cell), true
}

func (m *SyncMap) LoadOrCreate(key domain.Key) *domain.Cell {
	var fresh *domain.Cell
	for {
		if c, ok := m.Load(key); ok {
			if !c.Evicted() {
				return c
			}
			m.delete(key, c)
			continue
		}

		if fresh == nil {
			fresh = domain.NewCell()
		}
		v, loaded := m.m.LoadOrStore(key, fresh)
		if !loaded {
			m.n.Add(1)
			return fresh
		}
		if c := v.(*domain.Cell); !c.Evicted() {
			return c
		}
	}
}

func (m *SyncMap) delete(key domain.Key, c *domain.Cell) {
	if m.m.CompareAndDelete(key, c) {
		m.n.Add(-1)
	}
}

func (m *SyncMap) Retain(keep func(domain.Key, *domain.Cell) bool) {
	m.m.Range(func(k, v any) bool {
		key, c := k.(domain.Key), v.(*domain.Cell)
		if !keep(key, c) {
			m.delete(key, c)
		}
		return true
	})
}

func (m *SyncMap) Len() int {
	n := m.n.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
