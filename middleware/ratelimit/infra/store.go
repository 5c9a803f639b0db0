package infra

import (
	"keyedstate-gateway/middleware/ratelimit/domain"
)

// Store adapta qualquer domain.CellMap ao contrato domain.ShrinkableStore.
//
// É aqui que mora o protocolo medir-e-substituir: tenta a Cell existente
// (caminho rápido, sem criação) e só cai no LoadOrCreate quando a chave não
// existe ou a Cell encontrada acabou de ser removida pela retenção.
type Store struct {
	cells domain.CellMap
}

func NewStore(cells domain.CellMap) *Store {
	if cells == nil {
		cells = NewShardedMap(DefaultShards)
	}
	return &Store{cells: cells}
}

// MeasureAndReplace implementa domain.StateStore.
//
// f é avaliada uma única vez, sob o lock da Cell que efetivamente recebe o
// novo valor. Se a Cell já estava marcada como removida, f não é chamada e o
// caminho de criação relê o mapa: a chave recomeça do zero (None).
func (s *Store) MeasureAndReplace(key domain.Key, f domain.UpdateFunc) error {
	if c, ok := s.cells.Load(key); ok {
		if applied, err := c.MeasureAndReplace(f); applied {
			return err
		}
	}
	for {
		c := s.cells.LoadOrCreate(key)
		if applied, err := c.MeasureAndReplace(f); applied {
			return err
		}
	}
}

// RetainRecent implementa domain.ShrinkableStore.
func (s *Store) RetainRecent(cutoff domain.Nanos) {
	s.Sweep(cutoff)
}

// Sweep é RetainRecent devolvendo quantas chaves saíram. Usado pelo janitor
// para logs e métricas.
func (s *Store) Sweep(cutoff domain.Nanos) int {
	removed := 0
	s.cells.Retain(func(_ domain.Key, c *domain.Cell) bool {
		if c.EvictIfOlder(cutoff) {
			removed++
			return false
		}
		return true
	})
	return removed
}

// Len é aproximado: inserções/remoções concorrentes podem não aparecer.
func (s *Store) Len() int { return s.cells.Len() }

func (s *Store) IsEmpty() bool { return s.cells.Len() == 0 }

// Peek lê o estado atual de key sem criar a entrada. Só para introspecção.
func (s *Store) Peek(key domain.Key) (domain.State, bool) {
	c, ok := s.cells.Load(key)
	if !ok || c.Evicted() {
		return domain.None(), false
	}
	return c.Snapshot(), true
}
