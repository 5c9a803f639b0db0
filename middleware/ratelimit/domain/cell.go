package domain

import "sync"

// UpdateFunc recebe o estado anterior da chave e devolve o próximo valor.
// Se devolver erro, o estado da Cell permanece exatamente como estava.
//
// Deve ser pura: é avaliada uma única vez por chamada efetivada, sob o lock
// da Cell.
type UpdateFunc func(prev State) (Nanos, error)

// Cell guarda o último estado conhecido de uma chave.
//
// Toda leitura para decisão e toda escrita passam por MeasureAndReplace. Uma
// Cell removida pela retenção fica marcada como evicted e nunca mais aceita
// atualizações: quem chegou tarde precisa voltar ao mapa e obter a Cell nova.
type Cell struct {
	mu      sync.Mutex
	state   State
	evicted bool
}

func NewCell() *Cell { return &Cell{} }

// MeasureAndReplace aplica f ao estado atual e instala o resultado se f não
// falhar. applied=false significa que a Cell já foi removida do mapa e f não
// foi chamada.
func (c *Cell) MeasureAndReplace(f UpdateFunc) (applied bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.evicted {
		return false, nil
	}
	next, err := f(c.state)
	if err != nil {
		return true, err
	}
	c.state = Some(next)
	return true, nil
}

// EvictIfOlder marca a Cell como removida quando o estado é estritamente
// anterior a cutoff. Devolve true se a Cell deve sair do mapa (inclusive se
// já estava marcada).
func (c *Cell) EvictIfOlder(cutoff Nanos) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.evicted {
		return true
	}
	if !c.state.OlderThan(cutoff) {
		return false
	}
	c.evicted = true
	return true
}

// Evict marca a Cell como removida incondicionalmente (ex.: eviction por
// capacidade).
func (c *Cell) Evict() {
	c.mu.Lock()
	c.evicted = true
	c.mu.Unlock()
}

func (c *Cell) Evicted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evicted
}

// Snapshot lê o estado atual. Serve para introspecção e testes; decisões
// devem usar MeasureAndReplace.
func (c *Cell) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
