package domain

// CellMap é o mínimo que o store exige de um mapa concorrente.
//
// Implementações podem usar lock por shard, sync.Map, LRU, etc. O importante:
//   - LoadOrCreate cria no máximo uma Cell por chave, mesmo com chamadas
//     concorrentes, e nunca devolve uma Cell já marcada como evicted;
//   - Retain não segura lock global durante a varredura inteira;
//   - Len é aproximado sob concorrência.
type CellMap interface {
	Load(Key) (*Cell, bool)
	LoadOrCreate(Key) *Cell
	// Retain remove toda entrada para a qual keep devolve false.
	Retain(keep func(Key, *Cell) bool)
	Len() int
}

// StateStore é o contrato usado pelo limiter: medir e substituir o estado de
// uma chave de forma atômica.
//
// O erro de f volta sem wrap.
type StateStore interface {
	MeasureAndReplace(key Key, f UpdateFunc) error
}

// ShrinkableStore adiciona a retenção (limpeza de chaves antigas) e o tamanho.
type ShrinkableStore interface {
	StateStore
	// RetainRecent remove as chaves cujo estado é estritamente anterior a
	// cutoff. Chaves ainda sem estado sobrevivem.
	RetainRecent(cutoff Nanos)
	// Len é aproximado quando há escrita concorrente.
	Len() int
	IsEmpty() bool
}

// MeasureAndReplace é a forma com resultado tipado: f devolve o resultado T
// da decisão junto com o próximo estado.
//
// Em caso de erro o zero de T é devolvido e o estado não muda.
func MeasureAndReplace[T any](s StateStore, key Key, f func(prev State) (T, Nanos, error)) (T, error) {
	var out T
	err := s.MeasureAndReplace(key, func(prev State) (Nanos, error) {
		res, next, err := f(prev)
		if err != nil {
			return 0, err
		}
		out = res
		return next, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
