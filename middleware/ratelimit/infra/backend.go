package infra

import (
	"errors"
	"fmt"
	"strings"

	"keyedstate-gateway/middleware/ratelimit/domain"
)

const (
	BackendSharded = "sharded"
	BackendSyncMap = "syncmap"
	BackendLRU     = "lru"
)

var ErrUnknownBackend = errors.New("unknown state backend")

type BackendOptions struct {
	// Shards vale para "sharded" e "lru". 0 => DefaultShards.
	Shards int
	// Capacity é obrigatório para "lru" (máximo de chaves em memória).
	Capacity int
}

// NewBackend escolhe a implementação de domain.CellMap pelo nome, como vem da
// configuração (RATE_BACKEND). Vazio => "sharded".
func NewBackend(name string, opts BackendOptions) (domain.CellMap, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendSharded:
		return NewShardedMap(opts.Shards), nil
	case BackendSyncMap:
		return NewSyncMap(), nil
	case BackendLRU:
		m, err := NewLRUMap(opts.Capacity, opts.Shards)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}
