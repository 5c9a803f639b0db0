package application

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor chama Service.RetainRecent periodicamente para liberar memória de
// chaves que não aparecem mais.
type Janitor struct {
	Service *Service
	Every   time.Duration
	Log     *zap.Logger
	// OnSweep é chamado após cada varredura efetiva (ex.: métricas).
	OnSweep func(removed, remaining int)
}

// SweepOnce faz uma varredura se houver chaves. Devolve quantas saíram.
func (j Janitor) SweepOnce() int {
	if j.Service == nil || j.Service.IsEmpty() {
		return 0
	}

	started := time.Now()
	removed := j.Service.RetainRecent()
	remaining := j.Service.Len()

	if j.OnSweep != nil {
		j.OnSweep(removed, remaining)
	}
	if j.Log != nil {
		j.Log.Debug("ratelimit sweep",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining),
			zap.Duration("took", time.Since(started)),
		)
	}
	return removed
}

// Run bloqueia até ctx encerrar, varrendo a cada Every.
// Every <= 0 desliga o janitor (retorna na hora).
func (j Janitor) Run(ctx context.Context) error {
	if j.Every <= 0 || j.Service == nil {
		return nil
	}

	t := time.NewTicker(j.Every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			j.SweepOnce()
		}
	}
}

// Start roda Run numa goroutine. Pare cancelando o contexto.
func (j Janitor) Start(ctx context.Context) {
	go func() { _ = j.Run(ctx) }()
}
