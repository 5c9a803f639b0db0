package application

import (
	"errors"
	"fmt"
	"time"

	"keyedstate-gateway/middleware/ratelimit/domain"
)

// ErrInsufficientCapacity indica um pedido de n células maior que o burst da
// quota: nunca vai passar, por mais que se espere.
var ErrInsufficientCapacity = errors.New("ratelimit: batch larger than burst")

// NotUntil é o erro da função de decisão quando a chave está acima da quota.
type NotUntil struct {
	// At é o instante (no eixo do limiter) em que a chamada passaria.
	At domain.Nanos
	// Wait é quanto falta a partir do "agora" usado na decisão.
	Wait time.Duration
}

func (e *NotUntil) Error() string {
	return fmt.Sprintf("ratelimit: not allowed for another %s", e.Wait)
}

// Service concentra a regra de aplicação do rate limit (GCRA por chave).
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// O estado de cada chave é o TAT (theoretical arrival time) guardado no store.
type Service struct {
	store domain.ShrinkableStore
	quota domain.Quota
	clock domain.Clock
	start time.Time

	t   domain.Nanos // intervalo de reposição de uma célula
	tau domain.Nanos // t * burst
}

func NewService(store domain.ShrinkableStore, quota domain.Quota, clock domain.Clock) (*Service, error) {
	if !quota.Valid() {
		return nil, fmt.Errorf("invalid quota: burst=%d period=%s", quota.Burst, quota.Period)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	t := domain.NanosFromDuration(quota.ReplenishInterval())
	return &Service{
		store: store,
		quota: quota,
		clock: clock,
		start: clock.Now(),
		t:     t,
		tau:   t * domain.Nanos(quota.Burst),
	}, nil
}

func (s *Service) Quota() domain.Quota { return s.quota }

func (s *Service) RPS() float64 { return s.quota.RPS() }

func (s *Service) Burst() int { return s.quota.Burst }

// now devolve o "agora" no eixo do limiter (nanos desde start).
func (s *Service) now() domain.Nanos {
	return domain.NanosFromDuration(s.clock.Now().Sub(s.start))
}

// decide é a função pura passada ao store. Para n células:
//
//	tat      = estado anterior, ou now se a chave é nova
//	earliest = tat + n*t - tau
//	passa se earliest <= now; novo estado = max(tat, now) + n*t
func (s *Service) decide(now domain.Nanos, n int) func(domain.State) (domain.Decision, domain.Nanos, error) {
	inc := s.t * domain.Nanos(n)
	return func(prev domain.State) (domain.Decision, domain.Nanos, error) {
		tat := prev.OrElse(now)
		earliest := tat.Add(inc).Sub(s.tau)
		if now.Before(earliest) {
			return domain.Decision{}, 0, &NotUntil{At: earliest, Wait: (earliest - now).Duration()}
		}

		next := tat
		if next.Before(now) {
			next = now
		}
		next = next.Add(inc)

		remaining := 0
		if horizon := now.Add(s.tau); next < horizon {
			remaining = int((horizon - next) / s.t)
		}
		return domain.Decision{Allowed: true, Remaining: remaining}, next, nil
	}
}

// CheckN mede n células para key. Devolve nil, *NotUntil ou
// ErrInsufficientCapacity.
func (s *Service) CheckN(key domain.Key, n int) (domain.Decision, error) {
	if s.store == nil {
		return domain.Decision{Allowed: true, Remaining: s.quota.Burst}, nil
	}
	if n <= 0 {
		// não consome nada e não lê o estado: Remaining não é conhecido.
		return domain.Decision{Allowed: true}, nil
	}
	if n > s.quota.Burst {
		return domain.Decision{}, ErrInsufficientCapacity
	}
	return domain.MeasureAndReplace(s.store, key, s.decide(s.now(), n))
}

func (s *Service) Check(key domain.Key) (domain.Decision, error) {
	return s.CheckN(key, 1)
}

// Decide traduz o resultado de Check numa domain.Decision.
func (s *Service) Decide(key domain.Key) domain.Decision {
	return s.DecideN(key, 1)
}

func (s *Service) DecideN(key domain.Key, n int) domain.Decision {
	dec, err := s.CheckN(key, n)
	if err == nil {
		return dec
	}
	var nu *NotUntil
	if errors.As(err, &nu) {
		return domain.Decision{Allowed: false, RetryAfter: nu.Wait}
	}
	// ErrInsufficientCapacity: não há espera que resolva.
	return domain.Decision{Allowed: false}
}

// sweeper é implementado por stores que sabem contar o que removeram
// (ex.: infra.Store).
type sweeper interface {
	Sweep(cutoff domain.Nanos) int
}

// RetainRecent descarta as chaves cujo TAT já ficou para trás: para elas o
// estado é equivalente ao de uma chave nova. Devolve quantas saíram.
func (s *Service) RetainRecent() int {
	if s.store == nil {
		return 0
	}
	cutoff := s.now()
	if sw, ok := s.store.(sweeper); ok {
		return sw.Sweep(cutoff)
	}
	before := s.store.Len()
	s.store.RetainRecent(cutoff)
	if removed := before - s.store.Len(); removed > 0 {
		return removed
	}
	return 0
}

// Len é o número aproximado de chaves em memória.
func (s *Service) Len() int {
	if s.store == nil {
		return 0
	}
	return s.store.Len()
}

func (s *Service) IsEmpty() bool {
	return s.store == nil || s.store.IsEmpty()
}
