package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"math"
	"time"
)

type Key string

// Nanos é um ponto no eixo de tempo monotônico do limiter, em nanossegundos
// desde o instante de referência (normalmente a criação do limiter).
//
// O core só compara valores de Nanos; a aritmética fica com a função de decisão.
type Nanos uint64

func NanosFromDuration(d time.Duration) Nanos {
	if d <= 0 {
		return 0
	}
	return Nanos(d)
}

func (n Nanos) Duration() time.Duration {
	if n > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(n)
}

func (n Nanos) Before(other Nanos) bool { return n < other }

// Add satura em MaxUint64 em vez de dar a volta.
func (n Nanos) Add(d Nanos) Nanos {
	if n > math.MaxUint64-d {
		return math.MaxUint64
	}
	return n + d
}

// Sub satura em zero.
func (n Nanos) Sub(d Nanos) Nanos {
	if d > n {
		return 0
	}
	return n - d
}

// State é o conteúdo de uma Cell: ausente (chave nunca medida) ou o último
// marcador calculado pela função de decisão.
//
// "Ausente" é uma variante explícita, não um Nanos mágico: um zero legítimo
// continua sendo Some(0).
type State struct {
	at  Nanos
	set bool
}

func None() State { return State{} }

func Some(n Nanos) State { return State{at: n, set: true} }

func (s State) Get() (Nanos, bool) { return s.at, s.set }

func (s State) IsNone() bool { return !s.set }

// OrElse devolve o valor armazenado ou def quando ausente.
func (s State) OrElse(def Nanos) Nanos {
	if !s.set {
		return def
	}
	return s.at
}

// OlderThan reporta se o valor é estritamente anterior a cutoff.
// Um estado ausente nunca é mais velho que nada.
func (s State) OlderThan(cutoff Nanos) bool {
	return s.set && s.at < cutoff
}

type Decision struct {
	Allowed bool
	// Remaining é quantas células ainda passariam agora, sem esperar.
	Remaining int
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// Quota descreve quantas células podem passar de uma vez (Burst) e em quanto
// tempo esse volume é reposto por inteiro (Period).
//
// Ex.: Quota{Burst: 10, Period: time.Second} => 10 rps com rajada de 10.
type Quota struct {
	Burst  int
	Period time.Duration
}

func PerSecond(n int) Quota { return Quota{Burst: n, Period: time.Second} }

func PerMinute(n int) Quota { return Quota{Burst: n, Period: time.Minute} }

// QuotaFromRPS monta uma Quota a partir de uma taxa em req/s e uma rajada.
// Usado pela configuração por variável de ambiente (RATE_RPS / RATE_BURST).
func QuotaFromRPS(rps float64, burst int) Quota {
	if rps <= 0 || burst <= 0 {
		return Quota{}
	}
	interval := time.Duration(float64(time.Second) / rps)
	return Quota{Burst: burst, Period: interval * time.Duration(burst)}
}

// ReplenishInterval é o tempo para repor uma única célula.
func (q Quota) ReplenishInterval() time.Duration {
	if q.Burst <= 0 {
		return 0
	}
	return q.Period / time.Duration(q.Burst)
}

func (q Quota) RPS() float64 {
	if q.Period <= 0 {
		return 0
	}
	return float64(q.Burst) / q.Period.Seconds()
}

func (q Quota) Valid() bool {
	return q.Burst > 0 && q.ReplenishInterval() > 0
}
