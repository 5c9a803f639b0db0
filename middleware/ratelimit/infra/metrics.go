package infra

import (
	"keyedstate-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics expõe decisões, varreduras e tamanho do store para o Prometheus.
//
// Métodos aceitam receiver nil (métricas desligadas).
type Metrics struct {
	decisions *prometheus.CounterVec
	sweeps    prometheus.Counter
	swept     prometheus.Counter
	keys      prometheus.GaugeFunc
}

// NewMetrics registra os coletores em reg. O gauge de chaves lê store.Len()
// a cada scrape.
func NewMetrics(reg prometheus.Registerer, namespace string, store domain.ShrinkableStore) (*Metrics, error) {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by result.",
		}, []string{"result"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "sweeps_total",
			Help:      "Retention sweeps executed.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "swept_keys_total",
			Help:      "Keys removed by retention sweeps.",
		}),
		keys: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "keys",
			Help:      "Approximate number of keys held in memory.",
		}, func() float64 { return float64(store.Len()) }),
	}

	for _, c := range []prometheus.Collector{m.decisions, m.sweeps, m.swept, m.keys} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveDecision(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.decisions.WithLabelValues("allowed").Inc()
		return
	}
	m.decisions.WithLabelValues("denied").Inc()
}

func (m *Metrics) ObserveSweep(removed, _ int) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.swept.Add(float64(removed))
}
