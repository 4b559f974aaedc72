package infra

import (
	"context"
	"strconv"

	"api-sheriff/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore expõe as decisões como contador Prometheus.
//
// A chave do cliente não vira label (cardinalidade); só method e outcome.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

// NewPrometheusStatsStore registra o contador em reg. Se reg for nil, usa
// prometheus.DefaultRegisterer.
func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sheriff",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Admission decisions taken by the rate limiter.",
	}, []string{"method", "outcome"})

	if err := reg.Register(decisions); err != nil {
		return nil, err
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(ev.Method, ev.Outcome()).Inc()
	return nil
}

// Collector dá acesso ao contador (testes e registries customizados).
func (s *PrometheusStatsStore) Collector() *prometheus.CounterVec { return s.decisions }

// TrackedClientsGauge publica o número de clientes rastreados por um limiter.
func TrackedClientsGauge(reg prometheus.Registerer, r domain.ClientResetter) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sheriff",
		Subsystem: "ratelimit",
		Name:      "tracked_clients",
		Help:      "Distinct client identifiers with live rate limit state.",
	}, func() float64 { return float64(r.TrackedClients()) }))
}

// SlotsInUseGauge publica as vagas ocupadas do limite de concorrência.
func SlotsInUseGauge(reg prometheus.Registerer, p *ChanPool) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "sheriff",
		Subsystem: "concurrency",
		Name:      "slots_in_use",
		Help:      "Concurrency slots currently held by in-flight requests.",
		ConstLabels: prometheus.Labels{
			"capacity": strconv.Itoa(p.Cap()),
		},
	}, func() float64 { return float64(p.InUse()) }))
}

// MultiStatsStore repassa o evento para vários stores; retorna o primeiro erro.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
