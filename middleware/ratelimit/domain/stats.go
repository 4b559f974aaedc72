package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão de admissão já tomada.
//
// Method/Path são strings genéricas (HTTP, gRPC...). Cuidado com
// cardinalidade ao persistir Key/Path em Redis ou Prometheus.
type StatsEvent struct {
	Key     Key
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// Outcome devolve o rótulo usado pelos stores ("allowed" ou "denied").
func (e StatsEvent) Outcome() string {
	if e.Allowed {
		return "allowed"
	}
	return "denied"
}

// StatsStore persiste estatísticas das decisões.
//
// O middleware trata erro como best-effort: falha ao gravar nunca derruba
// a requisição.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
