package application

import (
	"time"

	"api-sheriff/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Limiter    domain.Limiter
	RetryAfter time.Duration
}

// Decide consulta o limiter para a chave. Se o limiter conhece endpoints
// (domain.EndpointLimiter) ou cota (domain.QuotaLimiter), usa essas formas
// e a Decision sai com Remaining preenchido.
//
// Erros do limiter (chave ou endpoint em branco, limiter mal construído)
// voltam sem tradução: não são rejeição por cota.
func (s Service) Decide(key domain.Key, endpoint string) (domain.Decision, error) {
	if s.Limiter == nil {
		return domain.Decision{Allowed: true}, nil
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	var (
		dec     domain.Decision
		allowed bool
		err     error
	)
	switch lim := s.Limiter.(type) {
	case domain.EndpointLimiter:
		allowed, dec.Remaining, err = lim.AllowEndpoint(string(key), endpoint)
		dec.QuotaKnown = true
	case domain.QuotaLimiter:
		allowed, dec.Remaining, err = lim.AllowQuota(string(key))
		dec.QuotaKnown = true
	default:
		allowed, err = s.Limiter.Allow(string(key))
	}
	if err != nil {
		return domain.Decision{}, err
	}

	dec.Allowed = allowed
	if !allowed {
		dec.RetryAfter = s.RetryAfter
	}
	return dec, nil
}
