package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

// Key identifica o cliente para fins de cota (IP, API key, usuário...).
type Key string

// Limiter decide se a requisição atual de um cliente é admitida.
//
// Implementações devem ser seguras para chamadas concorrentes, inclusive para
// o mesmo clientID. Um clientID em branco resulta em ErrInvalidArgument.
type Limiter interface {
	Allow(clientID string) (bool, error)
}

// QuotaReporter é implementado por limiters que conseguem informar a cota
// restante sem consumir nem resetar estado.
type QuotaReporter interface {
	Remaining(clientID string) (int, error)
	MaxRequests() int
}

// QuotaLimiter é implementado por limiters que devolvem a cota restante na
// mesma seção crítica da decisão (o valor não sofre corrida com outra
// requisição do mesmo cliente).
type QuotaLimiter interface {
	AllowQuota(clientID string) (allowed bool, remaining int, err error)
}

// EndpointLimiter decide sabendo também o endpoint pedido. O endpoint não
// escolhe a cota; é validado e registrado em log. remaining segue a mesma
// regra de QuotaLimiter.
type EndpointLimiter interface {
	AllowEndpoint(clientID, endpoint string) (allowed bool, remaining int, err error)
}

// ClientResetter expõe operações administrativas sobre o estado por cliente.
type ClientResetter interface {
	ResetClient(clientID string) error
	ResetAll() int
	TrackedClients() int
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration

	// Remaining só vale com QuotaKnown: cota restante logo após a decisão.
	Remaining  int
	QuotaKnown bool
}
