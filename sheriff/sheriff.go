// Package sheriff é a fachada do gateway: valida a configuração de alto
// nível, cria um FixedWindowLimiter por instância e responde à pergunta
// "esta requisição deste cliente para este endpoint passa?".
package sheriff

import (
	"fmt"
	"strings"
	"time"

	"api-sheriff/middleware/ratelimit/domain"
	"api-sheriff/middleware/ratelimit/infra"

	"go.uber.org/zap"
)

const statusOperational = "API Sheriff is operational"

// Config é a configuração de alto nível do gateway.
type Config struct {
	// RateLimit é o máximo de requisições por cliente em TimeWindow.
	RateLimit  int
	TimeWindow time.Duration
	// RequestTimeout limita a chamada ao upstream; 0 desliga.
	RequestTimeout time.Duration
}

// Validate devolve o primeiro problema encontrado, embrulhado em
// domain.ErrInvalidConfiguration.
func (c Config) Validate() error {
	switch {
	case c.RateLimit <= 0:
		return fmt.Errorf("%w: rate limit must be greater than 0", domain.ErrInvalidConfiguration)
	case c.TimeWindow <= 0:
		return fmt.Errorf("%w: time window must be greater than 0", domain.ErrInvalidConfiguration)
	case c.RequestTimeout < 0:
		return fmt.Errorf("%w: request timeout must not be negative", domain.ErrInvalidConfiguration)
	}
	return nil
}

type Sheriff struct {
	cfg     Config
	limiter *infra.FixedWindowLimiter
	logger  *zap.Logger
}

type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New valida cfg e cria o limiter da instância.
func New(cfg Config, opts ...Option) (*Sheriff, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limiter, err := infra.NewFixedWindowLimiter(cfg.RateLimit, cfg.TimeWindow,
		infra.WithLogger(o.logger.Named("limiter")),
		infra.WithClock(o.now),
	)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("sheriff initialized",
		zap.Int("rate_limit", cfg.RateLimit),
		zap.Duration("time_window", cfg.TimeWindow),
		zap.Duration("request_timeout", cfg.RequestTimeout))

	return &Sheriff{cfg: cfg, limiter: limiter, logger: o.logger}, nil
}

// Allow decide se clientID pode acessar endpoint agora. O endpoint não muda
// a cota (não há política por endpoint); só é validado e aparece no log.
func (s *Sheriff) Allow(clientID, endpoint string) (bool, error) {
	allowed, _, err := s.allow(clientID, endpoint)
	return allowed, err
}

func (s *Sheriff) allow(clientID, endpoint string) (bool, int, error) {
	if strings.TrimSpace(clientID) == "" {
		return false, 0, fmt.Errorf("%w: client id must not be blank", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(endpoint) == "" {
		return false, 0, fmt.Errorf("%w: endpoint must not be blank", domain.ErrInvalidArgument)
	}

	allowed, remaining, err := s.limiter.AllowQuota(clientID)
	if err != nil {
		return false, 0, err
	}
	if !allowed {
		s.logger.Info("rate limit exceeded",
			zap.String("client", clientID),
			zap.String("endpoint", endpoint))
	}
	return allowed, remaining, nil
}

func (s *Sheriff) ResetClient(clientID string) error {
	if err := s.limiter.ResetClient(clientID); err != nil {
		return err
	}
	s.logger.Info("client state reset", zap.String("client", clientID))
	return nil
}

// ResetAll limpa o estado de todos os clientes e retorna quantos eram.
func (s *Sheriff) ResetAll() int {
	n := s.limiter.ResetAll()
	s.logger.Info("all client state reset", zap.Int("clients", n))
	return n
}

func (s *Sheriff) Config() Config { return s.cfg }

// Limiter expõe o limiter para o middleware HTTP e as rotas admin.
func (s *Sheriff) Limiter() *infra.FixedWindowLimiter { return s.limiter }

func (s *Sheriff) Status() string {
	if s == nil || s.limiter == nil {
		return ""
	}
	return statusOperational
}

// Gate adapta o Sheriff aos contratos do middleware HTTP e das rotas admin:
// admissão com endpoint, cota restante e reset passam todos pela fachada.
func (s *Sheriff) Gate() Gate { return Gate{s: s} }

type Gate struct {
	s *Sheriff
}

// Allow sem endpoint conhecido usa "/".
func (g Gate) Allow(clientID string) (bool, error) { return g.s.Allow(clientID, "/") }

func (g Gate) AllowEndpoint(clientID, endpoint string) (bool, int, error) {
	return g.s.allow(clientID, endpoint)
}

func (g Gate) Remaining(clientID string) (int, error) { return g.s.limiter.Remaining(clientID) }
func (g Gate) MaxRequests() int                       { return g.s.cfg.RateLimit }
func (g Gate) ResetClient(clientID string) error      { return g.s.ResetClient(clientID) }
func (g Gate) ResetAll() int                          { return g.s.ResetAll() }
func (g Gate) TrackedClients() int                    { return g.s.limiter.TrackedClients() }
