package infra

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"api-sheriff/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

// FixedWindowLimiter limita cada cliente a maxRequests por janela fixa.
//
// Quando a janela expira o contador volta a zero por inteiro (sem carry-over),
// então um cliente pode passar até 2*maxRequests requisições em volta da
// virada da janela. Isso é propriedade de janela fixa, não bug.
//
// O mapa de clientes nunca expira sozinho: entradas só saem via ResetClient
// ou ResetAll.
type FixedWindowLimiter struct {
	maxRequests int
	window      time.Duration

	clients sync.Map // string -> *clientWindow
	tracked atomic.Int64

	now    func() time.Time
	logger *zap.Logger
}

// clientWindow é o estado de um cliente. Toda leitura e escrita passa por mu.
type clientWindow struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

type FixedWindowOption func(*FixedWindowLimiter)

// WithClock troca a fonte de tempo (útil em testes).
func WithClock(now func() time.Time) FixedWindowOption {
	return func(l *FixedWindowLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) FixedWindowOption {
	return func(l *FixedWindowLimiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewFixedWindowLimiter valida os limites e cria o limiter.
// Retorna domain.ErrInvalidConfiguration se maxRequests <= 0 ou window <= 0.
func NewFixedWindowLimiter(maxRequests int, window time.Duration, opts ...FixedWindowOption) (*FixedWindowLimiter, error) {
	if maxRequests <= 0 {
		return nil, fmt.Errorf("%w: max requests must be greater than 0, got %d", domain.ErrInvalidConfiguration, maxRequests)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be greater than 0, got %s", domain.ErrInvalidConfiguration, window)
	}

	l := &FixedWindowLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.logger.Debug("fixed window limiter created",
		zap.Int("max_requests", maxRequests),
		zap.Duration("window", window))
	return l, nil
}

func (l *FixedWindowLimiter) MaxRequests() int {
	if l == nil {
		return 0
	}
	return l.maxRequests
}

func (l *FixedWindowLimiter) Window() time.Duration {
	if l == nil {
		return 0
	}
	return l.window
}

// Allow implementa domain.Limiter: admite (e conta) a requisição se o
// cliente ainda tem cota na janela atual.
func (l *FixedWindowLimiter) Allow(clientID string) (bool, error) {
	allowed, _, err := l.AllowQuota(clientID)
	return allowed, err
}

// AllowQuota é Allow devolvendo também a cota restante após a decisão,
// calculada sob o mesmo lock do cliente.
func (l *FixedWindowLimiter) AllowQuota(clientID string) (bool, int, error) {
	if err := l.validate(clientID); err != nil {
		return false, 0, err
	}

	now := l.now()
	cw := l.lookupOrCreate(clientID, now)

	cw.mu.Lock()
	if now.Sub(cw.windowStart) >= l.window {
		cw.windowStart = now
		cw.count = 0
	}
	allowed := cw.count < l.maxRequests
	if allowed {
		cw.count++
	}
	remaining := l.maxRequests - cw.count
	cw.mu.Unlock()

	if !allowed {
		l.logger.Debug("request rejected", zap.String("client", clientID), zap.Int("max_requests", l.maxRequests))
	}
	return allowed, remaining, nil
}

// Remaining devolve quantas requisições o cliente ainda tem na janela.
// Não reseta estado: uma janela expirada só é reiniciada por Allow.
func (l *FixedWindowLimiter) Remaining(clientID string) (int, error) {
	if err := l.validate(clientID); err != nil {
		return 0, err
	}

	v, ok := l.clients.Load(clientID)
	if !ok {
		return l.maxRequests, nil
	}
	cw := v.(*clientWindow)
	now := l.now()

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if now.Sub(cw.windowStart) >= l.window {
		return l.maxRequests, nil
	}
	return max(0, l.maxRequests-cw.count), nil
}

// ResetClient remove o estado do cliente. Idempotente.
func (l *FixedWindowLimiter) ResetClient(clientID string) error {
	if err := l.validate(clientID); err != nil {
		return err
	}
	if _, loaded := l.clients.LoadAndDelete(clientID); loaded {
		l.tracked.Add(-1)
		l.logger.Debug("client state reset", zap.String("client", clientID))
	}
	return nil
}

// ResetAll remove o estado de todos os clientes e retorna quantos foram limpos.
func (l *FixedWindowLimiter) ResetAll() int {
	if l == nil || l.maxRequests <= 0 {
		return 0
	}
	cleared := 0
	l.clients.Range(func(k, _ any) bool {
		if _, loaded := l.clients.LoadAndDelete(k); loaded {
			l.tracked.Add(-1)
			cleared++
		}
		return true
	})
	l.logger.Debug("all client state reset", zap.Int("clients", cleared))
	return cleared
}

// TrackedClients é o número de clientes com estado vivo.
func (l *FixedWindowLimiter) TrackedClients() int {
	if l == nil {
		return 0
	}
	return int(l.tracked.Load())
}

func (l *FixedWindowLimiter) lookupOrCreate(clientID string, now time.Time) *clientWindow {
	if v, ok := l.clients.Load(clientID); ok {
		return v.(*clientWindow)
	}
	v, loaded := l.clients.LoadOrStore(clientID, &clientWindow{windowStart: now})
	if !loaded {
		l.tracked.Add(1)
		l.logger.Debug("tracking new client", zap.String("client", clientID))
	}
	return v.(*clientWindow)
}

func (l *FixedWindowLimiter) validate(clientID string) error {
	if l == nil || l.maxRequests <= 0 || l.window <= 0 {
		return fmt.Errorf("%w: limiter was not created with NewFixedWindowLimiter", domain.ErrInvalidConfiguration)
	}
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("%w: client id must not be blank", domain.ErrInvalidArgument)
	}
	return nil
}
