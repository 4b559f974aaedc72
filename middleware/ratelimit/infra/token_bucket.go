package infra

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"api-sheriff/middleware/ratelimit/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TokenBucketStore é o algoritmo alternativo (RATE_ALGORITHM=token-bucket):
// um rate.Limiter por cliente, com limpeza periódica de clientes ociosos.
//
// Diferente do FixedWindowLimiter, aqui existe expiração por inatividade.
type TokenBucketStore struct {
	mu           sync.Mutex
	entries      map[string]*bucketEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	logger       *zap.Logger
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type TokenBucketOption func(*TokenBucketStore)

func WithIdleTTL(d time.Duration) TokenBucketOption {
	return func(s *TokenBucketStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) TokenBucketOption {
	return func(s *TokenBucketStore) { s.cleanupEvery = d }
}

func WithBucketLogger(logger *zap.Logger) TokenBucketOption {
	return func(s *TokenBucketStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewTokenBucketStore(rps float64, burst int, opts ...TokenBucketOption) (*TokenBucketStore, error) {
	if rps <= 0 {
		return nil, fmt.Errorf("%w: rps must be greater than 0, got %v", domain.ErrInvalidConfiguration, rps)
	}
	if burst <= 0 {
		return nil, fmt.Errorf("%w: burst must be greater than 0, got %d", domain.ErrInvalidConfiguration, burst)
	}

	s := &TokenBucketStore{
		entries:      make(map[string]*bucketEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *TokenBucketStore) RPS() float64 { return float64(s.rps) }
func (s *TokenBucketStore) Burst() int   { return s.burst }

// Allow implementa domain.Limiter.
func (s *TokenBucketStore) Allow(clientID string) (bool, error) {
	if strings.TrimSpace(clientID) == "" {
		return false, fmt.Errorf("%w: client id must not be blank", domain.ErrInvalidArgument)
	}
	return s.limiter(clientID).Allow(), nil
}

func (s *TokenBucketStore) limiter(key string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup remove clientes sem atividade há mais de idleTTL e retorna quantos saíram.
func (s *TokenBucketStore) Cleanup() int {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor roda Cleanup a cada cleanupEvery até o ctx ser cancelado.
func (s *TokenBucketStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Cleanup(); n > 0 {
					s.logger.Debug("idle token buckets removed", zap.Int("count", n))
				}
			}
		}
	}()
}

// ResetClient descarta o bucket do cliente; o próximo Allow recria cheio.
func (s *TokenBucketStore) ResetClient(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("%w: client id must not be blank", domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	delete(s.entries, clientID)
	s.mu.Unlock()
	return nil
}

func (s *TokenBucketStore) ResetAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]*bucketEntry)
	return n
}

func (s *TokenBucketStore) TrackedClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
