package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"api-sheriff/middleware/ratelimit/application"
	"api-sheriff/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Limiter             domain.Limiter
	Stats               domain.StatsStore
	Logger              *zap.Logger
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type bucketInfo interface {
	RPS() float64
	Burst() int
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For é o cliente original
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware aplica a decisão de admissão por cliente.
//
// Rejeição por cota vira RejectStatus (429 por padrão) com Retry-After.
// Chave inválida vira 400; qualquer outro erro do limiter vira 500.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	svc := application.Service{
		Limiter:    opts.Limiter,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			endpoint := r.URL.Path
			if endpoint == "" {
				endpoint = "/"
			}

			dec, err := svc.Decide(domain.Key(key), endpoint)
			if err != nil {
				if domain.IsInvalidArgument(err) {
					http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
					return
				}
				opts.Logger.Error("rate limiter failed", zap.String("key", key), zap.Error(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			if opts.Stats != nil {
				ev := domain.StatsEvent{
					Key:     domain.Key(key),
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				}
				if err := opts.Stats.Record(r.Context(), ev); err != nil {
					opts.Logger.Debug("rate limit stats not recorded", zap.Error(err))
				}
			}

			if opts.AddRateLimitHeaders {
				setRateLimitHeaders(w.Header(), opts.Limiter, key, dec)
			}

			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter.Seconds())))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders escreve os headers informativos conforme as
// capacidades do limiter (janela fixa informa cota restante; token bucket
// informa rps/burst). O restante vem da própria decisão, não de uma
// segunda consulta ao limiter.
func setRateLimitHeaders(h http.Header, lim domain.Limiter, key string, dec domain.Decision) {
	h.Set("X-RateLimit-Key", key)
	if q, ok := lim.(domain.QuotaReporter); ok {
		h.Set("X-RateLimit-Limit", formatInt(q.MaxRequests()))
	}
	if dec.QuotaKnown {
		h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
	}
	if b, ok := lim.(bucketInfo); ok {
		h.Set("X-RateLimit-RPS", formatFloat(b.RPS()))
		h.Set("X-RateLimit-Burst", formatInt(b.Burst()))
	}
}
