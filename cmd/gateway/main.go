package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"api-sheriff/middleware/ratelimit"
	"api-sheriff/middleware/ratelimit/domain"
	"api-sheriff/middleware/ratelimit/infra"
	"api-sheriff/sheriff"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cfg, err := readConfig()
	if err != nil {
		// logger ainda não existe: a config decide dev/prod
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg.logDev)
	defer func() { _ = logger.Sync() }()

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logger.Fatal("invalid UPSTREAM_URL", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	limiter, status, err := buildLimiter(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("rate limiter setup failed", zap.Error(err))
	}

	stats, closeStats, err := buildStats(cfg, limiter, logger)
	if err != nil {
		logger.Fatal("rate stats setup failed", zap.Error(err))
	}
	defer closeStats()

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	h := http.Handler(proxy)
	if cfg.sheriff.RequestTimeout > 0 {
		h = http.TimeoutHandler(h, cfg.sheriff.RequestTimeout, "gateway timeout")
	}
	pool, err := buildSlotPool(cfg)
	if err != nil {
		logger.Fatal("concurrency setup failed", zap.Error(err))
	}
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		Logger:         logger,
		Pool:           pool,
	})(h)
	if cfg.rateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Limiter:             limiter,
			Stats:               stats,
			Logger:              logger,
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.retryAfter,
			AddRateLimitHeaders: cfg.addHeaders,
		})(h)
	}

	router := chi.NewRouter()
	router.Get("/test/health", ratelimit.HealthHandler(status))
	router.Get("/test/info", ratelimit.InfoHandler(version))
	if cfg.metricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
	}
	if cfg.adminEnabled {
		if r, ok := limiter.(domain.ClientResetter); ok {
			router.Mount("/admin", ratelimit.AdminRoutes(r, logger.Named("admin")))
		}
	}
	router.Handle("/*", h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout(cfg.sheriff.RequestTimeout),
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("gateway listening", zap.String("addr", cfg.listenAddr), zap.Stringer("upstream", target))
	logger.Info("rate",
		zap.Bool("enabled", cfg.rateEnabled),
		zap.String("algorithm", cfg.rateAlgorithm),
		zap.Int("limit", cfg.sheriff.RateLimit),
		zap.Duration("window", cfg.sheriff.TimeWindow),
		zap.Float64("rps", cfg.rateRPS),
		zap.Int("burst", cfg.rateBurst),
		zap.String("key_header", cfg.rateKeyHeader),
		zap.Bool("trust_xff", cfg.trustXFF))
	logger.Info("rate-stats",
		zap.Bool("redis", cfg.rateStatsEnabled),
		zap.String("redis_addr", cfg.rateStatsRedisAddr),
		zap.String("bucket", cfg.rateStatsBucket),
		zap.Duration("ttl", cfg.rateStatsTTL),
		zap.Bool("track_keys", cfg.rateStatsTrackKeys),
		zap.Bool("prometheus", cfg.metricsEnabled))
	logger.Info("concurrency", zap.Int("max", cfg.concurrencyMax), zap.Duration("acquire_timeout", cfg.concurrencyTimeout))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

// writeTimeout deixa folga para o TimeoutHandler responder antes do servidor cortar.
func writeTimeout(requestTimeout time.Duration) time.Duration {
	if requestTimeout <= 0 {
		return 30 * time.Second
	}
	return requestTimeout + 5*time.Second
}

func newLogger(dev bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// buildLimiter escolhe o algoritmo. Janela fixa passa pela fachada sheriff
// (admissão por endpoint, resets admin); token bucket usa o store
// x/time/rate com janitor.
func buildLimiter(ctx context.Context, cfg config, logger *zap.Logger) (domain.Limiter, func() string, error) {
	if cfg.rateAlgorithm == algorithmTokenBucket {
		store, err := infra.NewTokenBucketStore(cfg.rateRPS, cfg.rateBurst, infra.WithBucketLogger(logger.Named("token-bucket")))
		if err != nil {
			return nil, nil, err
		}
		store.StartJanitor(ctx)
		return store, func() string { return "API Sheriff is operational (token bucket)" }, nil
	}

	s, err := sheriff.New(cfg.sheriff, sheriff.WithLogger(logger.Named("sheriff")))
	if err != nil {
		return nil, nil, err
	}
	return s.Gate(), s.Status, nil
}

// buildSlotPool cria o semáforo de concorrência e, com métricas ligadas,
// publica as vagas ocupadas. Devolve nil quando o limite está desligado.
func buildSlotPool(cfg config) (domain.SlotPool, error) {
	if cfg.concurrencyMax <= 0 {
		return nil, nil
	}
	pool := infra.NewChanPool(cfg.concurrencyMax)
	if cfg.metricsEnabled {
		if err := infra.SlotsInUseGauge(prometheus.DefaultRegisterer, pool); err != nil {
			return nil, err
		}
	}
	return pool, nil
}

// buildStats monta os stores de estatística ligados; o retorno de fechamento
// é sempre não nil.
func buildStats(cfg config, limiter domain.Limiter, logger *zap.Logger) (domain.StatsStore, func(), error) {
	var stores infra.MultiStatsStore
	closeFn := func() {}

	if cfg.metricsEnabled {
		prom, err := infra.NewPrometheusStatsStore(prometheus.DefaultRegisterer)
		if err != nil {
			return nil, closeFn, err
		}
		stores = append(stores, prom)
		if r, ok := limiter.(domain.ClientResetter); ok {
			if err := infra.TrackedClientsGauge(prometheus.DefaultRegisterer, r); err != nil {
				return nil, closeFn, err
			}
		}
	}

	if cfg.rateStatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.rateStatsRedisAddr,
			Password: cfg.rateStatsRedisPassword,
			DB:       cfg.rateStatsRedisDB,
		})
		closeFn = func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("failed to close redis stats client", zap.Error(err))
			}
		}

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return nil, closeFn, err
		}

		stores = append(stores, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		))
	}

	if len(stores) == 0 {
		return nil, closeFn, nil
	}
	return stores, closeFn, nil
}
