package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"api-sheriff/sheriff"

	"github.com/joho/godotenv"
)

const (
	algorithmFixedWindow = "fixed-window"
	algorithmTokenBucket = "token-bucket"
)

type config struct {
	listenAddr  string
	upstreamURL string
	logDev      bool

	rateEnabled   bool
	rateAlgorithm string
	sheriff       sheriff.Config
	rateRPS       float64
	rateBurst     int
	rateKeyHeader string
	trustXFF      bool
	retryAfter    time.Duration
	addHeaders    bool

	concurrencyMax     int
	concurrencyTimeout time.Duration

	adminEnabled   bool
	metricsEnabled bool

	rateStatsEnabled       bool
	rateStatsRedisAddr     string
	rateStatsRedisPassword string
	rateStatsRedisDB       int
	rateStatsPrefix        string
	rateStatsTTL           time.Duration
	rateStatsBucket        string
	rateStatsTrackKeys     bool
}

// readConfig carrega um .env opcional e depois lê as variáveis de ambiente.
// Variáveis já exportadas têm precedência sobre o .env.
func readConfig() (config, error) {
	_ = godotenv.Load()

	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = strings.TrimSpace(os.Getenv("UPSTREAM_URL"))
	cfg.logDev = getenvBoolDefault("LOG_DEV", false)

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateAlgorithm = strings.ToLower(getenvDefault("RATE_ALGORITHM", algorithmFixedWindow))
	sc, err := readSheriffConfig()
	if err != nil {
		return config{}, err
	}
	cfg.sheriff = sc
	cfg.rateRPS = getenvFloatDefault("RATE_RPS", 10)
	// burst alto com RPS baixo dá a impressão de que o limiter não funciona
	if burst, ok := getenvInt("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 20
		if getenvIsSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", 1*time.Second)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.adminEnabled = getenvBoolDefault("ADMIN_ENABLED", false)
	cfg.metricsEnabled = getenvBoolDefault("METRICS_ENABLED", true)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsRedisAddr = getenvDefault("RATE_STATS_REDIS_ADDR", "")
	cfg.rateStatsRedisPassword = os.Getenv("RATE_STATS_REDIS_PASSWORD")
	cfg.rateStatsRedisDB = getenvIntDefault("RATE_STATS_REDIS_DB", 0)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "sheriff:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// readSheriffConfig lê os limites da fachada. Aqui valor malformado é erro
// (não cai no default): subir com uma janela diferente da pedida é pior que
// não subir.
func readSheriffConfig() (sheriff.Config, error) {
	limit, err := getenvIntStrict("RATE_LIMIT", 100)
	if err != nil {
		return sheriff.Config{}, err
	}
	window, err := getenvDurationStrict("RATE_WINDOW", time.Minute)
	if err != nil {
		return sheriff.Config{}, err
	}
	timeout, err := getenvDurationStrict("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return sheriff.Config{}, err
	}
	return sheriff.Config{RateLimit: limit, TimeWindow: window, RequestTimeout: timeout}, nil
}

func (c config) validate() error {
	if c.upstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if err := c.sheriff.Validate(); err != nil {
		return fmt.Errorf("RATE_LIMIT/RATE_WINDOW/REQUEST_TIMEOUT: %w", err)
	}
	switch c.rateAlgorithm {
	case algorithmFixedWindow:
	case algorithmTokenBucket:
		if c.rateRPS <= 0 {
			return errors.New("RATE_RPS must be > 0")
		}
		if c.rateBurst <= 0 {
			return errors.New("RATE_BURST must be > 0")
		}
	default:
		return fmt.Errorf("RATE_ALGORITHM must be %q or %q, got %q", algorithmFixedWindow, algorithmTokenBucket, c.rateAlgorithm)
	}
	if c.concurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.rateStatsEnabled && strings.TrimSpace(c.rateStatsRedisAddr) == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required when RATE_STATS_ENABLED=true")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	if i, ok := getenvInt(k); ok {
		return i
	}
	return def
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}

func getenvIntStrict(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return i, nil
}

func getenvDurationStrict(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return d, nil
}
