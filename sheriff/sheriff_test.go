package sheriff

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"api-sheriff/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig() Config {
	return Config{
		RateLimit:      10,
		TimeWindow:     time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestSheriff(t *testing.T, opts ...Option) *Sheriff {
	t.Helper()
	s, err := New(testConfig(), opts...)
	require.NoError(t, err)
	return s
}

func TestNew_ValidConfig(t *testing.T) {
	s := newTestSheriff(t)

	assert.Equal(t, testConfig(), s.Config())
	require.NotNil(t, s.Limiter())
	assert.Equal(t, 10, s.Limiter().MaxRequests())
	assert.Equal(t, time.Second, s.Limiter().Window())
	assert.Equal(t, "API Sheriff is operational", s.Status())
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
		msg  string
	}{
		{"invalid rate limit", func(c *Config) { c.RateLimit = -1 }, "rate limit must be greater than 0"},
		{"zero rate limit", func(c *Config) { c.RateLimit = 0 }, "rate limit must be greater than 0"},
		{"invalid time window", func(c *Config) { c.TimeWindow = -1 }, "time window must be greater than 0"},
		{"negative request timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "request timeout must not be negative"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mod(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
			assert.Contains(t, err.Error(), tc.msg)

			s, err := New(cfg)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}

	assert.NoError(t, testConfig().Validate())
	noTimeout := testConfig()
	noTimeout.RequestTimeout = 0
	assert.NoError(t, noTimeout.Validate())
}

func TestSheriff_AllowValidatesInputs(t *testing.T) {
	s := newTestSheriff(t)

	for _, id := range []string{"", " ", "\t", "\n"} {
		_, err := s.Allow(id, "/api/users")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		assert.Contains(t, err.Error(), "client id must not be blank")
	}
	for _, ep := range []string{"", " ", "\t", "\n"} {
		_, err := s.Allow("client1", ep)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		assert.Contains(t, err.Error(), "endpoint must not be blank")
	}
	assert.Equal(t, 0, s.Limiter().TrackedClients())
}

func TestSheriff_RespectsRateLimit(t *testing.T) {
	s := newTestSheriff(t)

	for i := 0; i < 10; i++ {
		ok, err := s.Allow("client1", "/api/test")
		require.NoError(t, err)
		require.True(t, ok, "request %d should be allowed", i+1)
	}
	ok, err := s.Allow("client1", "/api/test")
	require.NoError(t, err)
	assert.False(t, ok, "request 11 should be denied")

	// endpoint não cria cota própria
	ok, _ = s.Allow("client1", "/api/other")
	assert.False(t, ok)
}

func TestSheriff_ClientsAreIndependent(t *testing.T) {
	s := newTestSheriff(t)

	for i := 0; i < 10; i++ {
		_, _ = s.Allow("client1", "/api/test")
	}
	ok, _ := s.Allow("client1", "/api/test")
	require.False(t, ok)

	ok, _ = s.Allow("client2", "/api/test")
	assert.True(t, ok)
}

func TestSheriff_ResetClient(t *testing.T) {
	s := newTestSheriff(t)

	for i := 0; i < 10; i++ {
		_, _ = s.Allow("client1", "/api/test")
	}
	ok, _ := s.Allow("client1", "/api/test")
	require.False(t, ok)

	require.NoError(t, s.ResetClient("client1"))
	ok, _ = s.Allow("client1", "/api/test")
	assert.True(t, ok)

	for _, id := range []string{"", " ", "\t"} {
		assert.ErrorIs(t, s.ResetClient(id), domain.ErrInvalidArgument)
	}
}

func TestSheriff_WindowExpiryWithClock(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s := newTestSheriff(t, WithClock(clock))

	for i := 0; i < 10; i++ {
		_, _ = s.Allow("c1", "/")
	}
	ok, _ := s.Allow("c1", "/")
	require.False(t, ok)

	mu.Lock()
	now = now.Add(time.Second)
	mu.Unlock()

	ok, _ = s.Allow("c1", "/")
	assert.True(t, ok)
	rem, err := s.Limiter().Remaining("c1")
	require.NoError(t, err)
	assert.Equal(t, 9, rem)
}

func TestSheriff_ConcurrentRequests(t *testing.T) {
	s := newTestSheriff(t)

	const goroutines, perG = 5, 3
	var allowed atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				if ok, _ := s.Allow("concurrentClient", "/api/concurrent"); ok {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load())
}

func TestSheriff_LogsRejectionWithEndpoint(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := newTestSheriff(t, WithLogger(zap.New(core)))

	for i := 0; i < 11; i++ {
		_, _ = s.Allow("client1", "/api/users")
	}

	entries := logs.FilterMessage("rate limit exceeded").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "client1", fields["client"])
	assert.Equal(t, "/api/users", fields["endpoint"])
}

func TestSheriff_StatusOnNil(t *testing.T) {
	var s *Sheriff
	assert.Empty(t, s.Status())
}

func TestSheriff_ResetAll(t *testing.T) {
	s := newTestSheriff(t)
	_, _ = s.Allow("a", "/")
	_, _ = s.Allow("b", "/")

	assert.Equal(t, 2, s.ResetAll())
	assert.Equal(t, 0, s.Limiter().TrackedClients())
	assert.Equal(t, 0, s.ResetAll())
}

func TestGate_SatisfiesHTTPContracts(t *testing.T) {
	gate := newTestSheriff(t).Gate()

	var _ domain.Limiter = gate
	var _ domain.EndpointLimiter = gate
	var _ domain.QuotaReporter = gate
	var _ domain.ClientResetter = gate

	ok, rem, err := gate.AllowEndpoint("c1", "/api/users")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, rem)

	_, _, err = gate.AllowEndpoint("c1", " ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	ok, err = gate.Allow("c1")
	require.NoError(t, err)
	assert.True(t, ok)

	rem, err = gate.Remaining("c1")
	require.NoError(t, err)
	assert.Equal(t, 8, rem)
	assert.Equal(t, 10, gate.MaxRequests())
	assert.Equal(t, 1, gate.TrackedClients())

	require.NoError(t, gate.ResetClient("c1"))
	assert.Equal(t, 0, gate.TrackedClients())
	assert.Equal(t, 0, gate.ResetAll())
}

func BenchmarkSheriff_Allow(b *testing.B) {
	for _, limit := range []int{10, 1000} {
		for _, clients := range []int{1, 10, 100} {
			b.Run(fmt.Sprintf("limit=%d/clients=%d", limit, clients), func(b *testing.B) {
				s, err := New(Config{RateLimit: limit, TimeWindow: time.Second})
				if err != nil {
					b.Fatal(err)
				}
				ids := make([]string, clients)
				for i := range ids {
					ids[i] = fmt.Sprintf("client-%d", i)
				}

				var next atomic.Int64
				b.ReportAllocs()
				b.ResetTimer()
				b.RunParallel(func(pb *testing.PB) {
					i := int(next.Add(1))
					for pb.Next() {
						_, _ = s.Allow(ids[i%clients], "/api/bench")
						i++
					}
				})
			})
		}
	}
}
