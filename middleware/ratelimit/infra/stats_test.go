package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"api-sheriff/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatsStore_CountsByRouteAndKey(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "k1", Allowed: true, Method: "GET", Path: "/a"}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "k1", Allowed: false, Method: "GET", Path: "/a"}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Key: "k2", Allowed: true, Method: "POST", Path: "/b"}))

	assert.Equal(t, Counters{Allowed: 2, Denied: 1}, s.Total())
	assert.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByRoute()["GET /a"])
	assert.Equal(t, Counters{Allowed: 1}, s.ByRoute()["POST /b"])
	assert.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByKey()["k1"])
}

func TestMemoryStatsStore_KeysNotTrackedByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "k1", Allowed: true})

	assert.Empty(t, s.ByKey())
	assert.Equal(t, int64(1), s.Total().Allowed)
}

func TestPrometheusStatsStore_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusStatsStore(reg)
	require.NoError(t, err)

	ctx := context.Background()
	_ = s.Record(ctx, domain.StatsEvent{Key: "k", Allowed: true, Method: "GET"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "k", Allowed: true, Method: "GET"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "k", Allowed: false, Method: "GET"})

	assert.Equal(t, 2.0, testutil.ToFloat64(s.Collector().WithLabelValues("GET", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Collector().WithLabelValues("GET", "denied")))

	_, err = NewPrometheusStatsStore(reg)
	assert.Error(t, err, "registering twice in the same registry must fail")
}

func TestTrackedClientsGauge_FollowsLimiter(t *testing.T) {
	reg := prometheus.NewRegistry()
	l, err := NewFixedWindowLimiter(5, time.Minute)
	require.NoError(t, err)
	require.NoError(t, TrackedClientsGauge(reg, l))

	_, _ = l.Allow("a")
	_, _ = l.Allow("b")

	n, err := testutil.GatherAndCount(reg, "sheriff_ratelimit_tracked_clients")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, 2.0, mfs[0].GetMetric()[0].GetGauge().GetValue())
}

func TestRedisStatsStore_KeyLayout(t *testing.T) {
	s := NewRedisStatsStore(nil, WithStatsPrefix(":gw:stats:"))
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	assert.Equal(t, "gw:stats:total", s.totalKey())
	assert.Equal(t, "gw:stats:route", s.routeKey())
	assert.Equal(t, "gw:stats:minute:202503040506", s.minuteKey(at))
	assert.Equal(t, "gw:stats:key:client-1", s.clientKey(" client-1 "))
	assert.Equal(t, "GET /x", s.routeField(domain.StatsEvent{Method: " GET ", Path: "/x "}))
}

func TestRedisStatsStore_NilClientIsNoop(t *testing.T) {
	s := NewRedisStatsStore(nil)
	assert.NoError(t, s.Record(context.Background(), domain.StatsEvent{Key: "k", Allowed: true}))

	var nilStore *RedisStatsStore
	assert.NoError(t, nilStore.Record(context.Background(), domain.StatsEvent{}))
}

func TestRedisStatsStore_ReportsUnreachableRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = rdb.Close() }()

	s := NewRedisStatsStore(rdb, WithStatsTrackKeys(true))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := s.Record(ctx, domain.StatsEvent{Key: "k", Allowed: true, Method: "GET", Path: "/"})
	assert.Error(t, err)
}

type failingStats struct{ err error }

func (f failingStats) Record(context.Context, domain.StatsEvent) error { return f.err }

func TestMultiStatsStore_RecordsEverywhereAndKeepsFirstError(t *testing.T) {
	mem := NewMemoryStatsStore()
	errA := errors.New("a")
	m := MultiStatsStore{failingStats{errA}, nil, mem, failingStats{errors.New("b")}}

	err := m.Record(context.Background(), domain.StatsEvent{Allowed: true})
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, int64(1), mem.Total().Allowed)
}

func TestSlotsInUseGauge_FollowsPool(t *testing.T) {
	reg := prometheus.NewRegistry()
	pool := NewChanPool(3)
	require.NoError(t, SlotsInUseGauge(reg, pool))

	release, ok := pool.Acquire(context.Background())
	require.True(t, ok)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, "sheriff_concurrency_slots_in_use", mfs[0].GetName())
	m := mfs[0].GetMetric()[0]
	assert.Equal(t, 1.0, m.GetGauge().GetValue())
	require.Len(t, m.GetLabel(), 1)
	assert.Equal(t, "3", m.GetLabel()[0].GetValue())

	release()
	mfs, err = reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 0.0, mfs[0].GetMetric()[0].GetGauge().GetValue())
}
