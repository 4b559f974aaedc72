// Package infra contém implementações concretas para os contratos do pacote domain.
//
//   - FixedWindowLimiter: cota por cliente em janela fixa (algoritmo padrão)
//   - TokenBucketStore: token bucket por cliente usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore, RedisStatsStore, PrometheusStatsStore: estatísticas das decisões
package infra
