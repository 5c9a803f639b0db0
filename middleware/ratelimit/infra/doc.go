// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Store: medir-e-substituir atômico e retenção sobre qualquer domain.CellMap
//   - ShardedMap / SyncMap / LRUMap: mapas concorrentes chave -> Cell
//   - SemaphorePool: semáforo para limite de concorrência
//   - MemoryStatsStore / RedisStatsStore: contadores de decisão
//   - Metrics: coletor Prometheus do store e das decisões
package infra
