// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryLedger: timestamps por chave com poda em 60s (janela deslizante)
//   - MemoryRegistry: perfil de limite por chave, defaults preguiçosos
//   - MemoryTracker: cooldown por chave
//   - MemoryStatsStore / RedisStatsStore: contadores de decisões
//
// Cada chave tem o próprio mutex; o mapa de chaves só é travado para escrita
// na primeira inserção.
package infra
