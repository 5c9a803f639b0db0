// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (Cell, State, CellMap, StateStore)
//   - application: casos de uso (GCRA por chave, janitor, acquire/timeout) sem net/http
//   - infra: mapas concorrentes chave -> Cell, store, semáforo, stats e métricas
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (header/XFF/IP)
//  2. Chama application.Service.Decide, que mede e substitui o estado da chave no store
//  3. Se bloqueado, responde 429 com Retry-After (rate limit) ou 503 (concorrência)
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Em paralelo, application.Janitor remove do store as chaves já repostas.
//
// A configuração do binário gateway (cmd/gateway) vem de internal/config:
// arquivo YAML opcional (CONFIG_FILE) e variáveis como RATE_RPS, RATE_BURST,
// RATE_BACKEND, CONCURRENCY_MAX e JANITOR_EVERY.
package ratelimit
