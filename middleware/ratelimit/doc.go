// Package ratelimit fornece adapters HTTP (net/http) para o controle de admissão
// de agentes que compartilham a cota de um upstream (ex.: API de exchange).
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: Gate (may-send, evaluate-and-throttle, await-capacity) sem net/http
//   - infra: ledger de timestamps, registro de limites, cooldown, estatísticas
//   - ratelimit (este pacote): middleware do gateway, Transport dos agentes,
//     leitura de headers do upstream e API de monitoramento
//
// Fluxo no gateway:
//
//  1. Extrai a chave do agente (header X-Agent-ID, XFF ou IP; opcionalmente + endpoint)
//  2. Pergunta ao Gate se pode enviar (ou espera, no modo wait)
//  3. Se bloqueado, responde 429 com Retry-After
//  4. Se admitido, registra o envio no ledger e chama o próximo handler (reverse proxy)
//  5. Na resposta do upstream, limites anunciados em headers e 429s voltam para o Gate
//
// A configuração do binário (cmd/gateway) vem de arquivo YAML e variáveis
// ADMISSION_*, como ADMISSION_LIMITS_PER_SECOND e ADMISSION_GATEWAY_MODE.
package ratelimit
