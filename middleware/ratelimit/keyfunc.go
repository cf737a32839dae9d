package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"
)

// DefaultAgentHeader é o header que identifica o agente que está chamando.
const DefaultAgentHeader = "X-Agent-ID"

type KeyFunc func(r *http.Request) domain.Key

type KeyOptions struct {
	AgentHeader        string
	TrustXForwardedFor bool
	// EndpointFromPath usa o primeiro segmento do path como endpoint,
	// dando a cada agente um bucket por endpoint.
	EndpointFromPath bool
}

func DefaultKeyFunc(opts KeyOptions) KeyFunc {
	header := opts.AgentHeader
	if header == "" {
		header = DefaultAgentHeader
	}

	return func(r *http.Request) domain.Key {
		endpoint := ""
		if opts.EndpointFromPath && r.URL != nil {
			endpoint = firstSegment(r.URL.Path)
		}
		return domain.NewKey(agentOf(r, header, opts.TrustXForwardedFor), endpoint)
	}
}

func agentOf(r *http.Request, header string, trustXFF bool) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}

	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func firstSegment(path string) string {
	path = strings.Trim(path, "/")
	seg, _, _ := strings.Cut(path, "/")
	return seg
}

type admittedKey struct{}

// WithKey grava no contexto a chave sob a qual a requisição foi admitida.
func WithKey(ctx context.Context, key domain.Key) context.Context {
	return context.WithValue(ctx, admittedKey{}, key)
}

// KeyFromContext devolve a chave gravada por WithKey.
func KeyFromContext(ctx context.Context) (domain.Key, bool) {
	key, ok := ctx.Value(admittedKey{}).(domain.Key)
	return key, ok
}
