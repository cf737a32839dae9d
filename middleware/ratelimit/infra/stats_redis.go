package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por agente.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackAgents bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackAgents(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackAgents = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "admission:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) TotalKey() string { return s.prefix + ":total" }

func (s *RedisStatsStore) MinuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

func (s *RedisStatsStore) AgentKey(agent string) string {
	return s.prefix + ":agent:" + agent
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	if ev.Outcome == "" {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := string(ev.Outcome)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.TotalKey(), field, 1)

	if s.bucket == "minute" {
		bucketKey := s.MinuteKey(at)
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ev.Method != "" || ev.Path != "" {
		routeKey := s.prefix + ":route"
		routeField := strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)
		routeField = strings.TrimSpace(routeField)
		if routeField != "" {
			pipe.HIncrBy(ctx, routeKey, routeField+":"+field, 1)
		}
	}

	if s.trackAgents {
		agent := strings.TrimSpace(ev.Key.Agent())
		if agent != "" {
			agentKey := s.AgentKey(agent)
			pipe.HIncrBy(ctx, agentKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, agentKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("record admission stats: %w", err)
	}
	return nil
}

// Totals lê os contadores cumulativos.
func (s *RedisStatsStore) Totals(ctx context.Context) (Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.TotalKey()).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("read admission stats: %w", err)
	}
	return countersFromHash(vals), nil
}

func countersFromHash(vals map[string]string) Counters {
	var c Counters
	parse := func(k string) int64 {
		n, _ := strconv.ParseInt(vals[k], 10, 64)
		return n
	}
	c.Admitted = parse(string(domain.OutcomeAdmitted))
	c.Denied = parse(string(domain.OutcomeDenied))
	c.Throttled = parse(string(domain.OutcomeThrottled))
	c.Timeout = parse(string(domain.OutcomeTimeout))
	return c
}
