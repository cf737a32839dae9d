package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/infra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admission gateway (reverse proxy) and the monitor API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	log := a.log

	target, err := url.Parse(cfg.Gateway.Upstream)
	if err != nil {
		return fmt.Errorf("invalid gateway.upstream: %w", err)
	}

	gate, ledger := buildGate(cfg.Limits, log.WithComponent("gate"))
	infra.StartJanitor(ctx, ledger, cfg.Limits.PruneEvery, log.WithComponent("janitor"))

	memStats := infra.NewMemoryStatsStore(infra.WithTrackRoutes(cfg.Stats.TrackRoutes))
	stats := infra.MultiStats{memStats}
	if cfg.Stats.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}

		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackAgents(cfg.Stats.TrackAgents),
		))
	}

	keyOpts := ratelimit.KeyOptions{
		AgentHeader:        cfg.Gateway.AgentHeader,
		TrustXForwardedFor: cfg.Gateway.TrustXFF,
		EndpointFromPath:   cfg.Gateway.EndpointFromPath,
	}
	keyFn := ratelimit.DefaultKeyFunc(keyOpts)

	proxyLog := log.WithComponent("proxy")
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ModifyResponse = ratelimit.Feedback{Gate: gate, Log: proxyLog}.ModifyResponse(keyFn)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		proxyLog.Error("proxy error", "path", r.URL.Path, "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	handler := ratelimit.Middleware(ratelimit.Options{
		Gate:                gate,
		Stats:               stats,
		KeyFn:               keyFn,
		Mode:                ratelimit.Mode(cfg.Gateway.Mode),
		WaitTimeout:         cfg.Gateway.WaitTimeout,
		AddRateLimitHeaders: cfg.Gateway.RateLimitHeaders,
		Log:                 log.WithComponent("middleware"),
	})(proxy)

	gatewaySrv := newServer(cfg.Gateway.Listen, handler)
	monitorSrv := newServer(cfg.Monitor.Listen, ratelimit.NewMonitorRouter(ratelimit.Monitor{
		Gate:  gate,
		Stats: memStats,
		Log:   log.WithComponent("monitor"),
	}))

	log.Info("gateway listening",
		"addr", cfg.Gateway.Listen,
		"upstream", target.String(),
		"mode", cfg.Gateway.Mode,
		"per_second", cfg.Limits.PerSecond,
		"per_minute", cfg.Limits.PerMinute,
		"overrides", len(cfg.Limits.Overrides),
	)
	log.Info("monitor listening", "addr", cfg.Monitor.Listen)
	log.Info("stats", "enabled", cfg.Stats.Enabled, "redis_addr", cfg.Stats.RedisAddr, "bucket", cfg.Stats.Bucket)

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{gatewaySrv, monitorSrv} {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = gatewaySrv.Shutdown(shutdownCtx)
		_ = monitorSrv.Shutdown(shutdownCtx)
		return nil
	})

	err = g.Wait()
	log.Info("gateway stopped", "any_cooling_down", gate.AnyAgentCoolingDown())
	return err
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// em modo wait a resposta pode demorar até gateway.wait_timeout.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}
}
