package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/internal/config"
	"admission-gateway/internal/logger"
)

// Upstream de teste: aplica sua própria cota por agente, anuncia os limites
// nos headers e responde 429 com Retry-After quando estourada.
func main() {
	addr := flag.String("listen", ":8081", "listen address")
	perSecond := flag.Float64("per-second", 8, "quota per agent per second")
	burst := flag.Int("burst", 8, "quota burst per agent")
	perMinute := flag.Int("per-minute", 480, "per-minute quota per agent (0 disables)")
	retryAfter := flag.Duration("retry-after", 2*time.Second, "Retry-After sent with 429")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log, err := logger.New(config.LoggerConfig{Level: *level, Format: "console"})
	if err != nil {
		slog.Error("logger", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ex := newExchange(*perSecond, *burst, *perMinute, *retryAfter, log.WithComponent("exchange"))
	ex.startJanitor(ctx, time.Minute)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           ex.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("mock exchange listening", "addr", *addr, "per_second", *perSecond, "burst", *burst)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
