package ratelimit

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Mode define o que o gateway faz quando o agente está sem folga.
type Mode string

const (
	// ModeReject responde na hora com 429 + Retry-After.
	ModeReject Mode = "reject"
	// ModeWait segura a requisição até haver folga ou até WaitTimeout.
	ModeWait Mode = "wait"
)

type Options struct {
	Gate                *application.Gate
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	Key                 KeyOptions
	Mode                Mode
	WaitTimeout         time.Duration
	RejectStatus        int
	AddRateLimitHeaders bool
	Log                 *slog.Logger
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Gate == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.Mode == "" {
		opts.Mode = ModeReject
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 2 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.Key)
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}

	// um 429 por request pode inundar o log; amostra no máximo um por segundo.
	denyLog := &rate.Sometimes{Interval: time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			outcome, retryAfter, err := admit(r, opts, key)
			if err != nil {
				// cliente desistiu enquanto esperava; nada foi registrado.
				return
			}

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     key,
					Outcome: outcome,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
			}

			if outcome != domain.OutcomeAdmitted {
				denyLog.Do(func() {
					opts.Log.Warn("request not admitted",
						"key", key, "outcome", outcome, "retry_after", retryAfter, "path", r.URL.Path)
				})
				w.Header().Set(HeaderAgent, key.Agent())
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(retryAfter)))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			opts.Gate.Record(key)

			if opts.AddRateLimitHeaders {
				remaining := opts.Gate.RemainingCapacity(key)
				w.Header().Set(HeaderAgent, key.Agent())
				w.Header().Set(HeaderRemainingSecond, formatUint(remaining.RemainingPerSecond))
				w.Header().Set(HeaderRemainingMinute, formatUint(remaining.RemainingPerMinute))
			}

			next.ServeHTTP(w, r.WithContext(WithKey(r.Context(), key)))
		})
	}
}

func admit(r *http.Request, opts Options, key domain.Key) (domain.Outcome, time.Duration, error) {
	gate := opts.Gate

	if opts.Mode == ModeWait {
		err := gate.AwaitCapacity(r.Context(), key, opts.WaitTimeout)
		switch {
		case err == nil:
			return domain.OutcomeAdmitted, 0, nil
		case errors.Is(err, domain.ErrCapacityTimeout):
			return domain.OutcomeTimeout, gate.RetryHint(key), nil
		default:
			return "", 0, err
		}
	}

	cooling := gate.IsThrottled(key)
	dec := gate.Decide(key)
	switch {
	case dec.Allowed:
		return domain.OutcomeAdmitted, 0, nil
	case cooling:
		return domain.OutcomeThrottled, dec.RetryAfter, nil
	default:
		return domain.OutcomeDenied, dec.RetryAfter, nil
	}
}
